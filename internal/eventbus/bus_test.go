// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventbus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	var order []int

	Subscribe(b, func(e IndexLoaded) { order = append(order, 1) })
	Subscribe(b, func(e IndexLoaded) { order = append(order, 2) })
	Subscribe(b, func(e IndexLoaded) { order = append(order, 3) })

	b.PublishSync(NewIndexLoaded(10))

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublishSyncOnlyMatchesDeclaredType(t *testing.T) {
	b := New()
	var gotIndexLoaded, gotIndexSaved bool

	Subscribe(b, func(e IndexLoaded) { gotIndexLoaded = true })
	Subscribe(b, func(e IndexSaved) { gotIndexSaved = true })

	b.PublishSync(NewIndexLoaded(1))

	assert.True(t, gotIndexLoaded)
	assert.False(t, gotIndexSaved)
}

func TestSubscribeAllCatchesEveryEvent(t *testing.T) {
	b := New()
	var seen []string

	Subscribe(b, func(e Event) { seen = append(seen, e.Description()) })

	b.PublishSync(NewIndexLoaded(1))
	b.PublishSync(NewIndexSaved(2))

	require.Len(t, seen, 2)
}

func TestPublishSyncIsolatesPanickingHandler(t *testing.T) {
	b := New()
	var secondRan bool

	Subscribe(b, func(e IndexLoaded) { panic("boom") })
	Subscribe(b, func(e IndexLoaded) { secondRan = true })

	assert.NotPanics(t, func() {
		b.PublishSync(NewIndexLoaded(1))
	})
	assert.True(t, secondRan)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var count int

	sub := Subscribe(b, func(e IndexLoaded) { count++ })
	b.PublishSync(NewIndexLoaded(1))
	b.Unsubscribe(sub)
	b.PublishSync(NewIndexLoaded(1))

	assert.Equal(t, 1, count)
}

func TestPublishAsyncWaitsForEveryHandler(t *testing.T) {
	b := New()
	var mu sync.Mutex
	count := 0

	for i := 0; i < 5; i++ {
		Subscribe(b, func(e IndexSaved) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	b.PublishAsync(NewIndexSaved(1)).Wait()

	assert.Equal(t, 5, count)
}

func TestPublishAsyncCollectReturnsPerHandlerResults(t *testing.T) {
	b := New()

	SubscribeResult(b, func(e FileIndexed) int { return int(e.Size) * 2 })
	SubscribeResult(b, func(e FileIndexed) int { return int(e.Size) * 3 })

	results := b.PublishAsyncCollect(NewFileIndexed("/a", 10, 1))

	require.Len(t, results, 2)
	var sum int
	for _, v := range results {
		sum += v.(int)
	}
	assert.Equal(t, 50, sum)
}
