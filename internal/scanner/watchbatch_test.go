// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scanner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchBatchFiresOnThreshold(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)

	b := NewWatchBatch(3, time.Hour, func(paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
		done <- struct{}{}
	})
	defer b.Stop()

	b.Add("a")
	b.Add("b")
	b.Add("c")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("batch did not fire on threshold")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestWatchBatchFiresOnTimer(t *testing.T) {
	done := make(chan []string, 1)
	b := NewWatchBatch(1000, 20*time.Millisecond, func(paths []string) {
		done <- paths
	})
	defer b.Stop()

	b.Add("a")

	select {
	case paths := <-done:
		assert.Equal(t, []string{"a"}, paths)
	case <-time.After(time.Second):
		t.Fatal("batch did not fire on timer")
	}
}

func TestWatchBatchStopSuppressesFurtherAdds(t *testing.T) {
	fired := 0
	var mu sync.Mutex
	b := NewWatchBatch(1, time.Hour, func(paths []string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	b.Stop()
	b.Add("a")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 0, fired)
}
