// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package copyengine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/internal/index"
	"github.com/allenjin-login/usbthief/internal/ratelimit"
	"github.com/allenjin-login/usbthief/internal/scheduler"
)

func newTestEngine(t *testing.T, maxFileSize int64) (*Engine, *index.Index, *eventbus.Bus, string) {
	t.Helper()
	workDir := t.TempDir()
	idx := index.New()
	bus := eventbus.New()
	rl := ratelimit.New(0, 0)
	speed := NewSpeedProbe(time.Second)
	e := New(Config{WorkDir: workDir, MaxFileSize: maxFileSize}, idx, rl, bus, speed)
	return e, idx, bus, workDir
}

func writeSourceFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func collectCopyCompleted(bus *eventbus.Bus) (<-chan eventbus.CopyCompleted, eventbus.Subscription) {
	ch := make(chan eventbus.CopyCompleted, 8)
	sub := eventbus.Subscribe(bus, func(e eventbus.CopyCompleted) {
		ch <- e
	})
	return ch, sub
}

func TestCopyInsertsNewContentAndIndexesIt(t *testing.T) {
	e, idx, bus, workDir := newTestEngine(t, 0)
	events, sub := collectCopyCompleted(bus)
	defer bus.Unsubscribe(sub)

	srcDir := t.TempDir()
	src := writeSourceFile(t, srcDir, "a.txt", []byte("hello world"))

	e.Copy(context.Background(), scheduler.Task{Source: src, Size: 11, Cancel: scheduler.NewCancelToken()})

	select {
	case ev := <-events:
		assert.Equal(t, eventbus.ResultSuccess, ev.Result)
		assert.NotEmpty(t, ev.Destination)
		assert.True(t, strings.HasPrefix(ev.Destination, workDir))
	case <-time.After(time.Second):
		t.Fatal("no CopyCompleted event published")
	}
	assert.Equal(t, 1, idx.Len())
}

func TestCopyDeduplicatesIdenticalContent(t *testing.T) {
	e, idx, bus, _ := newTestEngine(t, 0)
	events, sub := collectCopyCompleted(bus)
	defer bus.Unsubscribe(sub)

	srcDir := t.TempDir()
	a := writeSourceFile(t, srcDir, "a.txt", []byte("same bytes"))
	b := writeSourceFile(t, srcDir, "b.txt", []byte("same bytes"))

	e.Copy(context.Background(), scheduler.Task{Source: a, Size: 10, Cancel: scheduler.NewCancelToken()})
	<-events

	e.Copy(context.Background(), scheduler.Task{Source: b, Size: 10, Cancel: scheduler.NewCancelToken()})
	second := <-events

	assert.Equal(t, eventbus.ResultSuccess, second.Result)
	assert.Equal(t, 1, idx.Len())
}

func TestCopyFailsFastOnOversizedFile(t *testing.T) {
	e, idx, bus, _ := newTestEngine(t, 5)
	events, sub := collectCopyCompleted(bus)
	defer bus.Unsubscribe(sub)

	srcDir := t.TempDir()
	src := writeSourceFile(t, srcDir, "big.txt", []byte("this is more than five bytes"))

	e.Copy(context.Background(), scheduler.Task{Source: src, Size: 29, Cancel: scheduler.NewCancelToken()})

	ev := <-events
	assert.Equal(t, eventbus.ResultFail, ev.Result)
	assert.Equal(t, 0, idx.Len())
}

func TestCopyHonorsCancellation(t *testing.T) {
	e, idx, bus, _ := newTestEngine(t, 0)
	events, sub := collectCopyCompleted(bus)
	defer bus.Unsubscribe(sub)

	srcDir := t.TempDir()
	src := writeSourceFile(t, srcDir, "a.txt", []byte("content"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e.Copy(ctx, scheduler.Task{Source: src, Size: 7, Cancel: scheduler.NewCancelToken()})

	ev := <-events
	assert.Equal(t, eventbus.ResultCancel, ev.Result)
	assert.Equal(t, 0, idx.Len())
}
