// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scanner

import (
	"sync"
	"time"
)

// WatchBatch is the per-device pending-change set from spec §3: a
// monotone-between-resets counter and a reset timer. It fires (calling
// drain) when the counter reaches threshold or the timer elapses,
// whichever happens first, and never holds its lock while draining.
type WatchBatch struct {
	mu            sync.Mutex
	paths         map[string]struct{}
	threshold     int
	resetInterval time.Duration
	timer         *time.Timer
	drain         func([]string)
	stopped       bool
}

// NewWatchBatch creates a batch that calls drain once it fires. The
// reset timer starts immediately and rearms itself after each
// timer-triggered drain, matching "fires on threshold or a timer fires"
// without requiring the caller to re-arm it; a threshold drain leaves the
// running timer as it is.
func NewWatchBatch(threshold int, resetInterval time.Duration, drain func([]string)) *WatchBatch {
	b := &WatchBatch{
		paths:         make(map[string]struct{}),
		threshold:     threshold,
		resetInterval: resetInterval,
		drain:         drain,
	}
	b.timer = time.AfterFunc(resetInterval, b.onTimer)
	return b
}

// Add folds path into the pending set, draining immediately if this
// push reaches threshold.
func (b *WatchBatch) Add(path string) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.paths[path] = struct{}{}
	full := b.threshold > 0 && len(b.paths) >= b.threshold
	b.mu.Unlock()

	if full {
		b.fire()
	}
}

func (b *WatchBatch) onTimer() {
	b.fire()
	b.mu.Lock()
	if !b.stopped {
		b.timer.Reset(b.resetInterval)
	}
	b.mu.Unlock()
}

func (b *WatchBatch) fire() {
	b.mu.Lock()
	if len(b.paths) == 0 {
		b.mu.Unlock()
		return
	}
	out := make([]string, 0, len(b.paths))
	for p := range b.paths {
		out = append(out, p)
	}
	b.paths = make(map[string]struct{})
	b.mu.Unlock()

	b.drain(out)
}

// Stop halts the reset timer permanently; further Add calls are
// ignored.
func (b *WatchBatch) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.timer.Stop()
}
