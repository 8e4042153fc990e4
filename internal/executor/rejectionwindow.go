// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package executor

import (
	"sync"
	"time"
)

// rejectionWindow counts rejections in a trailing window (~5s per spec
// §4.G), pruning expired entries lazily on read, the same
// accumulate-then-prune shape as internal/scanner.WatchBatch's pending
// set, applied to timestamps instead of paths.
type rejectionWindow struct {
	mu     sync.Mutex
	window time.Duration
	at     []time.Time
}

func newRejectionWindow(window time.Duration) *rejectionWindow {
	return &rejectionWindow{window: window}
}

func (w *rejectionWindow) record() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.at = append(w.at, time.Now())
	w.prune()
}

func (w *rejectionWindow) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune()
	return len(w.at)
}

// prune must be called with mu held.
func (w *rejectionWindow) prune() {
	cutoff := time.Now().Add(-w.window)
	i := 0
	for ; i < len(w.at); i++ {
		if w.at[i].After(cutoff) {
			break
		}
	}
	w.at = w.at[i:]
}
