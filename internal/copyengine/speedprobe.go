// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package copyengine

import (
	"sync"
	"time"
)

// sample is one bytes-copied observation at a point in time.
type sample struct {
	at    time.Time
	bytes int64
}

// SpeedProbe tracks global copy throughput over a trailing window, the
// same accumulate-then-prune shape as internal/scanner.WatchBatch and
// internal/executor.rejectionWindow applied to byte counts instead of
// paths or timestamps. It satisfies internal/scheduler.SpeedProbe.
type SpeedProbe struct {
	mu      sync.Mutex
	window  time.Duration
	samples []sample
}

// NewSpeedProbe creates a probe averaging over the given trailing window.
func NewSpeedProbe(window time.Duration) *SpeedProbe {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &SpeedProbe{window: window}
}

// Record notes that n bytes were copied just now.
func (p *SpeedProbe) Record(n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, sample{at: time.Now(), bytes: n})
	p.prune()
}

// MBPerSecond returns the average throughput over the trailing window,
// in megabytes/second. Zero if no bytes have been recorded recently.
func (p *SpeedProbe) MBPerSecond() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prune()

	if len(p.samples) == 0 {
		return 0
	}
	var total int64
	for _, s := range p.samples {
		total += s.bytes
	}
	elapsed := time.Since(p.samples[0].at).Seconds()
	if elapsed <= 0 {
		elapsed = p.window.Seconds()
	}
	return (float64(total) / (1024 * 1024)) / elapsed
}

// prune must be called with mu held.
func (p *SpeedProbe) prune() {
	cutoff := time.Now().Add(-p.window)
	i := 0
	for ; i < len(p.samples); i++ {
		if p.samples[i].at.After(cutoff) {
			break
		}
	}
	p.samples = p.samples[i:]
}
