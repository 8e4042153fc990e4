// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ratelimit implements the load-aware token-bucket throttle
// from spec §4.F, built directly on golang.org/x/time/rate: its
// rate.Limiter already is a lazily refilled token bucket with
// runtime-adjustable SetLimit/SetBurst, exactly this component's
// contract. This package only adds the rate=0 "unbounded" special case
// spec'd explicitly (x/time/rate treats rate.Inf specially, not a
// literal zero) and cooperative-cancellation semantics around WaitN.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles copy throughput in bytes per second.
type Limiter struct {
	rl *rate.Limiter
}

// New creates a Limiter with the given byte/sec rate and burst size. A
// rate of zero means unbounded: every Acquire returns immediately
// without consuming tokens.
func New(bytesPerSec int64, burst int64) *Limiter {
	return &Limiter{rl: newInnerLimiter(bytesPerSec, burst)}
}

func newInnerLimiter(bytesPerSec, burst int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return rate.NewLimiter(rate.Inf, int(burst))
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), int(burst))
}

// Acquire blocks cooperatively until n tokens (bytes) are available,
// then consumes them. A cancelled ctx returns its error without
// consuming tokens (spec §4.F cancellation semantics: WaitN already
// gives us this for free, since it never reserves tokens for a context
// that is done before the reservation would be satisfiable).
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	return l.rl.WaitN(ctx, n)
}

// SetRate updates the refill rate at runtime. A rate of zero switches
// the limiter to unbounded. An in-flight Acquire observes the new rate
// at its next refill computation, matching x/time/rate's semantics.
func (l *Limiter) SetRate(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		l.rl.SetLimit(rate.Inf)
		return
	}
	l.rl.SetLimit(rate.Limit(bytesPerSec))
}

// SetBurst updates the bucket's burst capacity at runtime.
func (l *Limiter) SetBurst(burst int64) {
	l.rl.SetBurst(int(burst))
}

// Rate returns the current configured rate in bytes/sec, or 0 if
// unbounded.
func (l *Limiter) Rate() int64 {
	lim := l.rl.Limit()
	if lim == rate.Inf {
		return 0
	}
	return int64(lim)
}
