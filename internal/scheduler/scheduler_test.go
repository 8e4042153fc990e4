// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allenjin-login/usbthief/internal/loadeval"
	"github.com/allenjin-login/usbthief/internal/ratelimit"
)

// fakeDispatch runs every job inline and records the order in which
// tasks were handed to it, standing in for internal/executor.Pool.
type fakeDispatch struct {
	mu      sync.Mutex
	order   []string
	reject  bool
	calls   int
	allowed int // if > 0, only this many calls succeed before rejecting
}

func (f *fakeDispatch) TryExecute(fn func()) bool {
	f.mu.Lock()
	f.calls++
	if f.reject || (f.allowed > 0 && f.calls > f.allowed) {
		f.mu.Unlock()
		return false
	}
	f.mu.Unlock()
	fn()
	return true
}

type fakeStats struct {
	activeRatio float64
	rejections  int
}

func (f fakeStats) ActiveRatio() float64    { return f.activeRatio }
func (f fakeStats) RecentRejectionCount() int { return f.rejections }

type fakeSpeed struct{ mbps float64 }

func (f fakeSpeed) MBPerSecond() float64 { return f.mbps }

func newTestScheduler(dispatch *fakeDispatch, stats fakeStats, speed fakeSpeed, cfg Config, record *[]string, mu *sync.Mutex) *Scheduler {
	rl := ratelimit.New(1<<30, 1<<20)
	copyFn := func(ctx context.Context, t Task) {
		mu.Lock()
		*record = append(*record, t.Source)
		mu.Unlock()
	}
	return New(cfg, rl, dispatch, stats, speed, copyFn)
}

func baseConfig() Config {
	return Config{
		TickInterval:          10 * time.Millisecond,
		LowBatch:              10,
		MediumBatch:           3,
		HighPriorityThreshold: 90,
		BaseRate:              0,
		Weights: loadeval.Weights{
			Queue: 40, Speed: 20, Thread: 30, Rejection: 10,
		},
	}
}

func TestDispatchOrdersByPriorityThenCreation(t *testing.T) {
	dispatch := &fakeDispatch{}
	var record []string
	var mu sync.Mutex
	s := newTestScheduler(dispatch, fakeStats{}, fakeSpeed{mbps: 10}, baseConfig(), &record, &mu)

	s.Submit(Task{Source: "low", Priority: 10, Cancel: NewCancelToken()})
	s.Submit(Task{Source: "high", Priority: 90, Cancel: NewCancelToken()})
	s.Submit(Task{Source: "mid", Priority: 50, Cancel: NewCancelToken()})

	s.tick()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"high", "mid", "low"}, record)
}

func TestHighLoadAccumulatesWithoutDispatching(t *testing.T) {
	dispatch := &fakeDispatch{}
	var record []string
	var mu sync.Mutex
	cfg := baseConfig()
	s := newTestScheduler(dispatch, fakeStats{activeRatio: 1, rejections: 10}, fakeSpeed{mbps: 0.1}, cfg, &record, &mu)

	// Queue depth alone contributes little; saturated thread activity,
	// rejection pressure, and a collapsed speed probe still need a
	// deep-enough queue to push the composite score over the HIGH
	// threshold (70) under this test's weights (Queue 40/Speed 20/
	// Thread 30/Rejection 10), matching spec scenario 3's "saturate the
	// executor queue" setup, not just a single pending task.
	for i := 0; i < 30; i++ {
		s.Submit(Task{Source: "a", Priority: 10, Cancel: NewCancelToken()})
	}
	s.tick()

	assert.True(t, s.Accumulating())
	mu.Lock()
	assert.Empty(t, record)
	mu.Unlock()
	assert.Equal(t, 30, s.PendingCount())
}

func TestRateLimitNeverRaisesBackUp(t *testing.T) {
	dispatch := &fakeDispatch{}
	var record []string
	var mu sync.Mutex
	cfg := baseConfig()
	cfg.AutoMode = true
	cfg.BaseRate = 1000
	cfg.LowPercent = 100
	cfg.MediumPercent = 50
	cfg.HighPercent = 10
	s := newTestScheduler(dispatch, fakeStats{activeRatio: 1, rejections: 10}, fakeSpeed{mbps: 0.1}, cfg, &record, &mu)

	s.adjustRateLimit(loadeval.High)
	require.Equal(t, int64(100), s.rl.Rate())

	// Load subsides to LOW; the limit must stay at the lowered value.
	s.adjustRateLimit(loadeval.Low)
	assert.Equal(t, int64(100), s.rl.Rate())
}

func TestGracefulDegradationToFIFO(t *testing.T) {
	dispatch := &fakeDispatch{}
	var record []string
	var mu sync.Mutex
	cfg := baseConfig()
	s := newTestScheduler(dispatch, fakeStats{}, fakeSpeed{mbps: 10}, cfg, &record, &mu)

	s.Submit(Task{Source: "first", Priority: 5, Cancel: NewCancelToken(), CreatedNanos: 1})
	s.Submit(Task{Source: "second", Priority: 99, Cancel: NewCancelToken(), CreatedNanos: 2})

	// Force the normal path to panic by poisoning the speed probe return
	// through a nil-dereferencing copy func substitute is unnecessary;
	// instead directly exercise dispatchFIFO, which is the code path
	// tick() falls back to, verifying creation-order (not priority) wins.
	s.dispatchFIFO()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, record)
}

func TestDispatchFIFORequeuesOnRejection(t *testing.T) {
	dispatch := &fakeDispatch{allowed: 1}
	var record []string
	var mu sync.Mutex
	cfg := baseConfig()
	s := newTestScheduler(dispatch, fakeStats{}, fakeSpeed{mbps: 10}, cfg, &record, &mu)

	s.Submit(Task{Source: "first", Priority: 5, Cancel: NewCancelToken(), CreatedNanos: 1})
	s.Submit(Task{Source: "second", Priority: 5, Cancel: NewCancelToken(), CreatedNanos: 2})

	s.dispatchFIFO()

	mu.Lock()
	require.Equal(t, []string{"first"}, record)
	mu.Unlock()
	assert.Equal(t, 1, s.PendingCount())
}

func TestShutdownCancelsPendingTasks(t *testing.T) {
	dispatch := &fakeDispatch{reject: true}
	var record []string
	var mu sync.Mutex
	cfg := baseConfig()
	s := newTestScheduler(dispatch, fakeStats{}, fakeSpeed{mbps: 10}, cfg, &record, &mu)

	tok := NewCancelToken()
	s.Submit(Task{Source: "pending", Priority: 1, Cancel: tok})

	require.NoError(t, s.Shutdown())
	assert.True(t, tok.Cancelled())
}
