// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/allenjin-login/usbthief/internal/loadeval"
	"github.com/allenjin-login/usbthief/internal/ratelimit"
	"github.com/allenjin-login/usbthief/pkg/log"
)

// Dispatch is the narrow surface the scheduler needs from the executor
// (internal/executor.Pool satisfies it without either package importing
// the other: the scheduler only depends on the shape, per spec §9's
// "break cyclic references with identity, not owning reference").
type Dispatch interface {
	TryExecute(fn func()) bool
}

// WorkerStats exposes the executor signals the load evaluator needs.
type WorkerStats interface {
	ActiveRatio() float64
	RecentRejectionCount() int
}

// SpeedProbe exposes the copy engine's global throughput signal.
type SpeedProbe interface {
	MBPerSecond() float64
}

// CopyFunc performs one file copy; the scheduler never imports the copy
// engine directly, keeping the dependency one-directional.
type CopyFunc func(ctx context.Context, t Task)

// Config holds the scheduler's tunables, normally sourced from
// internal/config.Store (spec §6 Scheduler/Rate limit/Load categories).
type Config struct {
	TickInterval          time.Duration
	InitialDelay          time.Duration
	LowBatch              int
	MediumBatch           int
	HighPriorityThreshold int

	BaseRate      int64
	AutoMode      bool
	LowPercent    int
	MediumPercent int
	HighPercent   int

	Weights loadeval.Weights
}

// Scheduler is the priority dispatch core from spec §4.H: an ordering
// structure of priority-tagged tasks, a single dispatcher tick (grounded
// on the teacher's taskManager.Start gocron.DurationJob idiom, reused
// here for "one dedicated periodic thread"), adaptive batch sizing, and
// rate-limit adjustment that never re-raises mid-session.
type Scheduler struct {
	mu         sync.Mutex
	pq         taskHeap
	seqCounter int64

	cfg Config
	rl  *ratelimit.Limiter

	dispatch Dispatch
	workers  WorkerStats
	speed    SpeedProbe
	copyFn   CopyFunc

	currentLimit int64
	accumulating bool

	fifoFallback        bool
	consecutiveFailures int
	backoffUntil        time.Time

	sched gocron.Scheduler
}

// New builds a Scheduler. It does not start the dispatcher; call
// StartDispatcher to do that.
func New(cfg Config, rl *ratelimit.Limiter, dispatch Dispatch, workers WorkerStats, speed SpeedProbe, copyFn CopyFunc) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		rl:           rl,
		dispatch:     dispatch,
		workers:      workers,
		speed:        speed,
		copyFn:       copyFn,
		currentLimit: cfg.BaseRate,
	}
}

// Submit places t into the priority ordering in O(log n). It never
// blocks and never rejects (spec §4.H Submit).
func (s *Scheduler) Submit(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.CreatedNanos == 0 {
		t.CreatedNanos = time.Now().UnixNano()
	}
	s.seqCounter++
	tt := t
	tt.seq = s.seqCounter
	heap.Push(&s.pq, &tt)
}

// PendingCount returns the number of tasks currently queued, the
// "queue depth" load signal.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pq)
}

// Accumulating reports whether the dispatcher is currently in
// accumulation mode (HIGH load, spec §4.H step 3).
func (s *Scheduler) Accumulating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulating
}

// StartDispatcher registers and starts the tick loop.
func (s *Scheduler) StartDispatcher() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.cfg.TickInterval),
		gocron.NewTask(s.tick),
		gocron.WithStartAt(gocron.WithStartDateTime(time.Now().Add(s.cfg.InitialDelay))),
	)
	if err != nil {
		return err
	}

	s.sched = sched
	sched.Start()
	return nil
}

// tick is the dispatcher's single periodic unit of work (spec §4.H).
// Any panic inside the normal-load path is caught, logged, and the
// tick instead falls back to direct FIFO dispatch; a second consecutive
// failure keeps the fallback engaged with a backoff (spec §4.H failure
// semantics), matching the "never block file monitoring" contract.
func (s *Scheduler) tick() {
	s.mu.Lock()
	inBackoff := time.Now().Before(s.backoffUntil)
	s.mu.Unlock()

	if inBackoff {
		s.dispatchFIFO()
		return
	}

	failed := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("scheduler: tick panicked, falling back to FIFO: %v", r)
				failed = true
			}
		}()
		s.normalTick()
	}()

	if !failed {
		s.mu.Lock()
		s.fifoFallback = false
		s.consecutiveFailures = 0
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.fifoFallback = true
	s.consecutiveFailures++
	if s.consecutiveFailures >= 2 {
		s.backoffUntil = time.Now().Add(time.Duration(s.consecutiveFailures) * s.cfg.TickInterval)
	}
	s.mu.Unlock()

	s.dispatchFIFO()
}

func (s *Scheduler) normalTick() {
	score := loadeval.Evaluate(loadeval.Snapshot{
		QueueDepth:        s.PendingCount(),
		ThroughputMBPerS:  s.speed.MBPerSecond(),
		WorkerActiveRatio: s.workers.ActiveRatio(),
		RecentRejections:  s.workers.RecentRejectionCount(),
	}, s.cfg.Weights)

	s.adjustRateLimit(score.Level)

	switch score.Level {
	case loadeval.High:
		s.mu.Lock()
		s.accumulating = true
		s.mu.Unlock()
		return
	case loadeval.Medium:
		s.setAccumulating(false)
		s.drainAndDispatch(s.cfg.MediumBatch, 0)
	default: // Low
		s.setAccumulating(false)
		s.drainAndDispatch(s.cfg.LowBatch, s.cfg.HighPriorityThreshold)
	}
}

func (s *Scheduler) setAccumulating(v bool) {
	s.mu.Lock()
	s.accumulating = v
	s.mu.Unlock()
}

// adjustRateLimit implements spec §4.H's conservative, monotonic-down
// rate adjustment: the limit is only ever lowered within a session,
// never raised back up once load subsides (an open question the spec
// preserves rather than resolves; see DESIGN.md).
func (s *Scheduler) adjustRateLimit(level loadeval.Level) {
	if !s.cfg.AutoMode || s.cfg.BaseRate <= 0 {
		return
	}

	percent := s.cfg.LowPercent
	switch level {
	case loadeval.Medium:
		percent = s.cfg.MediumPercent
	case loadeval.High:
		percent = s.cfg.HighPercent
	}
	target := s.cfg.BaseRate * int64(percent) / 100

	s.mu.Lock()
	cur := s.currentLimit
	if target < cur || cur <= 0 {
		s.currentLimit = target
		s.mu.Unlock()
		s.rl.SetRate(target)
		return
	}
	s.mu.Unlock()
}

// drainAndDispatch drains up to batchBudget tasks in strict priority
// order, except that any task whose priority is >= bypassThreshold (0
// disables this) is always dispatched regardless of remaining budget.
// A rejection from the executor returns the task to its priority
// position and stops dispatch for the rest of this tick (spec §4.H
// step 4, the graceful-degradation path that must never drop a task).
func (s *Scheduler) drainAndDispatch(batchBudget, bypassThreshold int) {
	dispatched := 0
	for {
		s.mu.Lock()
		if len(s.pq) == 0 {
			s.mu.Unlock()
			return
		}
		top := s.pq[0]
		overBudget := dispatched >= batchBudget
		bypass := bypassThreshold > 0 && top.Priority >= bypassThreshold
		if overBudget && !bypass {
			s.mu.Unlock()
			return
		}
		task := heap.Pop(&s.pq).(*Task)
		s.mu.Unlock()

		if !s.tryDispatch(task) {
			s.mu.Lock()
			heap.Push(&s.pq, task)
			s.mu.Unlock()
			return
		}
		dispatched++
	}
}

func (s *Scheduler) tryDispatch(t *Task) bool {
	task := *t
	return s.dispatch.TryExecute(func() {
		s.copyFn(task.Cancel.Context(), task)
	})
}

// dispatchFIFO drains in strict creation order, ignoring priority and
// load (spec §4.H "graceful degradation"). It is used both for the tick
// whose normal path just panicked and for every tick while backed off.
func (s *Scheduler) dispatchFIFO() {
	s.mu.Lock()
	tasks := make([]*Task, len(s.pq))
	copy(tasks, s.pq)
	s.mu.Unlock()

	if len(tasks) == 0 {
		return
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedNanos != tasks[j].CreatedNanos {
			return tasks[i].CreatedNanos < tasks[j].CreatedNanos
		}
		return tasks[i].seq < tasks[j].seq
	})

	budget := s.cfg.LowBatch
	if budget <= 0 {
		budget = len(tasks)
	}

	dispatched := make(map[*Task]bool, budget)
	for _, t := range tasks {
		if len(dispatched) >= budget {
			break
		}
		if !s.tryDispatch(t) {
			break
		}
		dispatched[t] = true
	}
	if len(dispatched) == 0 {
		return
	}

	s.mu.Lock()
	remaining := make(taskHeap, 0, len(s.pq)-len(dispatched))
	for _, t := range s.pq {
		if !dispatched[t] {
			remaining = append(remaining, t)
		}
	}
	heap.Init(&remaining)
	s.pq = remaining
	s.mu.Unlock()
}

// Shutdown stops the dispatcher and invalidates the cancellation token
// of every task still queued (spec §4.H Cancellation). Already-running
// copies are left to finish or honor cancellation on their own.
func (s *Scheduler) Shutdown() error {
	var err error
	if s.sched != nil {
		err = s.sched.Shutdown()
	}

	s.mu.Lock()
	for _, t := range s.pq {
		t.Cancel.Cancel()
	}
	s.mu.Unlock()
	return err
}
