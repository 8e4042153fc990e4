// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package loadeval computes the weighted composite LoadScore from spec
// §4.G: four independently normalized signals, each capped at its
// configured weight, summed into a single [0,100] score. No pack
// dependency covers a bespoke weighted-normalization formula, so this
// is pure stdlib math, the same "pure function over a metric snapshot"
// shape the teacher's wider metric pipeline uses even though that
// pipeline itself (pkg/resampler) is out of this repository's scope.
package loadeval

import "math"

// Level is the coarse classification of a LoadScore.
type Level int

const (
	Low Level = iota
	Medium
	High
)

func (l Level) String() string {
	switch l {
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	default:
		return "LOW"
	}
}

// Snapshot is the set of raw signals read from the scheduler, executor,
// and copy engine immediately before an evaluation.
type Snapshot struct {
	QueueDepth        int     // scheduler pending task count
	ThroughputMBPerS  float64 // global speed probe
	WorkerActiveRatio float64 // executor active/max, in [0,1]
	RecentRejections  int     // rejection-aware policy's sliding-window count
}

// Weights are the per-signal contribution caps, expressed as points out
// of 100. They sum to 100 under the spec's default configuration but
// are not required to; Evaluate simply adds each capped contribution.
type Weights struct {
	Queue     float64
	Speed     float64
	Thread    float64
	Rejection float64
}

// Score is the evaluation result.
type Score struct {
	Value int
	Level Level
}

// Evaluate is a pure function of s and w: safe to call from any
// goroutine, holds no state.
func Evaluate(s Snapshot, w Weights) Score {
	queue := linearCap(float64(s.QueueDepth), 0, 100, w.Queue)
	speed := inverseLinearCap(s.ThroughputMBPerS, 1, 10, w.Speed)
	thread := linearCap(s.WorkerActiveRatio, 0, 1, w.Thread)
	rejection := linearCap(float64(s.RecentRejections), 0, 10, w.Rejection)

	total := queue + speed + thread + rejection
	value := int(math.Round(clamp(total, 0, 100)))

	return Score{Value: value, Level: levelOf(value)}
}

func levelOf(v int) Level {
	switch {
	case v > 70:
		return High
	case v >= 40:
		return Medium
	default:
		return Low
	}
}

// linearCap maps x in [lo, hi] linearly onto [0, cap]; x <= lo -> 0,
// x >= hi -> cap.
func linearCap(x, lo, hi, cap float64) float64 {
	if hi == lo {
		return 0
	}
	frac := (x - lo) / (hi - lo)
	return clamp(frac, 0, 1) * cap
}

// inverseLinearCap maps x in [hi, lo] inversely: x >= lo -> 0 (low
// pressure, throughput is healthy), x <= hi -> cap (throughput has
// collapsed). lo is the "healthy" threshold, hi the "critical" one.
func inverseLinearCap(x, hi, lo, cap float64) float64 {
	if lo == hi {
		return 0
	}
	frac := (lo - x) / (lo - hi)
	return clamp(frac, 0, 1) * cap
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
