// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package loadeval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var defaultWeights = Weights{Queue: 35, Speed: 35, Thread: 15, Rejection: 15}

func TestEvaluateIdleSystemIsLow(t *testing.T) {
	score := Evaluate(Snapshot{ThroughputMBPerS: 20}, defaultWeights)
	assert.Equal(t, 0, score.Value)
	assert.Equal(t, Low, score.Level)
}

func TestEvaluateSaturatedSystemIsHigh(t *testing.T) {
	score := Evaluate(Snapshot{
		QueueDepth:        200,
		ThroughputMBPerS:  0,
		WorkerActiveRatio: 1.0,
		RecentRejections:  50,
	}, defaultWeights)

	assert.Equal(t, 100, score.Value)
	assert.Equal(t, High, score.Level)
}

func TestLevelBoundaries(t *testing.T) {
	assert.Equal(t, Low, levelOf(39))
	assert.Equal(t, Medium, levelOf(40))
	assert.Equal(t, Medium, levelOf(70))
	assert.Equal(t, High, levelOf(71))
}

func TestThroughputInverseScaling(t *testing.T) {
	healthy := Evaluate(Snapshot{ThroughputMBPerS: 10}, defaultWeights)
	collapsed := Evaluate(Snapshot{ThroughputMBPerS: 1}, defaultWeights)
	belowFloor := Evaluate(Snapshot{ThroughputMBPerS: 0.1}, defaultWeights)

	assert.Equal(t, 0, healthy.Value)
	assert.Equal(t, 35, collapsed.Value)
	assert.Equal(t, 35, belowFloor.Value, "throughput below the floor must clamp, not extrapolate past the cap")
}

func TestQueueDepthLinearScaling(t *testing.T) {
	half := Evaluate(Snapshot{QueueDepth: 50, ThroughputMBPerS: 20}, defaultWeights)
	assert.InDelta(t, 35.0/2, float64(half.Value), 1)
}
