// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler implements the priority dispatch core from spec
// §4.H: an ordering structure of priority-tagged tasks, a dispatcher
// tick loop that adapts batch size and rate limit to system load, and
// the graceful-degradation requeue path that never drops a task.
package scheduler

import "context"

// CancelToken is handed to a Task's submitter and honored by the copy
// engine. Cancel is idempotent; Cancelled reports whether it has fired.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelToken creates an unfired token.
func NewCancelToken() *CancelToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// Cancel fires the token. Safe to call more than once.
func (c *CancelToken) Cancel() { c.cancel() }

// Cancelled reports whether Cancel has fired.
func (c *CancelToken) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Context returns a context that is done once the token is cancelled,
// suitable for passing straight to the copy engine and rate limiter.
func (c *CancelToken) Context() context.Context { return c.ctx }

// Task is a unit of work submitted by the scanner: copy Source (under
// a device's mount) into the content-addressed work directory.
type Task struct {
	Source       string
	Size         int64
	Priority     int
	DeviceSerial string
	CreatedNanos int64
	Cancel       *CancelToken

	// seq breaks ties between tasks created in the same nanosecond;
	// assigned by the ordering structure on Submit, not by the caller.
	seq int64
}

// Queue is the narrow surface the scanner and any other task producer
// needs: submit without blocking or rejecting, ever (spec §4.H Submit).
type Queue interface {
	Submit(t Task)
}
