// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package index

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/pkg/log"
)

// Saver periodically flushes an Index to disk. It is grounded on the
// teacher's taskManager.RegisterCommitJobService: a gocron.DurationJob
// that wakes up, does its sync work, and logs how long it took.
type Saver struct {
	sched gocron.Scheduler
	job   gocron.Job
}

// NewSaver registers (but does not start) a save job that writes idx to
// path every interval, after an initial delay. The job only writes when
// idx.Dirty() is true.
func NewSaver(idx *Index, bus *eventbus.Bus, path string, initialDelay, interval time.Duration) (*Saver, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	job, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if !idx.Dirty() {
				return
			}
			if err := idx.Save(path); err != nil {
				log.Errorf("index: save to %s failed: %v", path, err)
				return
			}
			bus.PublishAsync(eventbus.NewIndexSaved(idx.Len()))
		}),
		gocron.WithStartAt(gocron.WithStartDateTime(time.Now().Add(initialDelay))),
	)
	if err != nil {
		return nil, err
	}

	return &Saver{sched: sched, job: job}, nil
}

// Start begins the periodic save loop.
func (s *Saver) Start() { s.sched.Start() }

// Stop cooperatively shuts the save loop down.
func (s *Saver) Stop() error { return s.sched.Shutdown() }
