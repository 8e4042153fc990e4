// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scanner

import (
	"sync"

	"github.com/allenjin-login/usbthief/internal/config"
	"github.com/allenjin-login/usbthief/internal/device"
	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/internal/scheduler"
	"github.com/allenjin-login/usbthief/pkg/log"
)

// Supervisor enforces spec §4.E's "exactly one Scanner per IDLE device"
// invariant by reacting to device lifecycle events on the bus instead of
// polling the Manager, the same event-driven wiring the teacher uses to
// react to external state changes rather than looping on it.
type Supervisor struct {
	store   *config.Store
	rule    scheduler.PriorityRule
	queue   scheduler.Queue
	bus     *eventbus.Bus
	manager *device.Manager

	mu       sync.Mutex
	scanners map[string]*Scanner
	subs     []eventbus.Subscription
}

// NewSupervisor builds a Supervisor. Call Start to begin reacting to
// device events; call Stop to tear down every running Scanner.
func NewSupervisor(store *config.Store, rule scheduler.PriorityRule, queue scheduler.Queue, bus *eventbus.Bus, manager *device.Manager) *Supervisor {
	return &Supervisor{
		store:    store,
		rule:     rule,
		queue:    queue,
		bus:      bus,
		manager:  manager,
		scanners: make(map[string]*Scanner),
	}
}

// Start subscribes to the device lifecycle events that bound a
// Scanner's lifetime: DeviceInserted always begins a fresh mount
// session; a DeviceStateChanged into IDLE from anything other than
// SCANNING also begins one (spec §4.D Enable, which does not re-mount
// and therefore never fires DeviceInserted); DeviceRemoved and a
// DeviceStateChanged away from IDLE/SCANNING both end the session.
func (sv *Supervisor) Start() {
	sv.subs = append(sv.subs,
		eventbus.Subscribe(sv.bus, sv.onInserted),
		eventbus.Subscribe(sv.bus, sv.onStateChanged),
		eventbus.Subscribe(sv.bus, sv.onRemoved),
	)
}

// Stop unsubscribes from the bus and stops every Scanner currently
// running, in no particular order.
func (sv *Supervisor) Stop() {
	for _, sub := range sv.subs {
		sv.bus.Unsubscribe(sub)
	}
	sv.subs = nil

	sv.mu.Lock()
	scanners := make([]*Scanner, 0, len(sv.scanners))
	for _, s := range sv.scanners {
		scanners = append(scanners, s)
	}
	sv.scanners = make(map[string]*Scanner)
	sv.mu.Unlock()

	for _, s := range scanners {
		s.Stop()
	}
}

func (sv *Supervisor) onInserted(e eventbus.DeviceInserted) {
	sv.startScanner(e.Device.Serial, e.Device.MountPoint)
}

func (sv *Supervisor) onStateChanged(e eventbus.DeviceStateChanged) {
	switch e.NewState {
	case "IDLE":
		if e.OldState == "SCANNING" {
			return // the scanner that just finished Phase 1 is already running
		}
		sv.startScanner(e.Device.Serial, e.Device.MountPoint)
	case "PAUSED", "DISABLED", "OFFLINE", "UNAVAILABLE":
		sv.stopScanner(e.Device.Serial)
	}
}

func (sv *Supervisor) onRemoved(e eventbus.DeviceRemoved) {
	sv.stopScanner(e.Device.Serial)
}

func (sv *Supervisor) startScanner(serial, mountPoint string) {
	if mountPoint == "" {
		return
	}

	sv.mu.Lock()
	if _, running := sv.scanners[serial]; running {
		sv.mu.Unlock()
		return
	}
	s := New(serial, mountPoint, sv.store, sv.rule, sv.queue, sv.bus, sv.manager)
	sv.scanners[serial] = s
	sv.mu.Unlock()

	log.Infof("scanner: starting scan session for device %s", serial)
	// Run only blocks for Phase 1; if watch_enabled it launches Phase 2
	// in its own goroutine and returns while that phase keeps going, so
	// the scanners map entry must persist past Run's return and is only
	// ever cleared by stopScanner reacting to a later lifecycle event.
	go s.Run()
}

func (sv *Supervisor) stopScanner(serial string) {
	sv.mu.Lock()
	s, ok := sv.scanners[serial]
	if ok {
		delete(sv.scanners, serial)
	}
	sv.mu.Unlock()
	if ok {
		s.Stop()
	}
}
