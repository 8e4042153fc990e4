// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/internal/repository"
	"github.com/allenjin-login/usbthief/pkg/log"
)

// Manager owns the live set of devices, keyed by serial (spec §4.D).
// All mutation is serialized behind mu; reads return Snapshot copies
// taken while the lock is held, then published to the bus after it is
// released, matching spec's "emission after lock release" requirement
// and the event bus's own ordering guarantee.
type Manager struct {
	mu sync.Mutex

	devices   map[string]*Device
	blacklist map[string]bool

	lister     VolumeLister
	bus        *eventbus.Bus
	deviceRepo *repository.DeviceRepository
	blackRepo  *repository.BlacklistRepository

	sched gocron.Scheduler
}

// NewManager constructs a Manager with an empty static blacklist. The
// config store's device_blacklist_by_serial entry (§6) is installed
// with SetStaticBlacklist; it is merged with the runtime blacklist
// repository on every Discover call.
func NewManager(lister VolumeLister, bus *eventbus.Bus, deviceRepo *repository.DeviceRepository, blackRepo *repository.BlacklistRepository) *Manager {
	return &Manager{
		devices:    make(map[string]*Device),
		blacklist:  make(map[string]bool),
		lister:     lister,
		bus:        bus,
		deviceRepo: deviceRepo,
		blackRepo:  blackRepo,
	}
}

// LoadKnown seeds an OFFLINE ghost Device for every serial persisted by
// the device repository (spec §3: "created ... when a persisted serial
// loads as ghost (OFFLINE)"). It must run before the first Discover
// call so that a reappearing serial from a prior process lifetime is
// recognized as already known (reconciliation rule 2: DeviceInserted
// only) instead of being mistaken for brand new (rule 1: a second,
// spec-violating NewDeviceJoined for the same serial's lifetime).
func (m *Manager) LoadKnown() error {
	serials, err := m.deviceRepo.KnownSerials()
	if err != nil {
		return fmt.Errorf("device: load known serials: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, serial := range serials {
		if _, exists := m.devices[serial]; exists {
			continue
		}
		d := newDevice(serial)
		d.joinedOnce = true
		m.devices[serial] = d
	}
	return nil
}

// StartScanLoop registers and starts the periodic discovery scan
// (initial_delay then every scan_interval), grounded on the teacher's
// taskManager.Start gocron usage.
func (m *Manager) StartScanLoop(initialDelay, interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("device: create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := m.Discover(); err != nil {
				log.Errorf("device: discover failed: %v", err)
			}
		}),
		gocron.WithStartAt(gocron.WithStartDateTime(time.Now().Add(initialDelay))),
	)
	if err != nil {
		return fmt.Errorf("device: register scan job: %w", err)
	}

	m.sched = sched
	sched.Start()
	return nil
}

// StopScanLoop cooperatively shuts the scan loop down.
func (m *Manager) StopScanLoop() error {
	if m.sched == nil {
		return nil
	}
	return m.sched.Shutdown()
}

// SetStaticBlacklist replaces the statically configured blacklist
// (config store category, §6) with serials. Already-mounted devices
// matching a newly added serial are taken offline on the next Discover.
func (m *Manager) SetStaticBlacklist(serials []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist = make(map[string]bool, len(serials))
	for _, s := range serials {
		m.blacklist[s] = true
	}
}

// Discover enumerates mounted volumes and reconciles them against the
// known-device set, applying spec §4.D's four reconciliation rules.
func (m *Manager) Discover() error {
	volumes, err := m.lister.List()
	if err != nil {
		return fmt.Errorf("device: list volumes: %w", err)
	}

	runtimeBlacklist, err := m.blackRepo.Serials()
	if err != nil {
		return fmt.Errorf("device: load blacklist: %w", err)
	}

	m.mu.Lock()

	blacklisted := make(map[string]bool, len(m.blacklist)+len(runtimeBlacklist))
	for s := range m.blacklist {
		blacklisted[s] = true
	}
	for _, s := range runtimeBlacklist {
		blacklisted[s] = true
	}

	seen := make(map[string]bool, len(volumes))
	type pending struct {
		kind string // "joined", "inserted", "removed"
		info eventbus.DeviceInfo
		old  string
	}
	var events []pending

	for _, v := range volumes {
		if blacklisted[v.Serial] || v.SystemDisk {
			continue
		}
		seen[v.Serial] = true

		d, known := m.devices[v.Serial]
		if !known {
			d = newDevice(v.Serial)
			m.devices[v.Serial] = d
			d.mount(v)
			d.state = Idle
			d.joinedOnce = true
			if err := m.deviceRepo.MarkKnown(v.Serial); err != nil {
				log.Errorf("device: mark known %q: %v", v.Serial, err)
			}
			events = append(events, pending{kind: "joined", info: d.Snapshot()})
			events = append(events, pending{kind: "inserted", info: d.Snapshot()})
			continue
		}

		if d.state == Offline {
			old := d.state.String()
			d.mount(v)
			d.state = Idle
			events = append(events, pending{kind: "inserted", info: d.Snapshot(), old: old})
		}
	}

	// Covers rules 3 and 4: a known serial absent from this scan either
	// because it was physically removed or because it was just
	// blacklisted (blacklisted serials are filtered out of seen above)
	// goes OFFLINE the same way.
	for serial, d := range m.devices {
		if seen[serial] {
			continue
		}
		if d.state == Offline {
			continue
		}
		d.state = Offline
		d.unmount()
		events = append(events, pending{kind: "removed", info: d.Snapshot()})
	}

	m.mu.Unlock()

	for _, e := range events {
		switch e.kind {
		case "joined":
			m.bus.PublishSync(eventbus.NewDeviceJoinedEvent(e.info))
		case "inserted":
			m.bus.PublishSync(eventbus.NewDeviceInserted(e.info))
		case "removed":
			m.bus.PublishSync(eventbus.NewDeviceRemoved(e.info))
		}
	}
	return nil
}

// Enable transitions a PAUSED or DISABLED device back towards IDLE. The
// system disk is never eligible (spec §3 invariant iii).
func (m *Manager) Enable(serial string) error {
	m.mu.Lock()
	d, ok := m.devices[serial]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("device: unknown serial %q", serial)
	}
	if d.systemDisk {
		m.mu.Unlock()
		return fmt.Errorf("device: %q is the system disk, cannot be enabled", serial)
	}
	old := d.state.String()
	if d.mountPoint != "" {
		d.state = Idle
	} else {
		d.state = Offline
	}
	info := d.Snapshot()
	m.mu.Unlock()

	m.publishStateChange(info, old)
	return nil
}

// Disable transitions a device to DISABLED regardless of its current
// activity.
func (m *Manager) Disable(serial string) error {
	m.mu.Lock()
	d, ok := m.devices[serial]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("device: unknown serial %q", serial)
	}
	old := d.state.String()
	d.state = Disabled
	info := d.Snapshot()
	m.mu.Unlock()

	m.publishStateChange(info, old)
	return nil
}

// MarkScanning transitions an IDLE device to SCANNING. It is a no-op
// (returns false) if the device is not currently IDLE, so a scanner
// racing a PAUSED/DISABLED/OFFLINE transition never clobbers it.
func (m *Manager) MarkScanning(serial string) bool {
	m.mu.Lock()
	d, ok := m.devices[serial]
	if !ok || d.state != Idle {
		m.mu.Unlock()
		return false
	}
	old := d.state.String()
	d.state = Scanning
	info := d.Snapshot()
	m.mu.Unlock()

	m.publishStateChange(info, old)
	return true
}

// MarkIdle transitions a SCANNING device back to IDLE. A no-op if the
// device moved away from SCANNING in the meantime (e.g. unmounted).
func (m *Manager) MarkIdle(serial string) {
	m.mu.Lock()
	d, ok := m.devices[serial]
	if !ok || d.state != Scanning {
		m.mu.Unlock()
		return
	}
	old := d.state.String()
	d.state = Idle
	info := d.Snapshot()
	m.mu.Unlock()

	m.publishStateChange(info, old)
}

// MarkUnavailable transitions a device into UNAVAILABLE after a
// subtree-enumeration failure (spec §4.E failure semantics).
func (m *Manager) MarkUnavailable(serial string) {
	m.mu.Lock()
	d, ok := m.devices[serial]
	if !ok {
		m.mu.Unlock()
		return
	}
	old := d.state.String()
	d.state = Unavailable
	info := d.Snapshot()
	m.mu.Unlock()

	m.publishStateChange(info, old)
}

// MountPoint returns the current mount point for serial, and whether
// the device is known at all.
func (m *Manager) MountPoint(serial string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[serial]
	if !ok {
		return "", false
	}
	return d.mountPoint, true
}

// publishStateChange emits a DeviceStateChanged event. Callers must
// have already released m.mu: every long-lived Manager invariant
// ("reads return immutable snapshots", "transitions broadcast after
// lock release") assumes the bus never fires with the lock held.
func (m *Manager) publishStateChange(info eventbus.DeviceInfo, old string) {
	m.bus.PublishSync(eventbus.NewDeviceStateChanged(info, old, info.State))
}

// RemoveCompletely forgets serial from the known set and drops its
// in-memory Device, per spec §4.D.
func (m *Manager) RemoveCompletely(serial string) error {
	m.mu.Lock()
	delete(m.devices, serial)
	m.mu.Unlock()

	if err := m.deviceRepo.Forget(serial); err != nil {
		return fmt.Errorf("device: forget %q: %w", serial, err)
	}
	return nil
}

// Get returns a snapshot of the device with the given serial, if any.
func (m *Manager) Get(serial string) (eventbus.DeviceInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[serial]
	if !ok {
		return eventbus.DeviceInfo{}, false
	}
	return d.Snapshot(), true
}

// Snapshot returns an immutable copy of every currently tracked device.
func (m *Manager) Snapshot() []eventbus.DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]eventbus.DeviceInfo, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Snapshot())
	}
	return out
}
