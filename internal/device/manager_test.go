// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/internal/repository"
)

func testRepos(t *testing.T) (*repository.DeviceRepository, *repository.BlacklistRepository) {
	path := filepath.Join(t.TempDir(), "usbthief.db")
	repository.Connect(path)
	conn := repository.GetConnection()
	return repository.NewDeviceRepository(conn), repository.NewBlacklistRepository(conn)
}

func newTestManager(t *testing.T, volumes []Volume) (*Manager, *eventbus.Bus) {
	deviceRepo, blackRepo := testRepos(t)
	bus := eventbus.New()
	lister := VolumeListerFunc(func() ([]Volume, error) { return volumes, nil })
	return NewManager(lister, bus, deviceRepo, blackRepo), bus
}

func TestDiscoverJoinsNewSerial(t *testing.T) {
	m, bus := newTestManager(t, []Volume{{Serial: "S1", MountPoint: "/media/s1"}})

	var joined, inserted bool
	eventbus.Subscribe(bus, func(e eventbus.NewDeviceJoined) { joined = true })
	eventbus.Subscribe(bus, func(e eventbus.DeviceInserted) { inserted = true })

	require.NoError(t, m.Discover())

	info, ok := m.Get("S1")
	require.True(t, ok)
	assert.Equal(t, "IDLE", info.State)
	assert.True(t, joined)
	assert.True(t, inserted)
}

func TestDiscoverSecondSightingOfKnownOfflineDeviceDoesNotRejoin(t *testing.T) {
	deviceRepo, blackRepo := testRepos(t)
	bus := eventbus.New()
	volumes := []Volume{{Serial: "S1", MountPoint: "/media/s1"}}
	lister := VolumeListerFunc(func() ([]Volume, error) { return volumes, nil })
	m := NewManager(lister, bus, deviceRepo, blackRepo)

	require.NoError(t, m.Discover())

	volumes = nil
	require.NoError(t, m.Discover()) // unmounted -> OFFLINE

	info, ok := m.Get("S1")
	require.True(t, ok)
	assert.Equal(t, "OFFLINE", info.State)

	var joinedCount int
	eventbus.Subscribe(bus, func(e eventbus.NewDeviceJoined) { joinedCount++ })

	volumes = []Volume{{Serial: "S1", MountPoint: "/media/s1"}}
	require.NoError(t, m.Discover()) // remounted -> IDLE, not rejoined

	info, ok = m.Get("S1")
	require.True(t, ok)
	assert.Equal(t, "IDLE", info.State)
	assert.Equal(t, 0, joinedCount, "a previously known device must never re-fire NewDeviceJoined")
}

func TestDiscoverRemovesUnseenDevice(t *testing.T) {
	deviceRepo, blackRepo := testRepos(t)
	bus := eventbus.New()
	volumes := []Volume{{Serial: "S1", MountPoint: "/media/s1"}}
	lister := VolumeListerFunc(func() ([]Volume, error) { return volumes, nil })
	m := NewManager(lister, bus, deviceRepo, blackRepo)

	require.NoError(t, m.Discover())

	var removed bool
	eventbus.Subscribe(bus, func(e eventbus.DeviceRemoved) { removed = true })

	volumes = nil
	require.NoError(t, m.Discover())

	info, ok := m.Get("S1")
	require.True(t, ok)
	assert.Equal(t, "OFFLINE", info.State)
	assert.True(t, removed)
}

func TestDiscoverSkipsBlacklistedSerial(t *testing.T) {
	m, _ := newTestManager(t, []Volume{{Serial: "BAD"}})
	m.SetStaticBlacklist([]string{"BAD"})

	require.NoError(t, m.Discover())

	_, ok := m.Get("BAD")
	assert.False(t, ok, "a blacklisted serial must never be tracked")
}

func TestDiscoverSkipsSystemDisk(t *testing.T) {
	m, _ := newTestManager(t, []Volume{{Serial: "ROOT", SystemDisk: true}})

	require.NoError(t, m.Discover())

	_, ok := m.Get("ROOT")
	assert.False(t, ok)
}

func TestEnableRejectsSystemDisk(t *testing.T) {
	m, _ := newTestManager(t, []Volume{{Serial: "S1"}})
	require.NoError(t, m.Discover())

	m.mu.Lock()
	m.devices["S1"].systemDisk = true
	m.mu.Unlock()

	assert.Error(t, m.Enable("S1"))
}

func TestLoadKnownSeedsGhostDevicesAndSuppressesRejoin(t *testing.T) {
	deviceRepo, blackRepo := testRepos(t)
	require.NoError(t, deviceRepo.MarkKnown("S1"))

	bus := eventbus.New()
	volumes := []Volume{{Serial: "S1", MountPoint: "/media/s1"}}
	lister := VolumeListerFunc(func() ([]Volume, error) { return volumes, nil })
	m := NewManager(lister, bus, deviceRepo, blackRepo)

	_, ok := m.Get("S1")
	require.False(t, ok, "no in-memory Device exists before LoadKnown runs")

	require.NoError(t, m.LoadKnown())

	info, ok := m.Get("S1")
	require.True(t, ok)
	assert.Equal(t, "OFFLINE", info.State, "a persisted serial loads as a ghost device")

	var joinedCount int
	eventbus.Subscribe(bus, func(e eventbus.NewDeviceJoined) { joinedCount++ })

	require.NoError(t, m.Discover())

	info, ok = m.Get("S1")
	require.True(t, ok)
	assert.Equal(t, "IDLE", info.State)
	assert.Equal(t, 0, joinedCount, "a serial known from a prior process lifetime must not rejoin")
}

func TestRemoveCompletelyDropsDeviceAndForgetsSerial(t *testing.T) {
	m, _ := newTestManager(t, []Volume{{Serial: "S1"}})
	require.NoError(t, m.Discover())

	require.NoError(t, m.RemoveCompletely("S1"))

	_, ok := m.Get("S1")
	assert.False(t, ok)

	known, err := m.deviceRepo.IsKnown("S1")
	require.NoError(t, err)
	assert.False(t, known)
}
