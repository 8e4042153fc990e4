// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package device implements the device lifecycle tracker from spec
// §4.D: device identity, the OFFLINE/UNAVAILABLE/IDLE/SCANNING/PAUSED/DISABLED
// state machine, and the Manager that discovers, reconciles, and
// persists it. The Manager's concurrency shape (a single lock guarding
// a map[string]*Device, a periodic reconciliation pass, and event
// emission after the lock is released) is grounded on the teacher's
// repository singletons (sync.Once + guarded state in
// internal/repository/dbConnection.go) composed with the scan-loop
// idiom in internal/taskManager (periodic gocron jobs).
package device

import (
	"github.com/allenjin-login/usbthief/internal/eventbus"
)

// State is a position in the device lifecycle state machine (spec §3).
type State int

const (
	Offline State = iota
	Unavailable
	Idle
	Scanning
	Paused
	Disabled
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Unavailable:
		return "UNAVAILABLE"
	case Idle:
		return "IDLE"
	case Scanning:
		return "SCANNING"
	case Paused:
		return "PAUSED"
	case Disabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// Volume describes the mount-time properties of a device, as reported
// by a VolumeLister.
type Volume struct {
	Serial      string
	MountPoint  string
	VolumeName  string
	VolumeType  string
	TotalBytes  int64
	UsableBytes int64
	SystemDisk  bool
}

// Device is a single tracked removable volume. Its identity (Serial)
// never changes after construction (spec §3 invariant i); every other
// field is mutated only by Manager, under Manager's lock.
type Device struct {
	Serial string

	mountPoint  string
	volumeName  string
	volumeType  string
	totalBytes  int64
	usableBytes int64
	systemDisk  bool
	state       State

	joinedOnce bool
}

func newDevice(serial string) *Device {
	return &Device{Serial: serial, state: Offline}
}

// Snapshot returns an immutable value copy of the device's current
// fields, safe to read without the manager's lock (spec §4.D: "reads
// return immutable snapshots").
func (d *Device) Snapshot() eventbus.DeviceInfo {
	return eventbus.DeviceInfo{
		Serial:      d.Serial,
		MountPoint:  d.mountPoint,
		VolumeName:  d.volumeName,
		VolumeType:  d.volumeType,
		TotalBytes:  d.totalBytes,
		UsableBytes: d.usableBytes,
		SystemDisk:  d.systemDisk,
		State:       d.state.String(),
	}
}

func (d *Device) State() State { return d.state }

func (d *Device) mount(v Volume) {
	d.mountPoint = v.MountPoint
	d.volumeName = v.VolumeName
	d.volumeType = v.VolumeType
	d.totalBytes = v.TotalBytes
	d.usableBytes = v.UsableBytes
	d.systemDisk = v.SystemDisk
}

func (d *Device) unmount() {
	d.mountPoint = ""
}
