// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package eventbus

import "time"

// Event is the minimum contract every published value must satisfy:
// spec §4.B requires a monotonic timestamp and a short human description
// on every event.
type Event interface {
	Timestamp() time.Time
	Description() string
}

// Base embeds into every concrete event so they share the Timestamp and
// Description plumbing without repeating it. Grounded on the teacher's
// habit of a small embeddable "common fields" struct (e.g.
// schema.BaseJob in the source tree this package is adapted from).
type Base struct {
	At   time.Time
	Desc string
}

func NewBase(desc string) Base {
	return Base{At: time.Now(), Desc: desc}
}

func (b Base) Timestamp() time.Time { return b.At }
func (b Base) Description() string  { return b.Desc }

// DeviceInfo is a non-owning, immutable snapshot of device state carried
// in events. It intentionally duplicates rather than imports
// internal/device's Device type: the event bus must not depend on the
// device package (device depends on eventbus to publish), so payloads
// carry a value snapshot instead of a live reference, consistent with
// spec §9's "break cyclic references with identity, not owning
// reference" redesign note.
type DeviceInfo struct {
	Serial      string
	MountPoint  string
	VolumeName  string
	VolumeType  string
	TotalBytes  int64
	UsableBytes int64
	SystemDisk  bool
	State       string
}

type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultFail
	ResultCancel
)

func (r ResultKind) String() string {
	switch r {
	case ResultSuccess:
		return "SUCCESS"
	case ResultFail:
		return "FAIL"
	case ResultCancel:
		return "CANCEL"
	default:
		return "UNKNOWN"
	}
}

type NewDeviceJoined struct {
	Base
	Device DeviceInfo
}

func NewDeviceJoinedEvent(d DeviceInfo) NewDeviceJoined {
	return NewDeviceJoined{Base: NewBase("new device joined: " + d.Serial), Device: d}
}

type DeviceInserted struct {
	Base
	Device DeviceInfo
}

func NewDeviceInserted(d DeviceInfo) DeviceInserted {
	return DeviceInserted{Base: NewBase("device inserted: " + d.Serial), Device: d}
}

type DeviceRemoved struct {
	Base
	Device DeviceInfo
}

func NewDeviceRemoved(d DeviceInfo) DeviceRemoved {
	return DeviceRemoved{Base: NewBase("device removed: " + d.Serial), Device: d}
}

type DeviceStateChanged struct {
	Base
	Device   DeviceInfo
	OldState string
	NewState string
}

func NewDeviceStateChanged(d DeviceInfo, oldState, newState string) DeviceStateChanged {
	return DeviceStateChanged{
		Base:     NewBase("device " + d.Serial + " " + oldState + " -> " + newState),
		Device:   d,
		OldState: oldState,
		NewState: newState,
	}
}

type FileIndexed struct {
	Base
	Path         string
	Size         int64
	TotalIndexed int
}

func NewFileIndexed(path string, size int64, totalIndexed int) FileIndexed {
	return FileIndexed{Base: NewBase("indexed " + path), Path: path, Size: size, TotalIndexed: totalIndexed}
}

type DuplicateDetected struct {
	Base
	Path string
}

func NewDuplicateDetected(path string) DuplicateDetected {
	return DuplicateDetected{Base: NewBase("duplicate " + path), Path: path}
}

type IndexLoaded struct {
	Base
	Count int
}

func NewIndexLoaded(count int) IndexLoaded {
	return IndexLoaded{Base: NewBase("index loaded"), Count: count}
}

type IndexSaved struct {
	Base
	Count int
}

func NewIndexSaved(count int) IndexSaved {
	return IndexSaved{Base: NewBase("index saved"), Count: count}
}

type CopyCompleted struct {
	Base
	Source      string
	Destination string // empty means "none" (duplicate, or never written)
	FileSize    int64
	BytesCopied int64
	Result      ResultKind
}

func NewCopyCompleted(source, destination string, fileSize, bytesCopied int64, result ResultKind) CopyCompleted {
	return CopyCompleted{
		Base:        NewBase("copy " + result.String() + " " + source),
		Source:      source,
		Destination: destination,
		FileSize:    fileSize,
		BytesCopied: bytesCopied,
		Result:      result,
	}
}

type StorageLevel int

const (
	StorageLow StorageLevel = iota
	StorageCritical
)

func (l StorageLevel) String() string {
	if l == StorageCritical {
		return "CRITICAL"
	}
	return "LOW"
}

type StorageLowEvent struct {
	Base
	WorkDir   string
	Free      int64
	Threshold int64
	Level     StorageLevel
}

func NewStorageLow(workDir string, free, threshold int64, level StorageLevel) StorageLowEvent {
	return StorageLowEvent{Base: NewBase("storage low: " + workDir), WorkDir: workDir, Free: free, Threshold: threshold, Level: level}
}

type StorageRecovered struct {
	Base
	WorkDir string
	Free    int64
}

func NewStorageRecovered(workDir string, free int64) StorageRecovered {
	return StorageRecovered{Base: NewBase("storage recovered: " + workDir), WorkDir: workDir, Free: free}
}

type FilesRecycled struct {
	Base
	Files      []string
	BytesFreed int64
	Strategy   string
}

func NewFilesRecycled(files []string, bytesFreed int64, strategy string) FilesRecycled {
	return FilesRecycled{Base: NewBase("recycled files"), Files: files, BytesFreed: bytesFreed, Strategy: strategy}
}

type EmptyFoldersDeleted struct {
	Base
	Folders []string
	Count   int
}

func NewEmptyFoldersDeleted(folders []string) EmptyFoldersDeleted {
	return EmptyFoldersDeleted{Base: NewBase("deleted empty folders"), Folders: folders, Count: len(folders)}
}
