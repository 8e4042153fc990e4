// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package index

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/pkg/log"
)

// DiskUsage reports free and total bytes of the filesystem containing
// path. It is the one place this package touches the OS directly,
// kept narrow so tests can substitute a fake.
type DiskUsage func(path string) (free, total int64, err error)

// StatfsDiskUsage is the production DiskUsage, grounded on the standard
// unix.Statfs syscall wrapper exposed by golang.org/x/sys.
func StatfsDiskUsage(path string) (free, total int64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	free = int64(st.Bavail) * int64(st.Bsize)
	total = int64(st.Blocks) * int64(st.Bsize)
	return free, total, nil
}

// Recycler implements spec §4.C's ghost-file reclamation: when free
// space on the work volume drops below a threshold, it deletes the
// least-wanted indexed artifacts until space recovers, per the
// configured RecyclerStrategy.
type Recycler struct {
	idx          *Index
	bus          *eventbus.Bus
	usage        DiskUsage
	workDir      string
	reserved     int64
	maxBytes     int64
	protectedAge time.Duration
	strategy     RecyclerStrategy

	wasLow bool
}

// NewRecycler wires a Recycler against idx, publishing storage and
// reclamation events on bus.
func NewRecycler(idx *Index, bus *eventbus.Bus, usage DiskUsage, workDir string, reserved, maxBytes int64, protectedAge time.Duration, strategy RecyclerStrategy) *Recycler {
	return &Recycler{
		idx:          idx,
		bus:          bus,
		usage:        usage,
		workDir:      workDir,
		reserved:     reserved,
		maxBytes:     maxBytes,
		protectedAge: protectedAge,
		strategy:     strategy,
	}
}

// Check evaluates current free space and reclaims entries if needed. It
// is meant to be called from the scheduler's periodic tick or after
// every completed copy.
func (r *Recycler) Check() error {
	free, _, err := r.usage(r.workDir)
	if err != nil {
		return err
	}

	critical := free < r.reserved/2
	low := free < r.reserved

	if !low {
		if r.wasLow {
			r.wasLow = false
			r.bus.PublishAsync(eventbus.NewStorageRecovered(r.workDir, free))
		}
		return nil
	}

	if !r.wasLow {
		r.wasLow = true
		level := eventbus.StorageLow
		if critical {
			level = eventbus.StorageCritical
		}
		r.bus.PublishAsync(eventbus.NewStorageLow(r.workDir, free, r.reserved, level))
	}

	return r.reclaim(free, critical)
}

func (r *Recycler) reclaim(free int64, critical bool) error {
	candidates := r.idx.SelectForReclamation(r.strategy, critical, r.protectedAge)

	var freedBytes int64
	var freedFiles []string
	dirs := map[string]bool{}

	for _, e := range candidates {
		if free+freedBytes >= r.reserved {
			break
		}
		if e.Destination == "" {
			continue
		}
		if err := os.Remove(e.Destination); err != nil && !os.IsNotExist(err) {
			log.Errorf("index: recycler could not remove %s: %v", e.Destination, err)
			continue
		}
		r.idx.Remove(e.Key)
		freedBytes += e.Size
		freedFiles = append(freedFiles, e.Destination)
		dirs[filepath.Dir(e.Destination)] = true
	}

	if len(freedFiles) > 0 {
		r.bus.PublishAsync(eventbus.NewFilesRecycled(freedFiles, freedBytes, strategyName(r.strategy)))
	}

	emptied := removeEmptyDirs(dirs)
	if len(emptied) > 0 {
		r.bus.PublishAsync(eventbus.NewEmptyFoldersDeleted(emptied))
	}

	return nil
}

func removeEmptyDirs(dirs map[string]bool) []string {
	var emptied []string
	for d := range dirs {
		entries, err := os.ReadDir(d)
		if err != nil || len(entries) != 0 {
			continue
		}
		if err := os.Remove(d); err == nil {
			emptied = append(emptied, d)
		}
	}
	return emptied
}

func strategyName(s RecyclerStrategy) string {
	switch s {
	case SizeFirst:
		return "SIZE_FIRST"
	case Auto:
		return "AUTO"
	default:
		return "TIME_FIRST"
	}
}
