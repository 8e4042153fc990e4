// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// mountRoots is where this host's removable-media manager places new
// mounts; anything outside these prefixes is assumed to be the system
// disk or a network mount and is reported with SystemDisk=true.
var mountRoots = []string{"/media", "/run/media", "/mnt"}

// ProcMountsLister lists mounted volumes by reading /proc/mounts and
// probing each candidate mount point with statfs(2) plus the block
// device's serial attribute under /sys/class/block. This is the
// production VolumeLister; tests substitute a VolumeListerFunc instead.
type ProcMountsLister struct{}

func (ProcMountsLister) List() ([]Volume, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var volumes []Volume
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		device, mountPoint, fsType := fields[0], fields[1], fields[2]
		if !strings.HasPrefix(device, "/dev/") {
			continue
		}

		removable := isUnderRemovableRoot(mountPoint)
		serial := blockSerial(device)
		if serial == "" {
			serial = device
		}

		var stat unix.Statfs_t
		var total, usable int64
		if err := unix.Statfs(mountPoint, &stat); err == nil {
			total = int64(stat.Blocks) * int64(stat.Bsize)
			usable = int64(stat.Bavail) * int64(stat.Bsize)
		}

		volumes = append(volumes, Volume{
			Serial:      serial,
			MountPoint:  mountPoint,
			VolumeName:  filepath.Base(mountPoint),
			VolumeType:  fsType,
			TotalBytes:  total,
			UsableBytes: usable,
			SystemDisk:  !removable,
		})
	}
	return volumes, scanner.Err()
}

func isUnderRemovableRoot(mountPoint string) bool {
	for _, root := range mountRoots {
		if strings.HasPrefix(mountPoint, root+"/") || mountPoint == root {
			return true
		}
	}
	return false
}

// blockSerial reads the vendor-reported serial for the block device
// backing devPath (e.g. "/dev/sdb1" -> "sdb") from sysfs. It returns ""
// if unavailable, in which case the caller falls back to the device
// node path as a less stable identity.
func blockSerial(devPath string) string {
	name := strings.TrimPrefix(devPath, "/dev/")
	name = strings.TrimRightFunc(name, func(r rune) bool { return r >= '0' && r <= '9' })
	if name == "" {
		return ""
	}

	data, err := os.ReadFile(filepath.Join("/sys/class/block", name, "device", "serial"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
