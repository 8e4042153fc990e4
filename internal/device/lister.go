// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package device

// VolumeLister enumerates currently mounted volumes. It is an
// interface so the real OS enumeration (reading /proc/mounts or calling
// statfs on each mount point) is swappable for a fake in tests, the
// same seam the teacher uses for its job-source abstractions.
type VolumeLister interface {
	List() ([]Volume, error)
}

// VolumeListerFunc adapts a plain function to VolumeLister.
type VolumeListerFunc func() ([]Volume, error)

func (f VolumeListerFunc) List() ([]Volume, error) { return f() }
