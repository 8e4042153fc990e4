// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pathutil lays out the content-addressed work directory (spec
// §4.I/§4.M): a temp-file staging area plus a sharded-by-digest final
// destination, adapted from the teacher's pkg/archive/fsBackend.go
// getDirectory sharding (there, by job ID split into thousands; here,
// by the first two bytes of the checksum hex digest, which distributes
// evenly and needs no knowledge of the domain being sharded).
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TempDir is the staging subdirectory under a work directory where
// in-progress copies are written before their digest is known.
const TempDir = ".tmp"

// TempPath returns a fresh, collision-free path under workDir/.tmp for
// an in-progress copy. The caller renames or removes it once the
// transfer finishes.
func TempPath(workDir string) string {
	return filepath.Join(workDir, TempDir, uuid.NewString()+".tmp")
}

// ShardedDestination returns the final on-disk path for content whose
// hex-encoded digest is hexDigest, under workDir, two levels deep by
// digest prefix (workDir/ab/cd/abcd...<.ext>) so that no single
// directory ends up holding every indexed file.
func ShardedDestination(workDir, hexDigest, ext string) string {
	name := hexDigest
	ext = strings.TrimPrefix(ext, ".")
	if ext != "" {
		name += "." + ext
	}
	if len(hexDigest) < 4 {
		return filepath.Join(workDir, name)
	}
	return filepath.Join(workDir, hexDigest[0:2], hexDigest[2:4], name)
}
