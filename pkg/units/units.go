// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package units formats byte counts and byte rates the way log lines and
// exported events want to present them: binary-prefixed, two decimals.
package units

import "fmt"

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

// Bytes formats n as a binary-prefixed byte count, e.g. "1.50 MiB".
func Bytes(n int64) string {
	switch {
	case n >= TiB:
		return fmt.Sprintf("%.2f TiB", float64(n)/TiB)
	case n >= GiB:
		return fmt.Sprintf("%.2f GiB", float64(n)/GiB)
	case n >= MiB:
		return fmt.Sprintf("%.2f MiB", float64(n)/MiB)
	case n >= KiB:
		return fmt.Sprintf("%.2f KiB", float64(n)/KiB)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// Rate formats a bytes-per-second throughput, e.g. "12.30 MiB/s".
func Rate(bytesPerSec float64) string {
	return Bytes(int64(bytesPerSec)) + "/s"
}
