// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scheduler

import (
	"strings"
)

const (
	bytesPerMiB = 1024 * 1024
	sizeFloor   = 1 * bytesPerMiB
	sizeCeil    = 10 * bytesPerMiB
)

// extensionBase is the documented default extension→base table from
// spec §4.H. Lookups are case-insensitive and ignore the leading dot.
var extensionBase = map[string]int{
	"pdf":  10,
	"docx": 9,
	"xlsx": 9,
	"pptx": 8,
	"txt":  7,
	"jpg":  6,
	"png":  6,
	"tmp":  1,
	"log":  1,
}

const defaultBase = 5

// PriorityRule computes task priority as a pure function of path, size
// and the extension table: base*10 + size_adj, clamped to [0,100]. No
// hidden state, no config lookups beyond the table passed in.
type PriorityRule struct {
	base map[string]int
}

// NewPriorityRule builds a rule from the default table merged with any
// overrides (nil uses the defaults verbatim).
func NewPriorityRule(overrides map[string]int) PriorityRule {
	table := make(map[string]int, len(extensionBase)+len(overrides))
	for k, v := range extensionBase {
		table[k] = v
	}
	for k, v := range overrides {
		table[strings.ToLower(strings.TrimPrefix(k, "."))] = v
	}
	return PriorityRule{base: table}
}

// Priority computes the priority of a file at path with the given size
// in bytes.
func (r PriorityRule) Priority(path string, size int64) int {
	base, ok := r.base[extensionOf(path)]
	if !ok {
		base = defaultBase
	}

	sizeAdj := 0
	switch {
	case size < sizeFloor:
		sizeAdj = 2
	case size >= sizeCeil:
		sizeAdj = -2
	}

	p := base*10 + sizeAdj
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func extensionOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || i == len(path)-1 {
		return ""
	}
	slash := strings.LastIndexAny(path, `/\`)
	if i < slash {
		return ""
	}
	return strings.ToLower(path[i+1:])
}
