// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scanner implements the per-device file discovery from spec
// §4.E: a filepath.WalkDir initial traversal (Phase 1) and an fsnotify
// incremental watch (Phase 2), both running accepted paths through the
// same Filter before handing them to the scheduler.
package scanner

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/allenjin-login/usbthief/internal/config"
)

// SuffixMode selects how suffix_whitelist/suffix_blacklist are applied.
type SuffixMode int

const (
	SuffixNone SuffixMode = iota
	SuffixWhitelist
	SuffixBlacklist
)

func parseSuffixMode(s string) SuffixMode {
	switch strings.ToUpper(s) {
	case "WHITELIST":
		return SuffixWhitelist
	case "BLACKLIST":
		return SuffixBlacklist
	default:
		return SuffixNone
	}
}

// Filter is the pure predicate from spec §6's Filter category, snapshot
// once per Phase-1 walk or watch-batch drain so a config change mid-walk
// cannot produce an inconsistent accept/reject mix for a single pass.
type Filter struct {
	maxSize       int64
	maxFileSize   int64
	timeEnabled   bool
	olderThan     time.Duration
	includeHidden bool
	skipSymlinks  bool
	suffixMode    SuffixMode
	whitelist     map[string]bool
	blacklist     map[string]bool
	allowNoExt    bool
}

// NewFilter snapshots the Filter and Copy categories from store.
func NewFilter(store *config.Store) Filter {
	f := Filter{
		maxSize:       store.GetLong("max_size"),
		maxFileSize:   store.GetLong("max_file_size"),
		timeEnabled:   store.GetBool("time_enabled"),
		includeHidden: store.GetBool("include_hidden"),
		skipSymlinks:  store.GetBool("skip_symlinks"),
		suffixMode:    parseSuffixMode(store.GetString("suffix_mode")),
		whitelist:     toSet(store.GetStringList("suffix_whitelist")),
		blacklist:     toSet(store.GetStringList("suffix_blacklist")),
		allowNoExt:    store.GetBool("allow_no_ext"),
	}
	f.olderThan = timeValueToDuration(store.GetInt("time_value"), store.GetString("time_unit"))
	return f
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[normalizeSuffix(s)] = true
	}
	return out
}

func normalizeSuffix(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "."))
}

func timeValueToDuration(value int, unit string) time.Duration {
	n := time.Duration(value)
	switch strings.ToLower(unit) {
	case "seconds", "second", "sec":
		return n * time.Second
	case "minutes", "minute", "min":
		return n * time.Minute
	case "hours", "hour":
		return n * time.Hour
	default: // "days" and any unrecognized unit default to days
		return n * 24 * time.Hour
	}
}

// Candidate is the minimal set of attributes Accept needs, decoupled
// from os.FileInfo/fs.DirEntry so both the walker and the watch-batch
// drainer (which only has a path and must re-stat) can build one.
type Candidate struct {
	Path      string
	Size      int64
	ModTime   time.Time
	IsSymlink bool
	IsHidden  bool
}

// Accept reports whether c passes every configured filter rule, and a
// short reason when it does not (for debug logging, never user-facing).
func (f Filter) Accept(c Candidate) (bool, string) {
	if !f.includeHidden && isHiddenPath(c.Path) {
		return false, "hidden"
	}
	if f.skipSymlinks && c.IsSymlink {
		return false, "symlink"
	}
	if f.maxFileSize > 0 && c.Size > f.maxFileSize {
		return false, "exceeds max_file_size"
	}
	if f.maxSize > 0 && c.Size > f.maxSize {
		return false, "exceeds max_size"
	}
	if f.timeEnabled && time.Since(c.ModTime) < f.olderThan {
		return false, "too recent"
	}

	ext := normalizeSuffix(filepath.Ext(c.Path))
	switch f.suffixMode {
	case SuffixWhitelist:
		if ext == "" {
			if !f.allowNoExt {
				return false, "no extension"
			}
			return true, ""
		}
		if !f.whitelist[ext] {
			return false, "not in suffix_whitelist"
		}
	case SuffixBlacklist:
		if ext == "" && !f.allowNoExt {
			return false, "no extension"
		}
		if f.blacklist[ext] {
			return false, "in suffix_blacklist"
		}
	default:
		if ext == "" && !f.allowNoExt {
			return false, "no extension"
		}
	}
	return true, ""
}

func isHiddenPath(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." && part != "" {
			return true
		}
	}
	return false
}
