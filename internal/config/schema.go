// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// ValueType is the declared type of a configuration Entry. Unlike the
// teacher's compiled-in ProgramConfig struct (internal/config/config.go in
// the source tree this package is grounded on), entries here are resolved
// at runtime by key so the store can be introspected, imported and
// exported generically.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeLong
	TypeBool
	TypeString
	TypeStringList
)

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeStringList:
		return "string-list"
	default:
		return "unknown"
	}
}

// Entry declares one configuration key: its category, value type, default
// and a human description. Categories mirror the authoritative list in
// spec §6.
type Entry struct {
	Key         string
	Category    string
	Type        ValueType
	Default     any
	Description string
}

// Categories, matching spec §6 verbatim.
const (
	CategoryThreadPool = "Thread Pool"
	CategoryScanner    = "Scanner"
	CategoryIndex      = "Index"
	CategoryCopy       = "Copy"
	CategoryWatch      = "Watch"
	CategoryPaths      = "Paths"
	CategoryScheduler  = "Scheduler"
	CategoryRateLimit  = "Rate limit"
	CategoryStorage    = "Storage"
	CategoryFilter     = "Filter"
	CategoryBlacklist  = "Blacklist"
	CategoryLoad       = "Load weights"
)

// Keys, declared once as the schema. Schema() returns a defensive copy of
// this slice in declaration order so export output is deterministic.
var entries = []Entry{
	{"core_pool", CategoryThreadPool, TypeInt, 2, "Minimum number of copy worker threads."},
	{"max_pool", CategoryThreadPool, TypeInt, 8, "Maximum number of copy worker threads."},
	{"keep_alive_sec", CategoryThreadPool, TypeInt, 60, "Idle time before a worker thread above core_pool exits."},
	{"queue_capacity", CategoryThreadPool, TypeInt, 256, "Bounded task queue capacity for the executor."},

	{"initial_delay_sec", CategoryScanner, TypeInt, 2, "Delay before the first device scan."},
	{"scan_interval_sec", CategoryScanner, TypeInt, 5, "Interval between device discovery scans."},

	{"save_initial_delay_sec", CategoryIndex, TypeInt, 10, "Delay before the first index save."},
	{"save_interval_sec", CategoryIndex, TypeInt, 30, "Interval between index saves when dirty."},
	{"index_path", CategoryIndex, TypeString, "./var/index.json", "Path to the persisted content index."},

	{"buffer_size", CategoryCopy, TypeInt, 64 * 1024, "Copy stream buffer size in bytes."},
	{"hash_buffer_size", CategoryCopy, TypeInt, 64 * 1024, "Not read by the copy engine; the hash is fed from the buffer_size copy chunk."},
	{"max_file_size", CategoryCopy, TypeLong, int64(10) * 1024 * 1024 * 1024, "Files larger than this are rejected with FILE_TOO_LARGE."},
	{"retry_count", CategoryCopy, TypeInt, 3, "Transient I/O retry attempts before a permanent FAIL."},
	{"timeout_ms", CategoryCopy, TypeInt, 30000, "I/O timeout in milliseconds."},

	{"watch_enabled", CategoryWatch, TypeBool, true, "Enable Phase 2 incremental filesystem watch."},
	{"watch_threshold", CategoryWatch, TypeInt, 20, "Pending changes before a watch batch drains."},
	{"watch_reset_interval_sec", CategoryWatch, TypeInt, 5, "Watch batch timer reset interval."},

	{"work_path", CategoryPaths, TypeString, "./var/work", "Root of the content-addressed work directory."},

	{"tick_interval_ms", CategoryScheduler, TypeInt, 500, "Dispatcher tick interval."},
	{"initial_delay_ms", CategoryScheduler, TypeInt, 0, "Delay before the first dispatcher tick."},
	{"low_batch", CategoryScheduler, TypeInt, 30, "Tasks drained per tick under LOW load."},
	{"medium_batch", CategoryScheduler, TypeInt, 50, "Tasks drained per tick under MEDIUM load."},
	{"high_batch", CategoryScheduler, TypeInt, 0, "Tasks drained per tick under HIGH load (accumulation)."},
	{"high_priority_threshold", CategoryScheduler, TypeInt, 80, "Priority at or above which LOW-load dispatch bypasses the batch budget."},

	{"copy_rate_limit", CategoryRateLimit, TypeLong, int64(0), "Current effective rate limit in bytes/sec (0 = unbounded)."},
	{"copy_rate_limit_base", CategoryRateLimit, TypeLong, int64(50) * 1024 * 1024, "Base rate used by auto-adjust as 100%."},
	{"auto_mode_enabled", CategoryRateLimit, TypeBool, true, "Enable scheduler-driven rate adjustment."},
	{"low_percent", CategoryRateLimit, TypeInt, 100, "Percent of base rate applied under LOW load."},
	{"medium_percent", CategoryRateLimit, TypeInt, 70, "Percent of base rate applied under MEDIUM load."},
	{"high_percent", CategoryRateLimit, TypeInt, 40, "Percent of base rate applied under HIGH load."},
	{"burst_size", CategoryRateLimit, TypeLong, int64(8) * 1024 * 1024, "Token bucket burst capacity in bytes."},
	{"recovery_percent", CategoryRateLimit, TypeInt, 0, "Reserved for gradual rate-limit recovery; not read by the scheduler, so the limit stays monotonic-down for the session whatever its value."},

	{"reserved_bytes", CategoryStorage, TypeLong, int64(1) * 1024 * 1024 * 1024, "Free space below which the recycler engages (LOW)."},
	{"max_bytes", CategoryStorage, TypeLong, int64(0), "Optional hard cap on work directory size (0 = unset)."},
	{"warning_enabled", CategoryStorage, TypeBool, true, "Emit StorageLow/StorageRecovered events."},
	{"recycler_strategy", CategoryStorage, TypeString, "AUTO", "One of TIME_FIRST, SIZE_FIRST, AUTO."},
	{"protected_age_hours", CategoryStorage, TypeInt, 24, "Entries indexed more recently than this are never recycled, regardless of later duplicate hits."},

	{"max_size", CategoryFilter, TypeLong, int64(0), "Filter: reject files above this size (0 = unset, defer to max_file_size)."},
	{"time_enabled", CategoryFilter, TypeBool, false, "Filter: enable modification-time filtering."},
	{"time_value", CategoryFilter, TypeInt, 0, "Filter: time threshold magnitude."},
	{"time_unit", CategoryFilter, TypeString, "days", "Filter: unit for time_value."},
	{"include_hidden", CategoryFilter, TypeBool, false, "Filter: include dotfiles."},
	{"skip_symlinks", CategoryFilter, TypeBool, true, "Filter: skip symlinks."},
	{"suffix_mode", CategoryFilter, TypeString, "NONE", "One of NONE, WHITELIST, BLACKLIST."},
	{"suffix_whitelist", CategoryFilter, TypeStringList, []string{}, "Suffixes allowed when suffix_mode=WHITELIST."},
	{"suffix_blacklist", CategoryFilter, TypeStringList, []string{}, "Suffixes rejected when suffix_mode=BLACKLIST."},
	{"allow_no_ext", CategoryFilter, TypeBool, true, "Filter: allow files without an extension."},

	{"device_blacklist_by_serial", CategoryBlacklist, TypeStringList, []string{}, "Serials ignored during discovery."},

	{"queue_weight", CategoryLoad, TypeInt, 35, "Load weight: queue depth contribution cap."},
	{"speed_weight", CategoryLoad, TypeInt, 35, "Load weight: inverse copy throughput contribution cap."},
	{"thread_weight", CategoryLoad, TypeInt, 15, "Load weight: worker activity contribution cap."},
	{"rejection_weight", CategoryLoad, TypeInt, 15, "Load weight: rejection pressure contribution cap."},
}

// Schema returns the declared entries in a stable order.
func Schema() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func lookupEntry(key string) (Entry, bool) {
	for _, e := range entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}
