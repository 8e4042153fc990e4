// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIfAbsent(t *testing.T) {
	idx := New()

	ok := idx.InsertIfAbsent(Entry{Key: "abc", Size: 10})
	assert.True(t, ok)
	assert.True(t, idx.Contains("abc"))

	ok = idx.InsertIfAbsent(Entry{Key: "abc", Size: 99})
	assert.False(t, ok, "second insert of the same key must report false")
	assert.Equal(t, 1, idx.Len())
}

func TestTouchUpdatesLastAccess(t *testing.T) {
	idx := New()
	idx.InsertIfAbsent(Entry{Key: "a", Size: 1, LastAccess: time.Now().Add(-time.Hour)})

	before := idx.Snapshot()[0].LastAccess
	idx.Touch("a")
	after := idx.Snapshot()[0].LastAccess

	assert.True(t, after.After(before))
}

func TestRemove(t *testing.T) {
	idx := New()
	idx.InsertIfAbsent(Entry{Key: "a", Size: 1})

	assert.True(t, idx.Remove("a"))
	assert.False(t, idx.Contains("a"))
	assert.False(t, idx.Remove("a"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New()
	idx.InsertIfAbsent(Entry{Key: "a", Size: 1, Destination: "/work/a"})
	idx.InsertIfAbsent(Entry{Key: "b", Size: 2, Destination: "/work/b"})

	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, idx.Save(path))
	assert.False(t, idx.Dirty())

	loaded := New()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Len())
	assert.True(t, loaded.Contains("a"))
	assert.True(t, loaded.Contains("b"))
}

func TestLoadMissingFileIsEmptyNotError(t *testing.T) {
	idx := New()
	err := idx.Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	idx := New()
	idx.InsertIfAbsent(Entry{Key: "stale", Size: 1})

	err := idx.Load(path)
	assert.Error(t, err)
	assert.Equal(t, 0, idx.Len(), "corrupt load must reset to empty, not keep stale state")
}

func TestSelectForReclamationRespectsProtectedAge(t *testing.T) {
	idx := New()
	idx.InsertIfAbsent(Entry{Key: "old", Size: 10, LastAccess: time.Now().Add(-48 * time.Hour)})
	idx.InsertIfAbsent(Entry{Key: "new", Size: 10, LastAccess: time.Now()})

	selected := idx.SelectForReclamation(TimeFirst, false, 24*time.Hour)

	require.Len(t, selected, 1)
	assert.Equal(t, ChecksumKey("old"), selected[0].Key)
}

func TestSelectForReclamationIgnoresTouchesSinceIndexing(t *testing.T) {
	idx := New()
	idx.InsertIfAbsent(Entry{Key: "ancient", Size: 10, LastAccess: time.Now().Add(-48 * time.Hour)})

	// A duplicate hit moves LastAccess to now via Touch, but the entry
	// was still indexed 48 hours ago and must not be re-protected by it.
	idx.Touch("ancient")

	selected := idx.SelectForReclamation(TimeFirst, false, 24*time.Hour)

	require.Len(t, selected, 1)
	assert.Equal(t, ChecksumKey("ancient"), selected[0].Key)
}

func TestSelectForReclamationSizeFirst(t *testing.T) {
	idx := New()
	old := time.Now().Add(-48 * time.Hour)
	idx.InsertIfAbsent(Entry{Key: "small", Size: 10, LastAccess: old})
	idx.InsertIfAbsent(Entry{Key: "big", Size: 1000, LastAccess: old})

	selected := idx.SelectForReclamation(SizeFirst, false, time.Hour)

	require.Len(t, selected, 2)
	assert.Equal(t, ChecksumKey("big"), selected[0].Key)
}

func TestSelectForReclamationAutoSwitchesOnCritical(t *testing.T) {
	idx := New()
	old := time.Now().Add(-48 * time.Hour)
	idx.InsertIfAbsent(Entry{Key: "small", Size: 10, LastAccess: old})
	idx.InsertIfAbsent(Entry{Key: "big", Size: 1000, LastAccess: old.Add(time.Hour)})

	notCritical := idx.SelectForReclamation(Auto, false, time.Hour)
	assert.Equal(t, ChecksumKey("small"), notCritical[0].Key, "AUTO not critical behaves as TIME_FIRST")

	critical := idx.SelectForReclamation(Auto, true, time.Hour)
	assert.Equal(t, ChecksumKey("big"), critical[0].Key, "AUTO critical behaves as SIZE_FIRST")
}
