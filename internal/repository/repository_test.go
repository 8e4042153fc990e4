// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *DBConnection {
	t.Cleanup(resetForTest)
	path := filepath.Join(t.TempDir(), "usbthief.db")
	Connect(path)
	return GetConnection()
}

func TestMarkKnownAndKnownSerials(t *testing.T) {
	conn := setup(t)
	repo := NewDeviceRepository(conn)

	require.NoError(t, repo.MarkKnown("SERIAL-1"))
	require.NoError(t, repo.MarkKnown("SERIAL-2"))
	require.NoError(t, repo.MarkKnown("SERIAL-1"), "marking an already-known serial is idempotent")

	serials, err := repo.KnownSerials()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"SERIAL-1", "SERIAL-2"}, serials)

	known, err := repo.IsKnown("SERIAL-1")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = repo.IsKnown("NEVER-SEEN")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestForgetRemovesSerial(t *testing.T) {
	conn := setup(t)
	repo := NewDeviceRepository(conn)

	require.NoError(t, repo.MarkKnown("SERIAL-1"))
	require.NoError(t, repo.Forget("SERIAL-1"))

	known, err := repo.IsKnown("SERIAL-1")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestBlacklistAddRemoveContains(t *testing.T) {
	conn := setup(t)
	repo := NewBlacklistRepository(conn)

	contains, err := repo.Contains("BAD-1")
	require.NoError(t, err)
	assert.False(t, contains)

	require.NoError(t, repo.Add("BAD-1"))
	require.NoError(t, repo.Add("BAD-1"), "adding an already-blacklisted serial is idempotent")

	contains, err = repo.Contains("BAD-1")
	require.NoError(t, err)
	assert.True(t, contains)

	serials, err := repo.Serials()
	require.NoError(t, err)
	assert.Equal(t, []string{"BAD-1"}, serials)

	require.NoError(t, repo.Remove("BAD-1"))
	contains, err = repo.Contains("BAD-1")
	require.NoError(t, err)
	assert.False(t, contains)
}

func TestSQLHooksTimeQueries(t *testing.T) {
	conn := setup(t)
	repo := NewDeviceRepository(conn)
	require.NoError(t, repo.MarkKnown("SERIAL-1"))

	_, err := repo.KnownSerials()
	require.NoError(t, err, "queries run through the sqlite3WithHooks driver without error")
}
