// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetReset(t *testing.T) {
	t.Run("get returns default on a fresh store", func(t *testing.T) {
		s := New()
		assert.Equal(t, 500, s.GetInt("tick_interval_ms"))
	})

	t.Run("set is immediately visible", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Set("tick_interval_ms", 250))
		assert.Equal(t, 250, s.GetInt("tick_interval_ms"))
	})

	t.Run("set rejects unknown key", func(t *testing.T) {
		s := New()
		assert.Error(t, s.Set("nope", 1))
	})

	t.Run("set rejects wrong type", func(t *testing.T) {
		s := New()
		assert.Error(t, s.Set("tick_interval_ms", []string{"x"}))
	})

	t.Run("reset restores default", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Set("low_batch", 1))
		require.NoError(t, s.Reset("low_batch"))
		assert.Equal(t, 30, s.GetInt("low_batch"))
	})

	t.Run("reset all restores every key", func(t *testing.T) {
		s := New()
		require.NoError(t, s.Set("low_batch", 1))
		require.NoError(t, s.Set("medium_batch", 2))
		s.ResetAll()
		assert.Equal(t, 30, s.GetInt("low_batch"))
		assert.Equal(t, 50, s.GetInt("medium_batch"))
	})
}

func TestStringList(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("device_blacklist_by_serial", []string{"AAA", "BBB"}))
	assert.Equal(t, []string{"AAA", "BBB"}, s.GetStringList("device_blacklist_by_serial"))
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatProperties, FormatJSON} {
		s := New()
		require.NoError(t, s.Set("low_batch", 7))
		require.NoError(t, s.Set("device_blacklist_by_serial", []string{"X1", "X2"}))

		first, err := s.Export(format)
		require.NoError(t, err)

		s2 := New()
		require.NoError(t, s2.Import(format, first))

		second, err := s2.Export(format)
		require.NoError(t, err)

		assert.Equal(t, first, second, "export -> import -> export must be byte-equivalent")
		assert.Equal(t, 7, s2.GetInt("low_batch"))
		assert.Equal(t, []string{"X1", "X2"}, s2.GetStringList("device_blacklist_by_serial"))
	}
}

func TestImportRejectsUnknownKey(t *testing.T) {
	s := New()
	err := s.Import(FormatProperties, []byte("bogus_key=1\n"))
	assert.Error(t, err)
}

func TestImportJSONValidatesSchema(t *testing.T) {
	s := New()
	err := s.Import(FormatJSON, []byte(`{"not":"valid"}`))
	assert.Error(t, err)
}

func TestCategories(t *testing.T) {
	cats := Categories()
	assert.Contains(t, cats, CategoryScheduler)
	assert.Contains(t, cats, CategoryRateLimit)
}
