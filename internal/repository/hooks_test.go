// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksBeforeStampsBeginTime(t *testing.T) {
	h := &Hooks{}

	ctx, err := h.Before(context.Background(), "SELECT * FROM known_devices WHERE serial = ?", "S1")
	require.NoError(t, err)

	begin, ok := ctx.Value(ctxKeyBegin).(time.Time)
	require.True(t, ok, "Before must stash a time.Time under ctxKeyBegin")
	assert.WithinDuration(t, time.Now(), begin, time.Second)
}

func TestHooksAfterToleratesMissingBeginTime(t *testing.T) {
	h := &Hooks{}

	_, err := h.After(context.Background(), "SELECT 1")
	assert.NoError(t, err, "After must not fail when Before was never called on this context")
}

func TestHooksRoundTripMeasuresElapsed(t *testing.T) {
	h := &Hooks{}

	ctx, err := h.Before(context.Background(), "SELECT 1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = h.After(ctx, "SELECT 1")
	assert.NoError(t, err)
}

func TestQueriesRunThroughHookedDriver(t *testing.T) {
	conn := setup(t)
	repo := NewDeviceRepository(conn)

	require.NoError(t, repo.MarkKnown("SERIAL-1"))

	_, err := repo.KnownSerials()
	require.NoError(t, err, "queries run through the sqlite3WithHooks driver without error")
}
