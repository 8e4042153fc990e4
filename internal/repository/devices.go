// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// DeviceRepository persists the known-serials set backing spec §4.D's
// reconciliation rules: a serial seen once stays in the known set for
// the lifetime of the store, independent of whether its Device is
// currently mounted.
type DeviceRepository struct {
	db *sqlx.DB
}

// NewDeviceRepository wraps conn for device-serial persistence.
func NewDeviceRepository(conn *DBConnection) *DeviceRepository {
	return &DeviceRepository{db: conn.DB}
}

// KnownSerials returns every serial ever marked known, oldest first.
func (r *DeviceRepository) KnownSerials() ([]string, error) {
	var serials []string
	err := r.db.Select(&serials, `SELECT serial FROM known_devices ORDER BY first_joined_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("repository: known serials: %w", err)
	}
	return serials, nil
}

// MarkKnown records serial in the known set if not already present. It
// is idempotent: marking an already-known serial is a no-op.
func (r *DeviceRepository) MarkKnown(serial string) error {
	_, err := r.db.Exec(
		`INSERT INTO known_devices (serial, first_joined_at) VALUES (?, ?)
		 ON CONFLICT(serial) DO NOTHING`,
		serial, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository: mark known %q: %w", serial, err)
	}
	return nil
}

// IsKnown reports whether serial has ever been marked known.
func (r *DeviceRepository) IsKnown(serial string) (bool, error) {
	var count int
	err := r.db.Get(&count, `SELECT COUNT(*) FROM known_devices WHERE serial = ?`, serial)
	if err != nil {
		return false, fmt.Errorf("repository: is known %q: %w", serial, err)
	}
	return count > 0, nil
}

// Forget removes serial from the known set entirely, the persistence
// side of spec §4.D's remove_completely operation.
func (r *DeviceRepository) Forget(serial string) error {
	_, err := r.db.Exec(`DELETE FROM known_devices WHERE serial = ?`, serial)
	if err != nil {
		return fmt.Errorf("repository: forget %q: %w", serial, err)
	}
	return nil
}
