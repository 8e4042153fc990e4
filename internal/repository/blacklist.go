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

// BlacklistRepository persists the runtime serial blacklist from spec
// §4.D rule 4: a serial added here is treated as not-seen by every
// future discover() scan, even though the config store (§4.A) also
// carries a device_blacklist_by_serial entry for the static/startup
// list. The two lists are merged by the device manager.
type BlacklistRepository struct {
	db *sqlx.DB
}

func NewBlacklistRepository(conn *DBConnection) *BlacklistRepository {
	return &BlacklistRepository{db: conn.DB}
}

// Serials returns every blacklisted serial.
func (r *BlacklistRepository) Serials() ([]string, error) {
	var serials []string
	err := r.db.Select(&serials, `SELECT serial FROM blacklist ORDER BY added_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("repository: blacklist serials: %w", err)
	}
	return serials, nil
}

// Add blacklists serial. Idempotent.
func (r *BlacklistRepository) Add(serial string) error {
	_, err := r.db.Exec(
		`INSERT INTO blacklist (serial, added_at) VALUES (?, ?)
		 ON CONFLICT(serial) DO NOTHING`,
		serial, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("repository: blacklist add %q: %w", serial, err)
	}
	return nil
}

// Remove un-blacklists serial.
func (r *BlacklistRepository) Remove(serial string) error {
	_, err := r.db.Exec(`DELETE FROM blacklist WHERE serial = ?`, serial)
	if err != nil {
		return fmt.Errorf("repository: blacklist remove %q: %w", serial, err)
	}
	return nil
}

// Contains reports whether serial is currently blacklisted.
func (r *BlacklistRepository) Contains(serial string) (bool, error) {
	var count int
	err := r.db.Get(&count, `SELECT COUNT(*) FROM blacklist WHERE serial = ?`, serial)
	if err != nil {
		return false, fmt.Errorf("repository: blacklist contains %q: %w", serial, err)
	}
	return count > 0, nil
}
