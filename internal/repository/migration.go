// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/allenjin-login/usbthief/pkg/log"
)

//go:embed migrations/sqlite3/*.sql
var migrationFiles embed.FS

// MigrateDB brings the sqlite3 database at path up to the latest
// embedded schema version, exactly the golang-migrate iofs workflow the
// teacher's internal/repository/migration.go uses, narrowed to a single
// backend since usbthief only ever runs against a local sqlite3 file.
func MigrateDB(path string) error {
	d, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("repository: load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, fmt.Sprintf("sqlite3://%s?_foreign_keys=on", path))
	if err != nil {
		return fmt.Errorf("repository: init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("repository: migrate up: %w", err)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("repository: read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("repository: schema at version %d is dirty, refusing to proceed", v)
	}

	log.Infof("repository: schema at version %d", v)
	return nil
}
