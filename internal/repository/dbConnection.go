// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package repository implements the small-record persistence component
// from spec §4.L: known device serials and the runtime blacklist.
// Adapted from the teacher's internal/repository/dbConnection.go, which
// wires sqlite3 through sqlhooks for query-timing logs and verifies the
// schema version via golang-migrate on every startup. The job/node/tag
// tables and the mysql branch do not apply to this single-host domain;
// only the sqlite3 connection, hook, and migration machinery is kept,
// repointed at a two-table device/blacklist schema.
package repository

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/allenjin-login/usbthief/pkg/log"
)

var (
	dbConnOnce     sync.Once
	dbConnInstance *DBConnection
)

// DBConnection wraps the single sqlx handle this process holds open.
type DBConnection struct {
	DB *sqlx.DB
}

// Connect opens (and migrates) the sqlite3 database at path, exactly
// once per process. Subsequent calls are no-ops, matching the teacher's
// sync.Once-guarded singleton.
func Connect(path string) {
	dbConnOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))

		dbHandle, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
		if err != nil {
			log.Fatalf("repository: open %s: %v", path, err)
		}

		// sqlite3 does not support concurrent writers; one connection
		// avoids waiting on its own busy-timeout retries.
		dbHandle.SetMaxOpenConns(1)

		if err := MigrateDB(path); err != nil {
			log.Fatalf("repository: migrate %s: %v", path, err)
		}

		dbConnInstance = &DBConnection{DB: dbHandle}
	})
}

// GetConnection returns the process-wide connection. It must be called
// after Connect.
func GetConnection() *DBConnection {
	if dbConnInstance == nil {
		log.Fatalf("repository: database connection not initialized")
	}
	return dbConnInstance
}

// resetForTest clears the singleton so package tests can open a fresh
// database per test run. Only called from _test.go files.
func resetForTest() {
	dbConnOnce = sync.Once{}
	dbConnInstance = nil
}
