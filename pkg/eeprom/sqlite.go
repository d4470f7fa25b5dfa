// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package eeprom

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS eeprom (
	addr  INTEGER PRIMARY KEY,
	value INTEGER NOT NULL
)`

// SQLite is a Memory persisted in a SQLite database file, one row per
// written cell
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the device image at path
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open eeprom image %s: %w", path, err)
	}
	// Single writer; also keeps ":memory:" images on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize eeprom image %s: %w", path, err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Path returns the database path
func (s *SQLite) Path() string {
	return s.path
}

// WriteByteAt stores b at addr
func (s *SQLite) WriteByteAt(addr uint16, b byte) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO eeprom (addr, value) VALUES (?, ?)
		 ON CONFLICT(addr) DO UPDATE SET value = excluded.value`,
		int64(addr), int64(b),
	)
	if err != nil {
		return fmt.Errorf("write 0x%04X: %w: %v", addr, ErrWriteTimeout, err)
	}
	return nil
}

// ReadByteAt returns the byte at addr, or Erased if it was never written
func (s *SQLite) ReadByteAt(addr uint16) (byte, error) {
	if err := checkAddr(addr); err != nil {
		return 0, err
	}
	var v int64
	err := s.db.QueryRow(`SELECT value FROM eeprom WHERE addr = ?`, int64(addr)).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return Erased, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read 0x%04X: %w", addr, err)
	}
	return byte(v), nil
}

// Close releases the database
func (s *SQLite) Close() error {
	return s.db.Close()
}
