// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package credstore manages the two password regions the Control node keeps
// in persistent memory and the equality check between them.
//
// The primary region holds the installed password. The confirmation region
// holds either the re-entry of a new password or a verification candidate,
// so its contents are scratch after any verification.
package credstore

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/eeprom"
)

// Address layout
const (
	PrimaryBase      uint16 = 0x01
	ReservedGap      uint16 = 0x06 // unused, kept for layout compatibility
	ConfirmationBase uint16 = 0x07
)

// Region selects one of the two password regions
type Region int

// Regions
const (
	Primary Region = iota
	Confirmation
)

// Base returns the first address of the region
func (r Region) Base() uint16 {
	if r == Confirmation {
		return ConfirmationBase
	}
	return PrimaryBase
}

// String returns the region name
func (r Region) String() string {
	if r == Confirmation {
		return "confirmation"
	}
	return "primary"
}

// ErrWriteFailed matches any *WriteError
var ErrWriteFailed = errors.New("credential write failed")

// ErrReadFailed matches any *ReadError
var ErrReadFailed = errors.New("credential read failed")

// WriteError reports a persistent write the device did not complete
type WriteError struct {
	Region Region
	Index  int
	Addr   uint16
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s[%d] at 0x%02X: %v", e.Region, e.Index, e.Addr, e.Err)
}

// Unwrap exposes both ErrWriteFailed and the device error
func (e *WriteError) Unwrap() []error {
	return []error{ErrWriteFailed, e.Err}
}

// ReadError reports a persistent read the device did not complete
type ReadError struct {
	Region Region
	Index  int
	Addr   uint16
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s[%d] at 0x%02X: %v", e.Region, e.Index, e.Addr, e.Err)
}

// Unwrap exposes both ErrReadFailed and the device error
func (e *ReadError) Unwrap() []error {
	return []error{ErrReadFailed, e.Err}
}

// Store is the credential store over a persistent memory
type Store struct {
	mem     eeprom.Memory
	readGap time.Duration
	pause   func(time.Duration)
}

// Option configures a Store
type Option func(*Store)

// WithReadGap pauses gap between consecutive reads of VerifyEqual, giving
// slow devices time to settle
func WithReadGap(gap time.Duration, pause func(time.Duration)) Option {
	return func(s *Store) {
		s.readGap = gap
		s.pause = pause
	}
}

// New creates a store over mem
func New(mem eeprom.Memory, opts ...Option) *Store {
	s := &Store{mem: mem}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func addr(r Region, index int) (uint16, error) {
	if index < 0 || index >= doorlink.PasswordSize {
		return 0, fmt.Errorf("digit index %d out of range", index)
	}
	return r.Base() + uint16(index), nil
}

// Write stores one digit. A device failure is returned as *WriteError.
func (s *Store) Write(r Region, index int, d doorlink.Digit) error {
	a, err := addr(r, index)
	if err != nil {
		return err
	}
	if err := s.mem.WriteByteAt(a, byte(d)); err != nil {
		return &WriteError{Region: r, Index: index, Addr: a, Err: err}
	}
	return nil
}

// Read loads one digit. A device failure is returned as *ReadError.
func (s *Store) Read(r Region, index int) (doorlink.Digit, error) {
	a, err := addr(r, index)
	if err != nil {
		return 0, err
	}
	b, err := s.mem.ReadByteAt(a)
	if err != nil {
		return 0, &ReadError{Region: r, Index: index, Addr: a, Err: err}
	}
	return doorlink.Digit(b), nil
}

// WritePassword stores all digits of p, attempting every digit even after a
// failure. All failures are combined in the returned error.
func (s *Store) WritePassword(r Region, p doorlink.Password) error {
	var errs error
	for i, d := range p {
		errs = multierr.Append(errs, s.Write(r, i, d))
	}
	return errs
}

// ReadPassword loads all digits of a region
func (s *Store) ReadPassword(r Region) (doorlink.Password, error) {
	var p doorlink.Password
	for i := range p {
		d, err := s.Read(r, i)
		if err != nil {
			return p, err
		}
		p[i] = d
	}
	return p, nil
}

// VerifyEqual compares the two regions byte by byte and reports whether all
// pairs are equal. A read failure yields false and the error.
func (s *Store) VerifyEqual() (bool, error) {
	matched := 0
	for i := 0; i < doorlink.PasswordSize; i++ {
		a, err := s.Read(Primary, i)
		if err != nil {
			return false, err
		}
		s.gap()
		b, err := s.Read(Confirmation, i)
		if err != nil {
			return false, err
		}
		s.gap()
		if a == b {
			matched++
		}
	}
	return matched == doorlink.PasswordSize, nil
}

func (s *Store) gap() {
	if s.pause != nil && s.readGap > 0 {
		s.pause(s.readGap)
	}
}

// Snapshot is a raw view of the credential area
type Snapshot struct {
	Primary      [doorlink.PasswordSize]byte
	Gap          byte
	Confirmation [doorlink.PasswordSize]byte
}

// Provisioned reports whether the primary region holds a digit password
func (s Snapshot) Provisioned() bool {
	for _, b := range s.Primary {
		if !doorlink.Digit(b).Valid() {
			return false
		}
	}
	return true
}

// Dump reads the whole credential area including the reserved gap byte
func (s *Store) Dump() (Snapshot, error) {
	var snap Snapshot
	for i := 0; i < doorlink.PasswordSize; i++ {
		b, err := s.mem.ReadByteAt(PrimaryBase + uint16(i))
		if err != nil {
			return snap, &ReadError{Region: Primary, Index: i, Addr: PrimaryBase + uint16(i), Err: err}
		}
		snap.Primary[i] = b

		b, err = s.mem.ReadByteAt(ConfirmationBase + uint16(i))
		if err != nil {
			return snap, &ReadError{Region: Confirmation, Index: i, Addr: ConfirmationBase + uint16(i), Err: err}
		}
		snap.Confirmation[i] = b
	}
	gap, err := s.mem.ReadByteAt(ReservedGap)
	if err != nil {
		return snap, fmt.Errorf("read gap byte: %w", err)
	}
	snap.Gap = gap
	return snap, nil
}
