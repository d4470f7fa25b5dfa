// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package eeprom provides the byte-addressable persistent memory the Control
// node keeps its credentials in.
//
// Two backends are provided: Image, a volatile in-memory device with fault
// injection for tests and simulation, and SQLite, which persists every byte
// across restarts.
package eeprom

import (
	"errors"
	"fmt"
	"sync"
)

// Size is the addressable size of the emulated device (24C16: 2 KiB)
const Size = 2048

// Erased is the value read from a never-written cell
const Erased byte = 0xFF

// ErrAddressRange is returned for addresses outside the device
var ErrAddressRange = errors.New("address out of range")

// ErrWriteTimeout is the failure a device reports when a write is not
// acknowledged
var ErrWriteTimeout = errors.New("write not acknowledged")

// Memory is the persistent byte read/write primitive. Both operations report
// device failure through their error.
type Memory interface {
	WriteByteAt(addr uint16, b byte) error
	ReadByteAt(addr uint16) (byte, error)
}

func checkAddr(addr uint16) error {
	if int(addr) >= Size {
		return fmt.Errorf("0x%04X: %w", addr, ErrAddressRange)
	}
	return nil
}

// Image is an in-memory Memory
type Image struct {
	mu         sync.Mutex
	cells      [Size]byte
	writeFault func(addr uint16) error
	readFault  func(addr uint16) error
	writes     int
}

// NewImage creates an erased in-memory device
func NewImage() *Image {
	img := &Image{}
	for i := range img.cells {
		img.cells[i] = Erased
	}
	return img
}

// SetWriteFault installs a hook that can fail writes; nil clears it
func (m *Image) SetWriteFault(fn func(addr uint16) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeFault = fn
}

// SetReadFault installs a hook that can fail reads; nil clears it
func (m *Image) SetReadFault(fn func(addr uint16) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFault = fn
}

// WriteByteAt stores b at addr. A faulted write leaves the cell unchanged.
func (m *Image) WriteByteAt(addr uint16, b byte) error {
	if err := checkAddr(addr); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeFault != nil {
		if err := m.writeFault(addr); err != nil {
			return err
		}
	}
	m.cells[addr] = b
	m.writes++
	return nil
}

// ReadByteAt returns the byte at addr
func (m *Image) ReadByteAt(addr uint16) (byte, error) {
	if err := checkAddr(addr); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readFault != nil {
		if err := m.readFault(addr); err != nil {
			return 0, err
		}
	}
	return m.cells[addr], nil
}

// Writes returns the number of successful writes
func (m *Image) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
