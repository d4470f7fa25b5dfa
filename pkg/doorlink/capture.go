// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package doorlink

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one captured link byte. Captures are stored as a CBOR sequence
// of records: {0: unix-micros, 1: direction, 2: byte}.
type Record struct {
	Micros    int64 `cbor:"0,keyasint"`
	Direction uint8 `cbor:"1,keyasint"`
	Value     uint8 `cbor:"2,keyasint"`
}

// Time returns the record timestamp
func (r Record) Time() time.Time {
	return time.UnixMicro(r.Micros)
}

// Dir returns the record direction
func (r Record) Dir() Direction {
	return Direction(r.Direction)
}

// CaptureWriter appends records to a capture stream
type CaptureWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	now func() time.Time
}

// NewCaptureWriter creates a capture writer on w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w), now: time.Now}
}

// Write records one byte
func (c *CaptureWriter) Write(dir Direction, b byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := Record{Micros: c.now().UnixMicro(), Direction: uint8(dir), Value: b}
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// Tap returns a link tap that records every byte, reporting encode errors
// to onErr (which may be nil)
func (c *CaptureWriter) Tap(onErr func(error)) Tap {
	return func(dir Direction, b byte) {
		if err := c.Write(dir, b); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

// ReadCapture decodes every record in r, calling fn for each in order.
// Stops at the first error returned by fn.
func ReadCapture(r io.Reader, fn func(Record) error) error {
	dec := cbor.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode capture record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}
