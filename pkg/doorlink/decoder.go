// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package doorlink

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownCommand is returned by Decoder.Feed for a byte the Control node
// would ignore while idle
var ErrUnknownCommand = errors.New("unrecognized command byte")

// Frame is one complete protocol exchange reconstructed from observed bytes
type Frame struct {
	Command byte
	// Entry is the first sequence of a '*' exchange
	Entry Password
	// Candidate is the second sequence of a '*' exchange or the '#' candidate
	Candidate     Password
	HasVerdict    bool
	Verdict       byte
	InvalidDigits bool
	Timestamp     time.Time
}

// Matched reports whether the frame carried a match verdict
func (f *Frame) Matched() bool {
	return f.HasVerdict && f.Verdict == VerdictMatch
}

// Decoder states (internal)
const (
	stateIdle = iota
	stateDigits
	stateVerdict
)

// Decoder reassembles exchanges from a passive view of both link directions.
// It mirrors what the Control node does with each byte.
type Decoder struct {
	state  int
	frame  *Frame
	digits int
	now    func() time.Time
}

// NewDecoder creates a new exchange decoder
func NewDecoder() *Decoder {
	return &Decoder{state: stateIdle, now: time.Now}
}

// Reset returns the decoder to idle, dropping any partial exchange
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.frame = nil
	d.digits = 0
}

// Pending reports whether an exchange is partially decoded
func (d *Decoder) Pending() bool {
	return d.state != stateIdle
}

// Feed processes one observed byte.
// Returns a completed frame, or nil if the exchange is incomplete.
// Returns an error when the byte cannot belong to a valid exchange.
func (d *Decoder) Feed(dir Direction, b byte) (*Frame, error) {
	if dir == ControlToHMI {
		if d.state != stateVerdict {
			state := d.state
			d.Reset()
			return nil, fmt.Errorf("unexpected byte 0x%02X from Control in state %d", b, state)
		}
		frame := d.frame
		frame.HasVerdict = true
		frame.Verdict = b
		d.Reset()
		return frame, nil
	}

	switch d.state {
	case stateIdle:
		if !IsCommand(b) {
			return nil, fmt.Errorf("0x%02X: %w", b, ErrUnknownCommand)
		}
		d.frame = &Frame{Command: b, Timestamp: d.now()}
		if PayloadDigits(b) == 0 {
			frame := d.frame
			d.Reset()
			return frame, nil
		}
		d.digits = 0
		d.state = stateDigits
		return nil, nil

	case stateDigits:
		digit := Digit(b)
		if !digit.Valid() {
			d.frame.InvalidDigits = true
		}
		if d.frame.Command == CmdSetPassword && d.digits < PasswordSize {
			d.frame.Entry[d.digits] = digit
		} else {
			d.frame.Candidate[d.digits%PasswordSize] = digit
		}
		d.digits++
		if d.digits >= PayloadDigits(d.frame.Command) {
			d.state = stateVerdict
		}
		return nil, nil

	case stateVerdict:
		cmd := d.frame.Command
		d.Reset()
		return nil, fmt.Errorf("byte 0x%02X from HMI while verdict for %s pending", b, FormatCommand(cmd))

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}
