// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package doorlink implements the Portcullis command channel: the single-byte
// protocol exchanged between the HMI node (keypad and display) and the
// Control node (lock, alarm and credential store).
//
// The link carries no framing, checksum or retry. The HMI always initiates by
// sending one command byte followed by zero or more digit bytes, and the
// Control node answers password exchanges with one verdict byte.
package doorlink

// Command bytes (HMI → Control)
const (
	CmdSetPassword    byte = '*' // 5 digits + 5 digits, verdict reply
	CmdVerifyPassword byte = '#' // 5 digits, verdict reply
	CmdOpenDoor       byte = '&' // no payload, no reply
	CmdAlarm          byte = '$' // no payload, no reply
)

// Verdict bytes (Control → HMI)
const (
	VerdictMismatch byte = 0
	VerdictMatch    byte = 1
)

// Password geometry
const (
	PasswordSize = 5
	MaxDigit     = 9
)

// Direction identifies which node sent a byte
type Direction uint8

// Direction values
const (
	HMIToControl Direction = iota
	ControlToHMI
)

// String returns a short arrow label for the direction
func (d Direction) String() string {
	switch d {
	case HMIToControl:
		return "HMI→CTRL"
	case ControlToHMI:
		return "CTRL→HMI"
	default:
		return "UNKNOWN"
	}
}

// IsCommand reports whether b is one of the four command bytes
func IsCommand(b byte) bool {
	switch b {
	case CmdSetPassword, CmdVerifyPassword, CmdOpenDoor, CmdAlarm:
		return true
	}
	return false
}

// PayloadDigits returns the number of digit bytes that follow a command byte
func PayloadDigits(cmd byte) int {
	switch cmd {
	case CmdSetPassword:
		return 2 * PasswordSize
	case CmdVerifyPassword:
		return PasswordSize
	default:
		return 0
	}
}

// ExpectsVerdict reports whether the Control node replies to cmd
func ExpectsVerdict(cmd byte) bool {
	return cmd == CmdSetPassword || cmd == CmdVerifyPassword
}
