// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal defines the peripheral collaborators the two nodes drive:
// the lock motor and alarm on the Control node, the keypad and character
// display on the HMI node.
package hal

// Direction is the motor drive direction
type Direction uint8

// Motor directions
const (
	Stop Direction = iota
	Forward
	Reverse
)

// String returns the direction name
func (d Direction) String() string {
	switch d {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// MaxSpeed is full drive
const MaxSpeed uint8 = 100

// Motor drives the lock actuator
type Motor interface {
	Rotate(dir Direction, speed uint8) error
}

// Alarm drives the alarm output
type Alarm interface {
	On() error
	Off() error
}

// Keypad key codes. Digit keys return their value 0-9; the remaining keys
// return their ASCII symbol.
const (
	KeyEnter    byte = '='
	KeyOpen     byte = '+'
	KeyChange   byte = '-'
	KeyMultiply byte = '*'
	KeyDivide   byte = '%'
	KeyClear    byte = 13
)

// IsDigitKey reports whether k is a digit key
func IsDigitKey(k byte) bool {
	return k <= 9
}

// Keypad returns pressed keys. GetPressedKey blocks until a key is pressed.
type Keypad interface {
	GetPressedKey() (byte, error)
}

// Display is a row/column character display
type Display interface {
	Clear()
	Print(s string)
	PrintAt(row, col int, s string)
	MoveCursor(row, col int)
	PutChar(c byte)
}
