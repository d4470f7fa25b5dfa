// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package doorlink

import (
	"fmt"
	"strings"
)

// Digit is a single password digit in [0,9], sent on the wire as its value
// (not its ASCII code)
type Digit uint8

// Valid reports whether the digit is in range
func (d Digit) Valid() bool {
	return d <= MaxDigit
}

// Password is an ordered sequence of exactly PasswordSize digits
type Password [PasswordSize]Digit

// ParsePassword parses a string of PasswordSize decimal characters
func ParsePassword(s string) (Password, error) {
	var p Password
	if len(s) != PasswordSize {
		return p, fmt.Errorf("password must be %d digits, got %d characters", PasswordSize, len(s))
	}
	for i := 0; i < PasswordSize; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return p, fmt.Errorf("invalid digit %q at position %d", c, i)
		}
		p[i] = Digit(c - '0')
	}
	return p, nil
}

// MustParsePassword is like ParsePassword but panics on error
func MustParsePassword(s string) Password {
	p, err := ParsePassword(s)
	if err != nil {
		panic(fmt.Sprintf("doorlink: %v", err))
	}
	return p
}

// Bytes returns the wire representation of the password
func (p Password) Bytes() []byte {
	b := make([]byte, PasswordSize)
	for i, d := range p {
		b[i] = byte(d)
	}
	return b
}

// String renders the digits as text
func (p Password) String() string {
	var sb strings.Builder
	for _, d := range p {
		sb.WriteByte('0' + byte(d)%10)
	}
	return sb.String()
}
