// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"strings"
	"sync"
)

// Character display geometry
const (
	LCDRows = 2
	LCDCols = 16
)

// LCD is an in-memory 16x2 character display. Characters written past the
// end of a row are dropped, as on the real controller.
type LCD struct {
	mu       sync.Mutex
	cells    [LCDRows][LCDCols]byte
	row, col int
	onChange func(lines []string)
}

// NewLCD creates a blank display
func NewLCD() *LCD {
	l := &LCD{}
	l.blank()
	return l
}

// OnChange registers a callback invoked with the new contents after every
// update
func (l *LCD) OnChange(fn func(lines []string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = fn
}

func (l *LCD) blank() {
	for r := range l.cells {
		for c := range l.cells[r] {
			l.cells[r][c] = ' '
		}
	}
	l.row, l.col = 0, 0
}

// update runs fn under the lock and notifies the listener outside it
func (l *LCD) update(fn func()) {
	l.mu.Lock()
	fn()
	lines := l.linesLocked()
	cb := l.onChange
	l.mu.Unlock()
	if cb != nil {
		cb(lines)
	}
}

func (l *LCD) putLocked(c byte) {
	if l.row < LCDRows && l.col < LCDCols {
		l.cells[l.row][l.col] = c
	}
	l.col++
}

// Clear blanks the display and homes the cursor
func (l *LCD) Clear() {
	l.update(l.blank)
}

// Print writes s at the cursor
func (l *LCD) Print(s string) {
	l.update(func() {
		for i := 0; i < len(s); i++ {
			l.putLocked(s[i])
		}
	})
}

// PrintAt moves the cursor then writes s
func (l *LCD) PrintAt(row, col int, s string) {
	l.update(func() {
		l.moveLocked(row, col)
		for i := 0; i < len(s); i++ {
			l.putLocked(s[i])
		}
	})
}

// MoveCursor positions the cursor
func (l *LCD) MoveCursor(row, col int) {
	l.update(func() { l.moveLocked(row, col) })
}

func (l *LCD) moveLocked(row, col int) {
	if row < 0 {
		row = 0
	}
	if col < 0 {
		col = 0
	}
	l.row, l.col = row, col
}

// PutChar writes one character at the cursor
func (l *LCD) PutChar(c byte) {
	l.update(func() { l.putLocked(c) })
}

// Lines returns the display rows with trailing blanks trimmed
func (l *LCD) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.linesLocked()
}

func (l *LCD) linesLocked() []string {
	lines := make([]string, LCDRows)
	for r := range l.cells {
		lines[r] = strings.TrimRight(string(l.cells[r][:]), " ")
	}
	return lines
}

// Cursor returns the cursor position
func (l *LCD) Cursor() (row, col int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.row, l.col
}
