// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/Thermoquad/portcullis/internal/config"
	"github.com/Thermoquad/portcullis/pkg/credstore"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/hal"
)

// runScript runs the headless simulator with the given keys and no waits
func runScript(t *testing.T, script string) string {
	t.Helper()
	prevFast, prevScript, prevStore := simFast, simScript, simStorePath
	t.Cleanup(func() { simFast, simScript, simStorePath = prevFast, prevScript, prevStore })
	simFast, simScript, simStorePath = true, script, ""

	rec, err := newTrafficRecorder("", doorlink.NewStatistics(), zap.NewNop())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runSimScript(&out, config.Default(), rec, zap.NewNop()))
	return out.String()
}

func journalBlock(entries ...string) string {
	return "  " + strings.Join(entries, "\n  ") + "\n"
}

func TestSimScript_SetupThenOpen(t *testing.T) {
	out := runScript(t, "12345=12345=+12345=")

	assert.Contains(t, out, "|Plz Enter Pass: |")
	assert.Contains(t, out, "|Same Pass: *****|")
	assert.Contains(t, out, "|+ : Open Door   |")
	assert.Contains(t, out, journalBlock(
		"motor forward 100", "wait 15",
		"motor stop 0", "wait 3",
		"motor reverse 100", "wait 15",
		"motor stop 0",
	))
	assert.NotContains(t, out, "alarm on")
	assert.Contains(t, out, "Password stored: true")
}

func TestSimScript_LockoutSoundsAlarm(t *testing.T) {
	out := runScript(t, "12345=12345=+11111=22222=33333=")

	assert.Contains(t, out, "|xxxx ERROR xxxx |")
	assert.Contains(t, out, journalBlock("alarm on", "wait 60", "alarm off"))
	assert.NotContains(t, out, "motor forward")
}

func TestSimScript_SetupMismatchHalts(t *testing.T) {
	out := runScript(t, "11111=22222=11111=22222=11111=22222=")

	assert.Contains(t, out, "SYSTEM ERROR")
	assert.Contains(t, out, "HMI halted")
	assert.NotContains(t, out, "alarm on")
}

func TestKeypadKeys(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want byte
		ok   bool
	}{
		{name: "digit", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'7'}}, want: 7, ok: true},
		{name: "zero", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'0'}}, want: 0, ok: true},
		{name: "open", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}}, want: hal.KeyOpen, ok: true},
		{name: "change", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'-'}}, want: hal.KeyChange, ok: true},
		{name: "equals", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'='}}, want: hal.KeyEnter, ok: true},
		{name: "enter", msg: tea.KeyMsg{Type: tea.KeyEnter}, want: hal.KeyEnter, ok: true},
		{name: "divide", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}}, want: hal.KeyDivide, ok: true},
		{name: "escape", msg: tea.KeyMsg{Type: tea.KeyEsc}, want: hal.KeyClear, ok: true},
		{name: "unmapped", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := defaultKeypadKeys.keypadCode(tt.msg)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestModel_KeysReachKeypad(t *testing.T) {
	keypad := hal.NewQueueKeypad(1)
	m := initialModel("TEST", "none", keypad, doorlink.NewStatistics(), nil)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'4'}})
	m = next.(model)
	// The queue holds one key; the second press is dropped, not blocked on
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	m = next.(model)
	assert.Equal(t, 1, m.dropped)

	key, err := keypad.GetPressedKey()
	require.NoError(t, err)
	assert.Equal(t, byte(4), key)

	next, _ = m.Update(lcdMsg{"Plz Enter Pass: ", "*               "})
	m = next.(model)
	assert.Contains(t, m.View(), "Plz Enter Pass:")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.True(t, next.(model).quitting)
	assert.NotNil(t, cmd)
}

func TestMonitorLink(t *testing.T) {
	var seen []doorlink.Direction
	stats := doorlink.NewStatistics()
	tap := func(dir doorlink.Direction, b byte) {
		seen = append(seen, dir)
		recordObserved(stats, dir, b)
	}

	err := monitorLink(bytes.NewReader([]byte{'&', '$', 'x'}), doorlink.HMIToControl, tap)
	require.NoError(t, err)
	err = monitorLink(bytes.NewReader([]byte{1, 0}), doorlink.ControlToHMI, tap)
	require.NoError(t, err)

	assert.Equal(t, []doorlink.Direction{
		doorlink.HMIToControl, doorlink.HMIToControl, doorlink.HMIToControl,
		doorlink.ControlToHMI, doorlink.ControlToHMI,
	}, seen)
	c := stats.Snapshot()
	assert.Equal(t, uint64(1), c.DoorCycles)
	assert.Equal(t, uint64(1), c.Alarms)
	assert.Equal(t, uint64(1), c.Matches)
	assert.Equal(t, uint64(1), c.Mismatches)
}

func TestParseDirection(t *testing.T) {
	dir, err := parseDirection("control")
	require.NoError(t, err)
	assert.Equal(t, doorlink.ControlToHMI, dir)

	_, err = parseDirection("both")
	assert.Error(t, err)
}

func TestPrintSnapshot(t *testing.T) {
	snap := credstore.Snapshot{
		Primary:      [5]byte{1, 2, 3, 4, 5},
		Gap:          0xFF,
		Confirmation: [5]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	}

	var masked bytes.Buffer
	printSnapshot(&masked, "lock.db", snap, false)
	assert.Contains(t, masked.String(), "0x01  primary       ** ** ** ** **")
	assert.Contains(t, masked.String(), "0x06  reserved      FF")
	assert.Contains(t, masked.String(), "0x07  confirmation  FF FF FF FF FF")
	assert.Contains(t, masked.String(), "Password: set")

	var revealed bytes.Buffer
	printSnapshot(&revealed, "lock.db", snap, true)
	assert.Contains(t, revealed.String(), "01 02 03 04 05")

	var blank bytes.Buffer
	printSnapshot(&blank, "lock.db", credstore.Snapshot{Primary: [5]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}, false)
	assert.Contains(t, blank.String(), "Password: not set")
}

func TestPrintPorts(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R", SerialNumber: "A10K"},
	}

	var all bytes.Buffer
	assert.Equal(t, 2, printPorts(&all, ports, false))
	assert.Equal(t, "/dev/ttyS0\n/dev/ttyUSB0  USB 0403:6001  FT232R  (serial A10K)\n", all.String())

	var usb bytes.Buffer
	assert.Equal(t, 1, printPorts(&usb, ports, true))
	assert.NotContains(t, usb.String(), "ttyS0")
}
