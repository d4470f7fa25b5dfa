// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hmi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/portcullis/internal/control"
	"github.com/Thermoquad/portcullis/pkg/credstore"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/eeprom"
	"github.com/Thermoquad/portcullis/pkg/hal"
	"github.com/Thermoquad/portcullis/pkg/hal/fake"
)

// journalDisplay mirrors every printed string into a journal
type journalDisplay struct {
	*hal.LCD
	journal *fake.Journal
}

func (d journalDisplay) PrintAt(row, col int, s string) {
	d.journal.Add("lcd %s", s)
	d.LCD.PrintAt(row, col, s)
}

// rig wires an HMI node to a live Control node over an in-memory pipe
type rig struct {
	pipe   *doorlink.Pipe
	keypad *hal.QueueKeypad
	lcd    *hal.LCD
	store  *credstore.Store
	stats  *doorlink.Statistics

	hmiJournal  *fake.Journal
	ctrlJournal *fake.Journal
	hmiWaiter   *fake.Waiter

	node     *Node
	ctrlDone chan error

	mu       sync.Mutex
	sent     []byte
	verdicts []byte
	states   []State
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		pipe:        doorlink.NewPipe(0),
		keypad:      hal.NewQueueKeypad(256),
		lcd:         hal.NewLCD(),
		stats:       doorlink.NewStatistics(),
		hmiJournal:  &fake.Journal{},
		ctrlJournal: &fake.Journal{},
		ctrlDone:    make(chan error, 1),
	}
	r.store = credstore.New(eeprom.NewImage())
	r.hmiWaiter = &fake.Waiter{Journal: r.hmiJournal}

	link := r.pipe.HMI()
	link.SetTap(func(dir doorlink.Direction, b byte) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if dir == doorlink.HMIToControl {
			r.sent = append(r.sent, b)
		} else {
			r.verdicts = append(r.verdicts, b)
		}
	})

	r.node = New(link, r.keypad, journalDisplay{LCD: r.lcd, journal: r.hmiJournal}, r.hmiWaiter, DefaultConfig(),
		WithStatistics(r.stats),
		WithStateHook(func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		}),
	)

	ctrl := control.New(r.pipe.Control(), r.store,
		&fake.Motor{Journal: r.ctrlJournal}, &fake.Alarm{Journal: r.ctrlJournal},
		&fake.Waiter{Journal: r.ctrlJournal}, control.DefaultConfig())
	go func() { r.ctrlDone <- ctrl.Run(context.Background()) }()

	t.Cleanup(func() {
		_ = r.keypad.Close()
		_ = r.pipe.Close()
	})
	return r
}

// typeKeys queues the keys for s and closes the keypad so the node stops
// once they are consumed
func (r *rig) typeKeys(t *testing.T, s string) {
	t.Helper()
	require.True(t, r.keypad.Type(s))
	require.NoError(t, r.keypad.Close())
}

func (r *rig) provision(t *testing.T, password string) {
	t.Helper()
	require.NoError(t, r.store.WritePassword(credstore.Primary, doorlink.MustParsePassword(password)))
}

// finish closes the link and waits for the Control node to drain
func (r *rig) finish(t *testing.T) {
	t.Helper()
	require.NoError(t, r.pipe.Close())
	select {
	case err := <-r.ctrlDone:
		assert.True(t, control.IsLinkClosed(err), "control exited with %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("control node did not exit")
	}
}

func (r *rig) sentBytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.sent...)
}

func (r *rig) verdictBytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.verdicts...)
}

func (r *rig) stateLog() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func count(bs []byte, b byte) int {
	n := 0
	for _, x := range bs {
		if x == b {
			n++
		}
	}
	return n
}

func requirePassword(t *testing.T, s *credstore.Store, r credstore.Region, want string) {
	t.Helper()
	got, err := s.ReadPassword(r)
	require.NoError(t, err)
	assert.Equal(t, want, got.String(), "%s region", r)
}

func TestBootstrap_FirstTimeSetup(t *testing.T) {
	r := newRig(t)
	r.typeKeys(t, "12345=12345=")

	err := r.node.Run(context.Background())
	assert.ErrorIs(t, err, hal.ErrKeypadClosed)
	r.finish(t)

	assert.Equal(t, []byte{doorlink.VerdictMatch}, r.verdictBytes())
	requirePassword(t, r.store, credstore.Primary, "12345")
	requirePassword(t, r.store, credstore.Confirmation, "12345")
	assert.Equal(t, []byte{doorlink.CmdSetPassword, 1, 2, 3, 4, 5, 1, 2, 3, 4, 5}, r.sentBytes())
	assert.Contains(t, r.stateLog(), StateMainMenu)
}

func TestBootstrap_RecoversOnThirdAttempt(t *testing.T) {
	r := newRig(t)
	r.typeKeys(t, "11111=22222="+"33333=44444="+"12345=12345=")

	err := r.node.Run(context.Background())
	assert.ErrorIs(t, err, hal.ErrKeypadClosed)
	r.finish(t)

	assert.Equal(t, []byte{0, 0, 1}, r.verdictBytes())
	assert.Equal(t, StateMainMenu, r.node.State())
	assert.Zero(t, count(r.sentBytes(), doorlink.CmdAlarm))
	assert.Empty(t, r.ctrlJournal.Entries())
	requirePassword(t, r.store, credstore.Primary, "12345")
}

func TestBootstrap_HaltsWithoutAlarm(t *testing.T) {
	r := newRig(t)
	r.typeKeys(t, "11111=22222="+"33333=44444="+"55555=66666=")

	err := r.node.Run(context.Background())
	assert.ErrorIs(t, err, ErrSystemHalted)
	r.finish(t)

	assert.Equal(t, []byte{0, 0, 0}, r.verdictBytes())
	assert.Zero(t, count(r.sentBytes(), doorlink.CmdAlarm))
	assert.Equal(t, StateHalted, r.node.State())
	assert.Equal(t, "  SYSTEM ERROR", r.lcd.Lines()[0])

	var waits []string
	for _, e := range r.hmiJournal.Entries() {
		if strings.HasPrefix(e, "wait") {
			waits = append(waits, e)
		}
	}
	assert.Equal(t, []string{"wait 2", "wait 2", "wait 2"}, waits)
	assert.Empty(t, r.ctrlJournal.Entries())
}

func TestOpenFlow_Success(t *testing.T) {
	r := newRig(t)
	r.provision(t, "12345")
	r.typeKeys(t, "+12345=")

	require.NoError(t, r.node.MainMenu())
	r.finish(t)

	assert.Equal(t, []byte{doorlink.VerdictMatch}, r.verdictBytes())
	assert.Equal(t, []byte{doorlink.CmdVerifyPassword, 1, 2, 3, 4, 5, doorlink.CmdOpenDoor}, r.sentBytes())

	assert.Equal(t, []string{
		"lcd + : Open Door",
		"lcd - : Change Pass",
		"lcd Plz Enter Pass:",
		"lcd Door is",
		"lcd Unlocking",
		"wait 15",
		"lcd    WARNING!!! ",
		"lcd Door is",
		"lcd Closing",
		"wait 3",
		"lcd Door is",
		"lcd Locking",
		"wait 15",
	}, r.hmiJournal.Entries())

	assert.Equal(t, []string{
		"motor forward 100",
		"wait 15",
		"motor stop 0",
		"wait 3",
		"motor reverse 100",
		"wait 15",
		"motor stop 0",
	}, r.ctrlJournal.Entries())
}

func TestOpenFlow_LockoutRaisesAlarmOnce(t *testing.T) {
	r := newRig(t)
	r.provision(t, "99999")
	r.typeKeys(t, "+11111=22222=33333=")

	require.NoError(t, r.node.MainMenu())
	r.finish(t)

	assert.Equal(t, []byte{0, 0, 0}, r.verdictBytes())
	sent := r.sentBytes()
	assert.Equal(t, 1, count(sent, doorlink.CmdAlarm))
	assert.Equal(t, byte(doorlink.CmdAlarm), sent[len(sent)-1], "no verification after the alarm")
	assert.Equal(t, 3, count(sent, doorlink.CmdVerifyPassword))
	assert.Zero(t, count(sent, doorlink.CmdOpenDoor))

	assert.Equal(t, []string{"alarm on", "wait 60", "alarm off"}, r.ctrlJournal.Entries())
	assert.Contains(t, r.hmiJournal.Entries(), "lcd xxxx ERROR xxxx")
	assert.Contains(t, r.hmiJournal.Entries(), "wait 60")
	assert.Equal(t, uint64(1), r.stats.Snapshot().Lockouts)
	assert.Contains(t, r.stateLog(), StateAlarmFlow)
}

func TestOpenFlow_SecondAttemptSucceeds(t *testing.T) {
	r := newRig(t)
	r.provision(t, "24680")
	r.typeKeys(t, "+13579=24680=")

	require.NoError(t, r.node.MainMenu())
	r.finish(t)

	assert.Equal(t, []byte{0, 1}, r.verdictBytes())
	assert.Equal(t, 1, count(r.sentBytes(), doorlink.CmdOpenDoor))
	assert.Contains(t, r.hmiJournal.Entries(), "lcd Incorrect Pass")
	assert.Zero(t, r.stats.Snapshot().Lockouts)
}

func TestChangeFlow_InstallsNewPassword(t *testing.T) {
	r := newRig(t)
	r.provision(t, "12345")
	r.typeKeys(t, "-12345=44444=44444=")

	require.NoError(t, r.node.MainMenu())
	assert.Equal(t, "Pass Changed", r.lcd.Lines()[0])

	// The old password no longer verifies
	link := r.pipe.HMI()
	require.NoError(t, link.SendByte(doorlink.CmdVerifyPassword))
	require.NoError(t, doorlink.SendPassword(link, doorlink.MustParsePassword("12345")))
	verdict, err := link.ReceiveByte()
	require.NoError(t, err)
	assert.Equal(t, doorlink.VerdictMismatch, verdict)

	r.finish(t)
	requirePassword(t, r.store, credstore.Primary, "44444")
	assert.Equal(t, []byte{1, 1, 0}, r.verdictBytes())
	assert.Equal(t, []byte{
		doorlink.CmdVerifyPassword, 1, 2, 3, 4, 5,
		doorlink.CmdSetPassword, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
		doorlink.CmdVerifyPassword, 1, 2, 3, 4, 5,
	}, r.sentBytes())
}

func TestChangeFlow_EntriesDiffer(t *testing.T) {
	r := newRig(t)
	r.provision(t, "12345")
	r.typeKeys(t, "-12345=44444=55555=")

	require.NoError(t, r.node.MainMenu())
	r.finish(t)

	assert.Equal(t, []byte{1, 0}, r.verdictBytes())
	assert.Equal(t, "Pass Mismatch", r.lcd.Lines()[0])
	assert.Zero(t, count(r.sentBytes(), doorlink.CmdAlarm))
}

func TestChangeFlow_LockoutNeverInstalls(t *testing.T) {
	r := newRig(t)
	r.provision(t, "12345")
	r.typeKeys(t, "-00000=00001=00002=")

	require.NoError(t, r.node.MainMenu())
	r.finish(t)

	sent := r.sentBytes()
	assert.Zero(t, count(sent, doorlink.CmdSetPassword))
	assert.Equal(t, 1, count(sent, doorlink.CmdAlarm))
	requirePassword(t, r.store, credstore.Primary, "12345")
	assert.Equal(t, []string{"alarm on", "wait 60", "alarm off"}, r.ctrlJournal.Entries())
}

func TestMainMenu_IgnoresOtherKeys(t *testing.T) {
	r := newRig(t)
	r.typeKeys(t, "x")

	require.NoError(t, r.node.MainMenu())
	r.finish(t)
	assert.Empty(t, r.sentBytes())
	assert.Equal(t, []string{"+ : Open Door", "- : Change Pass"}, r.lcd.Lines())
}

func TestCollectDigits_IgnoresNonDigits(t *testing.T) {
	r := newRig(t)
	r.lcd.MoveCursor(1, 0)
	// Non-digits interleaved, then extra keys after the fifth digit that
	// must wait for the confirm key
	r.typeKeys(t, "1%2+3-4*5"+"7*"+"=")

	p, err := r.node.collectDigits()
	require.NoError(t, err)
	assert.Equal(t, "12345", p.String())
	assert.Equal(t, "*****", r.lcd.Lines()[1])
	assert.Len(t, r.hmiWaiter.Pauses(), 9)
	assert.Empty(t, r.sentBytes(), "digits are only sent by the calling flow")
}

func TestCollectDigits_StallsWithoutConfirm(t *testing.T) {
	r := newRig(t)
	r.typeKeys(t, "12345")

	_, err := r.node.collectDigits()
	assert.ErrorIs(t, err, hal.ErrKeypadClosed)
}

func TestReceiveVerdict_UnexpectedByte(t *testing.T) {
	p := doorlink.NewPipe(0)
	defer p.Close()
	n := New(p.HMI(), hal.NewQueueKeypad(1), hal.NewLCD(), &fake.Waiter{}, DefaultConfig())

	require.NoError(t, p.Control().SendByte(7))
	matched, err := n.receiveVerdict()
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "BootstrapSetup", StateBootstrapSetup.String())
	assert.Equal(t, "Halted", StateHalted.String())
	assert.Equal(t, "Unknown", State(-1).String())
}
