// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hmi implements the HMI node: the interactive side of the link that
// collects digits from the keypad, drives the command exchange, interprets
// verdicts and narrates every step on the 16x2 display.
package hmi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/portcullis/pkg/delay"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/hal"
)

// ErrSystemHalted is returned when bootstrap setup exhausts its attempts.
// The node shows "SYSTEM ERROR" and serves nothing afterwards.
var ErrSystemHalted = errors.New("system halted: password setup failed")

// Display texts
const (
	textEnterPass    = "Plz Enter Pass:"
	textNewPass      = "Plz enter pass:"
	textReenter      = "Plz re-enter the"
	textSamePass     = "Same Pass:"
	textIncorrect    = "Incorrect Pass"
	textTryAgain     = "Pls Try Again"
	textSystemError  = "  SYSTEM ERROR "
	textMenuOpen     = "+ : Open Door"
	textMenuChange   = "- : Change Pass"
	textDoorIs       = "Door is"
	textUnlocking    = "Unlocking"
	textWarning      = "   WARNING!!! "
	textClosing      = "Closing"
	textLocking      = "Locking"
	textAlarm        = "xxxx ERROR xxxx"
	textPassChanged  = "Pass Changed"
	textPassMismatch = "Pass Mismatch"

	// Column where re-entry echo starts, after "Same Pass:"
	reentryColumn = 11
)

// State is the HMI node state
type State int

// HMI node states
const (
	StateBootstrapSetup State = iota
	StateMainMenu
	StateOpenFlow
	StateChangeFlow
	StateDoorFlow
	StateAlarmFlow
	StateHalted
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateBootstrapSetup:
		return "BootstrapSetup"
	case StateMainMenu:
		return "MainMenu"
	case StateOpenFlow:
		return "OpenFlow"
	case StateChangeFlow:
		return "ChangeFlow"
	case StateDoorFlow:
		return "DoorFlow"
	case StateAlarmFlow:
		return "AlarmFlow"
	case StateHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// Config holds the HMI policy and narration timings
type Config struct {
	// MaxAttempts caps bootstrap retries and the verification lockout
	MaxAttempts int

	KeyPress   time.Duration // after every key read during entry
	VerdictGap time.Duration // after every verdict
	Notice     time.Duration // "Incorrect Pass" and change outcome screens
	Warning    time.Duration // between unlock and closing narration

	DoorOpenSeconds  int
	DoorHoldSeconds  int
	DoorCloseSeconds int
	AlarmSeconds     int
	// NoticeSeconds is the bootstrap retry and halt screen time, counted on
	// the tick service
	NoticeSeconds int
}

// DefaultConfig returns the board timings
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		KeyPress:         500 * time.Millisecond,
		VerdictGap:       500 * time.Millisecond,
		Notice:           2 * time.Second,
		Warning:          1500 * time.Millisecond,
		DoorOpenSeconds:  15,
		DoorHoldSeconds:  3,
		DoorCloseSeconds: 15,
		AlarmSeconds:     60,
		NoticeSeconds:    2,
	}
}

// Node is the HMI node state machine
type Node struct {
	link    doorlink.Channel
	keypad  hal.Keypad
	display hal.Display
	delay   delay.Waiter
	cfg     Config

	logger *zap.Logger
	stats  *doorlink.Statistics

	mu      sync.Mutex
	state   State
	onState func(State)
}

// Option configures a Node
type Option func(*Node)

// WithLogger sets the node logger
func WithLogger(l *zap.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithStatistics sets the statistics tracker used for lockout counts
func WithStatistics(s *doorlink.Statistics) Option {
	return func(n *Node) { n.stats = s }
}

// WithStateHook registers a callback for every state transition
func WithStateHook(fn func(State)) Option {
	return func(n *Node) { n.onState = fn }
}

// New creates an HMI node
func New(link doorlink.Channel, keypad hal.Keypad, display hal.Display, waiter delay.Waiter, cfg Config, opts ...Option) *Node {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	n := &Node{
		link:    link,
		keypad:  keypad,
		display: display,
		delay:   waiter,
		cfg:     cfg,
		logger:  zap.NewNop(),
		state:   StateBootstrapSetup,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// State returns the current state
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Node) setState(s State) {
	n.mu.Lock()
	n.state = s
	hook := n.onState
	n.mu.Unlock()

	n.logger.Debug("state", zap.Stringer("state", s))
	if hook != nil {
		hook(s)
	}
}

// Run performs bootstrap setup and then serves the main menu until the
// keypad or link fails, or ctx is cancelled between operations.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Bootstrap(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.MainMenu(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Bootstrap forces the initial password setup. After MaxAttempts
// mismatches it shows the halt screen and returns ErrSystemHalted; no alarm
// is raised at this stage.
func (n *Node) Bootstrap() error {
	n.setState(StateBootstrapSetup)

	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		n.prompt(textEnterPass)
		matched, err := n.installPassword()
		if err != nil {
			return err
		}
		if matched {
			n.logger.Info("password set")
			return nil
		}
		n.logger.Info("setup entries differ", zap.Int("attempt", attempt))
		if attempt < n.cfg.MaxAttempts {
			n.screen(textIncorrect, textTryAgain)
			n.delay.WaitSeconds(n.cfg.NoticeSeconds)
		}
	}

	n.screen(textSystemError, "")
	n.delay.WaitSeconds(n.cfg.NoticeSeconds)
	n.setState(StateHalted)
	n.logger.Error("password setup failed, halting", zap.Int("attempts", n.cfg.MaxAttempts))
	return ErrSystemHalted
}

// MainMenu shows the options and runs the selected flow. Keys other than
// open and change return without action.
func (n *Node) MainMenu() error {
	n.setState(StateMainMenu)
	n.screen(textMenuOpen, textMenuChange)

	key, err := n.keypad.GetPressedKey()
	if err != nil {
		return fmt.Errorf("menu: %w", err)
	}
	switch key {
	case hal.KeyOpen:
		return n.OpenFlow()
	case hal.KeyChange:
		return n.ChangeFlow()
	default:
		n.logger.Debug("ignoring menu key", zap.Uint8("key", key))
		return nil
	}
}

// OpenFlow verifies the password and runs the door cycle on success
func (n *Node) OpenFlow() error {
	n.setState(StateOpenFlow)
	ok, err := n.verifyWithLockout()
	if err != nil || !ok {
		return err
	}
	return n.doorFlow()
}

// ChangeFlow verifies the current password and then installs a new one
func (n *Node) ChangeFlow() error {
	n.setState(StateChangeFlow)
	ok, err := n.verifyWithLockout()
	if err != nil || !ok {
		return err
	}

	n.prompt(textNewPass)
	matched, err := n.installPassword()
	if err != nil {
		return err
	}
	if matched {
		n.logger.Info("password changed")
		n.screen(textPassChanged, "")
	} else {
		n.logger.Info("new password entries differ")
		n.screen(textPassMismatch, "")
	}
	n.delay.Pause(n.cfg.Notice)
	return nil
}

// verifyWithLockout runs up to MaxAttempts verifications. On exhaustion it
// raises the alarm and reports false; the flow does not retry afterwards.
func (n *Node) verifyWithLockout() (bool, error) {
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		n.prompt(textEnterPass)
		if err := n.link.SendByte(doorlink.CmdVerifyPassword); err != nil {
			return false, err
		}
		candidate, err := n.collectDigits()
		if err != nil {
			return false, err
		}
		if err := doorlink.SendPassword(n.link, candidate); err != nil {
			return false, err
		}
		matched, err := n.receiveVerdict()
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}

		n.logger.Info("incorrect password", zap.Int("attempt", attempt))
		if attempt < n.cfg.MaxAttempts {
			n.screen(textIncorrect, textTryAgain)
			n.delay.Pause(n.cfg.Notice)
		}
	}

	n.stats.RecordLockout()
	n.logger.Warn("lockout reached, raising alarm", zap.Int("attempts", n.cfg.MaxAttempts))
	return false, n.alarmFlow()
}

// installPassword sends the set command with an entry and its re-entry and
// reports the verdict
func (n *Node) installPassword() (bool, error) {
	if err := n.link.SendByte(doorlink.CmdSetPassword); err != nil {
		return false, err
	}

	entry, err := n.collectDigits()
	if err != nil {
		return false, err
	}
	if err := doorlink.SendPassword(n.link, entry); err != nil {
		return false, err
	}

	n.screen(textReenter, textSamePass)
	n.display.MoveCursor(1, reentryColumn)
	reentry, err := n.collectDigits()
	if err != nil {
		return false, err
	}
	if err := doorlink.SendPassword(n.link, reentry); err != nil {
		return false, err
	}

	return n.receiveVerdict()
}

func (n *Node) receiveVerdict() (bool, error) {
	b, err := n.link.ReceiveByte()
	if err != nil {
		return false, fmt.Errorf("verdict: %w", err)
	}
	n.delay.Pause(n.cfg.VerdictGap)

	switch b {
	case doorlink.VerdictMatch:
		return true, nil
	case doorlink.VerdictMismatch:
		return false, nil
	default:
		n.logger.Warn("unexpected verdict byte, treating as mismatch", zap.Uint8("byte", b))
		return false, nil
	}
}

// collectDigits reads PasswordSize digit keys followed by the confirm key.
// Non-digit keys do not consume a slot; after the last digit every key
// other than confirm is ignored.
func (n *Node) collectDigits() (doorlink.Password, error) {
	var p doorlink.Password
	for i := 0; i < doorlink.PasswordSize; {
		key, err := n.keypad.GetPressedKey()
		if err != nil {
			return p, fmt.Errorf("entry: %w", err)
		}
		if hal.IsDigitKey(key) {
			p[i] = doorlink.Digit(key)
			n.display.PutChar('*')
			i++
		}
		n.delay.Pause(n.cfg.KeyPress)
	}

	for {
		key, err := n.keypad.GetPressedKey()
		if err != nil {
			return p, fmt.Errorf("confirm: %w", err)
		}
		if key == hal.KeyEnter {
			return p, nil
		}
	}
}

// doorFlow commands the door cycle and narrates it on the node's own ticks
func (n *Node) doorFlow() error {
	n.setState(StateDoorFlow)
	if err := n.link.SendByte(doorlink.CmdOpenDoor); err != nil {
		return err
	}
	n.logger.Info("door cycle")

	n.screen(textDoorIs, textUnlocking)
	n.delay.WaitSeconds(n.cfg.DoorOpenSeconds)

	n.screen(textWarning, "")
	n.delay.Pause(n.cfg.Warning)

	n.screen(textDoorIs, textClosing)
	n.delay.WaitSeconds(n.cfg.DoorHoldSeconds)

	n.screen(textDoorIs, textLocking)
	n.delay.WaitSeconds(n.cfg.DoorCloseSeconds)
	return nil
}

func (n *Node) alarmFlow() error {
	n.setState(StateAlarmFlow)
	if err := n.link.SendByte(doorlink.CmdAlarm); err != nil {
		return err
	}
	n.screen(textAlarm, "")
	n.delay.WaitSeconds(n.cfg.AlarmSeconds)
	return nil
}

func (n *Node) prompt(text string) {
	n.screen(text, "")
	n.display.MoveCursor(1, 0)
}

// screen clears the display and writes up to two rows
func (n *Node) screen(top, bottom string) {
	n.display.Clear()
	n.display.PrintAt(0, 0, top)
	if bottom != "" {
		n.display.PrintAt(1, 0, bottom)
	}
}
