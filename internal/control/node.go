// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package control implements the Control node: the authoritative side of the
// link that owns the credential store, the lock motor and the alarm.
//
// The node blocks on a command byte, runs the matching routine to completion
// and returns to Idle. Bytes that are not commands are ignored.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/portcullis/pkg/credstore"
	"github.com/Thermoquad/portcullis/pkg/delay"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/hal"
)

// State is the Control node state
type State int

// Control node states
const (
	StateIdle State = iota
	StateReceivingPrimary
	StateReceivingConfirmation
	StateComparing
	StateRepliedMatch
	StateRepliedMismatch
	StateDoorCycle
	StateAlarmCycle
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateReceivingPrimary:
		return "ReceivingPrimary"
	case StateReceivingConfirmation:
		return "ReceivingConfirmation"
	case StateComparing:
		return "Comparing"
	case StateRepliedMatch:
		return "RepliedMatch"
	case StateRepliedMismatch:
		return "RepliedMismatch"
	case StateDoorCycle:
		return "DoorCycle"
	case StateAlarmCycle:
		return "AlarmCycle"
	default:
		return "Unknown"
	}
}

// Config holds the Control node timings and storage policy
type Config struct {
	// WriteSettle is paused after every stored digit
	WriteSettle time.Duration

	DoorOpenSeconds  int
	DoorHoldSeconds  int
	DoorCloseSeconds int
	AlarmSeconds     int

	// StrictWrites forces a mismatch verdict when any digit of the exchange
	// failed to store. Off by default: the node continues as if written.
	StrictWrites bool
}

// DefaultConfig returns the board timings
func DefaultConfig() Config {
	return Config{
		WriteSettle:      500 * time.Millisecond,
		DoorOpenSeconds:  15,
		DoorHoldSeconds:  3,
		DoorCloseSeconds: 15,
		AlarmSeconds:     60,
	}
}

// Node is the Control node state machine
type Node struct {
	link  doorlink.Channel
	store *credstore.Store
	motor hal.Motor
	alarm hal.Alarm
	delay delay.Waiter
	cfg   Config

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

// WithStatistics sets the statistics tracker
func WithStatistics(s *doorlink.Statistics) Option {
	return func(n *Node) { n.stats = s }
}

// WithStateHook registers a callback for every state transition
func WithStateHook(fn func(State)) Option {
	return func(n *Node) { n.onState = fn }
}

// New creates a Control node
func New(link doorlink.Channel, store *credstore.Store, motor hal.Motor, alarm hal.Alarm, waiter delay.Waiter, cfg Config, opts ...Option) *Node {
	n := &Node{
		link:   link,
		store:  store,
		motor:  motor,
		alarm:  alarm,
		delay:  waiter,
		cfg:    cfg,
		logger: zap.NewNop(),
		state:  StateIdle,
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

// Run serves commands until the link fails or ctx is cancelled. Receive is
// blocking; cancel by closing the link.
func (n *Node) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := n.link.ReceiveByte()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := n.Handle(cmd); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Handle executes one command synchronously. Only link failures are
// returned; storage and actuator failures are logged and counted.
func (n *Node) Handle(cmd byte) error {
	n.stats.RecordCommand(cmd)

	switch cmd {
	case doorlink.CmdSetPassword:
		return n.setPassword()
	case doorlink.CmdVerifyPassword:
		return n.verifyPassword()
	case doorlink.CmdOpenDoor:
		n.doorCycle()
		return nil
	case doorlink.CmdAlarm:
		n.alarmCycle()
		return nil
	default:
		n.logger.Debug("ignoring unrecognized byte", zap.Uint8("byte", cmd))
		return nil
	}
}

// setPassword receives the entry into the primary region and the re-entry
// into the confirmation region, then replies with the comparison verdict
func (n *Node) setPassword() error {
	n.setState(StateReceivingPrimary)
	failedPrimary, err := n.receiveInto(credstore.Primary)
	if err != nil {
		return n.abort(err)
	}

	n.setState(StateReceivingConfirmation)
	failedConfirm, err := n.receiveInto(credstore.Confirmation)
	if err != nil {
		return n.abort(err)
	}

	return n.compareAndReply(failedPrimary || failedConfirm)
}

// verifyPassword receives a candidate into the confirmation region and
// compares it against the stored primary password
func (n *Node) verifyPassword() error {
	n.setState(StateReceivingConfirmation)
	failed, err := n.receiveInto(credstore.Confirmation)
	if err != nil {
		return n.abort(err)
	}
	return n.compareAndReply(failed)
}

func (n *Node) abort(err error) error {
	n.setState(StateIdle)
	return err
}

// receiveInto stores PasswordSize received bytes into region r. Reports
// whether any write failed.
func (n *Node) receiveInto(r credstore.Region) (bool, error) {
	failed := false
	for i := 0; i < doorlink.PasswordSize; i++ {
		b, err := n.link.ReceiveByte()
		if err != nil {
			return failed, err
		}
		if werr := n.store.Write(r, i, doorlink.Digit(b)); werr != nil {
			failed = true
			n.stats.RecordWriteFailure()
			n.logger.Warn("credential write failed", zap.Error(werr))
		}
		n.delay.Pause(n.cfg.WriteSettle)
	}
	return failed, nil
}

func (n *Node) compareAndReply(writeFailed bool) error {
	n.setState(StateComparing)

	matched, err := n.store.VerifyEqual()
	if err != nil {
		n.stats.RecordReadFailure()
		n.logger.Warn("credential read failed, replying mismatch", zap.Error(err))
		matched = false
	}
	if writeFailed && n.cfg.StrictWrites && matched {
		n.logger.Warn("forcing mismatch after failed credential write")
		matched = false
	}

	verdict, next := doorlink.VerdictMismatch, StateRepliedMismatch
	if matched {
		verdict, next = doorlink.VerdictMatch, StateRepliedMatch
	}
	if err := n.link.SendByte(verdict); err != nil {
		return n.abort(err)
	}
	n.stats.RecordVerdict(verdict)
	n.setState(next)
	n.setState(StateIdle)
	return nil
}

// doorCycle unlocks, holds and relocks the door
func (n *Node) doorCycle() {
	n.setState(StateDoorCycle)

	n.drive(hal.Forward, hal.MaxSpeed)
	n.delay.WaitSeconds(n.cfg.DoorOpenSeconds)

	n.drive(hal.Stop, 0)
	n.delay.WaitSeconds(n.cfg.DoorHoldSeconds)

	n.drive(hal.Reverse, hal.MaxSpeed)
	n.delay.WaitSeconds(n.cfg.DoorCloseSeconds)

	n.drive(hal.Stop, 0)
	n.setState(StateIdle)
}

func (n *Node) drive(dir hal.Direction, speed uint8) {
	if err := n.motor.Rotate(dir, speed); err != nil {
		n.stats.RecordActuatorFailure()
		n.logger.Error("lock motor drive failed", zap.Stringer("direction", dir), zap.Error(err))
	}
}

// alarmCycle sounds the alarm for the configured window
func (n *Node) alarmCycle() {
	n.setState(StateAlarmCycle)

	if err := n.alarm.On(); err != nil {
		n.stats.RecordActuatorFailure()
		n.logger.Error("alarm on failed", zap.Error(err))
	}
	n.delay.WaitSeconds(n.cfg.AlarmSeconds)

	if err := n.alarm.Off(); err != nil {
		n.stats.RecordActuatorFailure()
		n.logger.Error("alarm off failed", zap.Error(err))
	}
	n.setState(StateIdle)
}

// IsLinkClosed reports whether err means the partner went away
func IsLinkClosed(err error) bool {
	return errors.Is(err, doorlink.ErrLinkClosed)
}
