// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package fake implements simulated lock actuators. They log through zap and
// append every drive change to a shared Journal so a run can be inspected
// in order.
package fake

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/portcullis/pkg/hal"
)

// Journal is an ordered, concurrency-safe list of events
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// Add appends a formatted entry
func (j *Journal) Add(format string, args ...interface{}) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

// Entries returns a copy of all entries
func (j *Journal) Entries() []string {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

// Reset drops all entries
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

// ErrInjected is returned by actuators configured to fail
var ErrInjected = errors.New("injected actuator failure")

// Motor is a simulated lock motor
type Motor struct {
	Journal *Journal
	Logger  *zap.Logger
	// Fail makes every Rotate call return ErrInjected after recording it
	Fail bool

	mu    sync.Mutex
	dir   hal.Direction
	speed uint8
}

// Rotate records the new drive state
func (m *Motor) Rotate(dir hal.Direction, speed uint8) error {
	m.mu.Lock()
	m.dir, m.speed = dir, speed
	m.mu.Unlock()

	m.Journal.Add("motor %s %d", dir, speed)
	if m.Logger != nil {
		m.Logger.Info("lock motor", zap.Stringer("direction", dir), zap.Uint8("speed", speed))
	}
	if m.Fail {
		return ErrInjected
	}
	return nil
}

// State returns the current drive state
func (m *Motor) State() (hal.Direction, uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dir, m.speed
}

// Alarm is a simulated buzzer
type Alarm struct {
	Journal *Journal
	Logger  *zap.Logger

	mu     sync.Mutex
	active bool
}

// On activates the alarm
func (a *Alarm) On() error {
	a.set(true)
	return nil
}

// Off deactivates the alarm
func (a *Alarm) Off() error {
	a.set(false)
	return nil
}

func (a *Alarm) set(active bool) {
	a.mu.Lock()
	a.active = active
	a.mu.Unlock()

	state := "off"
	if active {
		state = "on"
	}
	a.Journal.Add("alarm %s", state)
	if a.Logger != nil {
		a.Logger.Info("alarm", zap.Bool("active", active))
	}
}

// Active reports whether the alarm is sounding
func (a *Alarm) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}
