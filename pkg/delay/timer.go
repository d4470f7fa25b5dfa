// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delay

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Mode selects how the tick generator counts
type Mode uint8

// Counting modes
const (
	// ModeNormal counts from InitialValue up to overflow (0x10000)
	ModeNormal Mode = iota
	// ModeCompare counts from InitialValue up to CompareValue inclusive
	ModeCompare
)

// Valid prescaler divisors
var prescalers = map[uint16]bool{1: true, 8: true, 64: true, 256: true, 1024: true}

// DefaultCPUFrequency is the clock both boards run at
const DefaultCPUFrequency = 8_000_000

// TimerConfig is the tick generator's configuration tuple, supplied once per
// Start call
type TimerConfig struct {
	InitialValue uint16
	CompareValue uint16
	Prescaler    uint16
	Mode         Mode
	CPUFrequency uint32 // Hz; zero means DefaultCPUFrequency
}

// Presets reproducing the board timer settings. Both resolve to a ~1 s tick.
var (
	// ControlTimerConfig: 8 MHz / 256 = 31250 Hz, 31250 counts
	ControlTimerConfig = TimerConfig{InitialValue: 0, CompareValue: 31249, Prescaler: 256, Mode: ModeCompare}
	// HMITimerConfig: 8 MHz / 1024 = 7812.5 Hz, 7813 counts
	HMITimerConfig = TimerConfig{InitialValue: 0, CompareValue: 7812, Prescaler: 1024, Mode: ModeCompare}
)

// Period returns the tick period the configuration produces
func (c TimerConfig) Period() time.Duration {
	hz := c.CPUFrequency
	if hz == 0 {
		hz = DefaultCPUFrequency
	}
	var counts uint64
	switch c.Mode {
	case ModeCompare:
		counts = uint64(c.CompareValue) + 1 - uint64(c.InitialValue)
	default:
		counts = 0x10000 - uint64(c.InitialValue)
	}
	return time.Duration(counts * uint64(c.Prescaler) * uint64(time.Second) / uint64(hz))
}

// Validate checks that the configuration produces a 1 Hz tick (±1%)
func (c TimerConfig) Validate() error {
	if !prescalers[c.Prescaler] {
		return fmt.Errorf("invalid prescaler %d (want 1, 8, 64, 256 or 1024)", c.Prescaler)
	}
	if c.Mode == ModeCompare && c.CompareValue < c.InitialValue {
		return fmt.Errorf("compare value %d below initial value %d", c.CompareValue, c.InitialValue)
	}
	period := c.Period()
	if period < 990*time.Millisecond || period > 1010*time.Millisecond {
		return fmt.Errorf("tick period %s is not 1s", period)
	}
	return nil
}

// Timer is the tick generation collaborator. While started it delivers
// periodic tick events to exactly one handler.
type Timer interface {
	Start(cfg TimerConfig, onTick func()) error
	Stop()
}

// ClockTimer is a Timer driven by a clock.Clock (real or mock)
type ClockTimer struct {
	clock clock.Clock

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewClockTimer creates a timer on c. A nil clock uses the wall clock.
func NewClockTimer(c clock.Clock) *ClockTimer {
	if c == nil {
		c = clock.New()
	}
	return &ClockTimer{clock: c}
}

// Start arms the periodic tick, replacing any previous handler
func (t *ClockTimer) Start(cfg TimerConfig, onTick func()) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	ticker := t.clock.Ticker(cfg.Period())
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onTick()
			}
		}
	}()
	return nil
}

// Stop disarms the tick. No handler call happens after Stop returns.
func (t *ClockTimer) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the tick is armed
func (t *ClockTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}
