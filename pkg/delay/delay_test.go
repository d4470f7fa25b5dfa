// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package delay

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// manualTimer delivers ticks only when the test calls tick
type manualTimer struct {
	mu      sync.Mutex
	onTick  func()
	running bool
	starts  int
	stops   int
}

func (m *manualTimer) Start(cfg TimerConfig, onTick func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTick = onTick
	m.running = true
	m.starts++
	return nil
}

func (m *manualTimer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.stops++
	}
	m.running = false
}

func (m *manualTimer) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *manualTimer) tick() {
	m.mu.Lock()
	f, running := m.onTick, m.running
	m.mu.Unlock()
	if running {
		f()
	}
}

func TestTimerConfig_Period(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TimerConfig
		want    time.Duration
		wantErr bool
	}{
		{name: "control preset", cfg: ControlTimerConfig, want: time.Second},
		{name: "hmi preset", cfg: HMITimerConfig, want: 1000064 * time.Microsecond},
		{name: "bad prescaler", cfg: TimerConfig{CompareValue: 31249, Prescaler: 100, Mode: ModeCompare}, wantErr: true},
		{name: "wrong period", cfg: TimerConfig{CompareValue: 999, Prescaler: 8, Mode: ModeCompare}, want: time.Millisecond, wantErr: true},
		{name: "normal mode overflow", cfg: TimerConfig{InitialValue: 34286, Prescaler: 256, Mode: ModeNormal}, want: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want != 0 {
				assert.Equal(t, tt.want, tt.cfg.Period())
			}
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_WaitSecondsReturnsOnTickNPlusOne(t *testing.T) {
	timer := &manualTimer{}
	s := NewService(timer, ControlTimerConfig)

	done := make(chan struct{})
	go func() {
		s.WaitSeconds(3)
		close(done)
	}()

	require.Eventually(t, timer.isRunning, time.Second, time.Millisecond)

	for i := 0; i < 3; i++ {
		timer.tick()
	}
	select {
	case <-done:
		t.Fatal("WaitSeconds(3) returned after 3 ticks")
	case <-time.After(50 * time.Millisecond):
	}

	timer.tick()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitSeconds(3) did not return after 4 ticks")
	}

	assert.False(t, timer.isRunning(), "timer must be disarmed after the wait")
	assert.Equal(t, 1, timer.stops)
	assert.EqualValues(t, 0, s.Ticks(), "counter must be reset after the wait")
}

func TestService_WaitZeroNeedsOneTick(t *testing.T) {
	timer := &manualTimer{}
	s := NewService(timer, ControlTimerConfig)

	done := make(chan struct{})
	go func() {
		s.WaitSeconds(0)
		close(done)
	}()

	require.Eventually(t, timer.isRunning, time.Second, time.Millisecond)
	timer.tick()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitSeconds(0) did not return after 1 tick")
	}
}

func TestService_ConsecutiveWaitsRearm(t *testing.T) {
	timer := &manualTimer{}
	s := NewService(timer, ControlTimerConfig)

	for round := 1; round <= 2; round++ {
		done := make(chan struct{})
		go func() {
			s.WaitSeconds(1)
			close(done)
		}()
		require.Eventually(t, timer.isRunning, time.Second, time.Millisecond)
		timer.tick()
		timer.tick()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("round %d did not finish", round)
		}
		assert.Equal(t, round, timer.starts)
	}
}

func TestService_OnTickNeverBlocks(t *testing.T) {
	s := NewService(&manualTimer{}, ControlTimerConfig)
	for i := 0; i < 100; i++ {
		s.OnTick()
	}
	assert.EqualValues(t, 100, s.Ticks())
}

func TestClockTimer_MockClock(t *testing.T) {
	mock := clock.NewMock()
	timer := NewClockTimer(mock)
	count := atomic.NewInt32(0)

	require.NoError(t, timer.Start(ControlTimerConfig, func() { count.Inc() }))
	assert.True(t, timer.Running())

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, time.Millisecond)

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return count.Load() == 2 }, time.Second, time.Millisecond)

	timer.Stop()
	assert.False(t, timer.Running())
	mock.Add(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.EqualValues(t, 2, count.Load())
}

func TestClockTimer_RejectsBadConfig(t *testing.T) {
	timer := NewClockTimer(clock.NewMock())
	err := timer.Start(TimerConfig{Prescaler: 3}, func() {})
	assert.Error(t, err)
	assert.False(t, timer.Running())
}

func TestService_WithClockTimer(t *testing.T) {
	mock := clock.NewMock()
	timer := NewClockTimer(mock)
	s := NewService(timer, ControlTimerConfig, WithClock(mock))

	done := make(chan struct{})
	go func() {
		s.WaitSeconds(2)
		close(done)
	}()

	require.Eventually(t, timer.Running, time.Second, time.Millisecond)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return s.Ticks() == 1 }, time.Second, time.Millisecond)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return s.Ticks() == 2 }, time.Second, time.Millisecond)
	mock.Add(time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitSeconds(2) did not return on the third tick")
	}
	assert.False(t, timer.Running())
}

func TestService_Pause(t *testing.T) {
	mock := clock.NewMock()
	s := NewService(&manualTimer{}, ControlTimerConfig, WithClock(mock))

	done := make(chan struct{})
	go func() {
		s.Pause(500 * time.Millisecond)
		close(done)
	}()

	// Give the goroutine time to register its sleep timer with the mock
	time.Sleep(10 * time.Millisecond)
	mock.Add(500 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pause did not return")
	}

	s.Pause(0)
}
