// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package delay implements the per-node Delay Service: a tick counter fed by
// a 1 Hz timer collaborator and the blocking waits built on top of it.
//
// Each node owns exactly one Service. The tick handler only increments the
// counter; WaitSeconds blocks the calling (node) goroutine until the counter
// passes the requested number of seconds. Waits cannot be cancelled.
package delay

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Waiter is the blocking delay surface the node state machines use
type Waiter interface {
	// WaitSeconds blocks until more than n ticks have elapsed
	WaitSeconds(n int)
	// Pause blocks for a sub-second settle or debounce interval
	Pause(d time.Duration)
}

// Service owns the tick counter of one node
type Service struct {
	timer  Timer
	config TimerConfig
	clock  clock.Clock
	logger *zap.Logger

	ticks  *atomic.Uint32
	tickCh chan struct{}
}

// Option configures a Service
type Option func(*Service)

// WithClock sets the clock used by Pause and by the fallback wait
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a delay service arming timer with cfg
func NewService(timer Timer, cfg TimerConfig, opts ...Option) *Service {
	s := &Service{
		timer:  timer,
		config: cfg,
		clock:  clock.New(),
		logger: zap.NewNop(),
		ticks:  atomic.NewUint32(0),
		tickCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTick is the registered tick handler. It increments the counter and
// signals a pending wait without blocking.
func (s *Service) OnTick() {
	s.ticks.Inc()
	select {
	case s.tickCh <- struct{}{}:
	default:
	}
}

// Ticks returns the current counter value
func (s *Service) Ticks() uint32 {
	return s.ticks.Load()
}

// Start arms the periodic tick with OnTick as its handler
func (s *Service) Start() error {
	return s.timer.Start(s.config, s.OnTick)
}

// Stop disarms the tick
func (s *Service) Stop() {
	s.timer.Stop()
}

// WaitSeconds arms the timer, resets the counter and blocks until the
// counter exceeds n, then disarms the timer and resets the counter again.
// A freshly armed timer therefore returns on tick n+1.
func (s *Service) WaitSeconds(n int) {
	if n < 0 {
		n = 0
	}

	s.ticks.Store(0)
	s.drain()

	if err := s.Start(); err != nil {
		// The timer collaborator rejected its configuration; keep the
		// blocking contract with the wall clock instead.
		s.logger.Warn("tick timer unavailable, sleeping instead", zap.Error(err))
		s.clock.Sleep(time.Duration(n+1) * s.config.Period())
		return
	}

	for s.ticks.Load() <= uint32(n) {
		<-s.tickCh
	}

	s.timer.Stop()
	s.ticks.Store(0)
}

// Pause blocks for d on the service clock
func (s *Service) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	s.clock.Sleep(d)
}

func (s *Service) drain() {
	for {
		select {
		case <-s.tickCh:
		default:
			return
		}
	}
}
