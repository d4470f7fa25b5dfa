// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"

	"github.com/Thermoquad/portcullis/internal/config"
	"github.com/Thermoquad/portcullis/internal/logging"
	"github.com/Thermoquad/portcullis/pkg/credstore"
	"github.com/Thermoquad/portcullis/pkg/delay"
	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/eeprom"
	"github.com/Thermoquad/portcullis/pkg/hal"
	"github.com/Thermoquad/portcullis/pkg/hal/fake"
)

func nopClose() error { return nil }

// newLogger builds the command logger. TUI commands only log to a file.
func newLogger(cfg *config.Config, tui bool) (*zap.Logger, func() error, error) {
	return logging.New(cfg.Log, tui)
}

// openStore opens the credential store over the configured EEPROM image.
// An empty path keeps the image in memory.
func openStore(cfg *config.Config, waiter delay.Waiter, logger *zap.Logger) (*credstore.Store, func() error, error) {
	var (
		mem     eeprom.Memory
		closeFn = nopClose
	)
	if cfg.Store.Path == "" {
		logger.Warn("no store path configured, credentials will not persist")
		mem = eeprom.NewImage()
	} else {
		db, err := eeprom.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("credential store opened", zap.String("path", db.Path()))
		mem, closeFn = db, db.Close
	}

	store := credstore.New(mem, credstore.WithReadGap(cfg.ReadGap(), waiter.Pause))
	return store, closeFn, nil
}

// openActuators builds the lock motor and alarm for the configured backend
func openActuators(cfg config.ActuatorsConfig, journal *fake.Journal, logger *zap.Logger) (hal.Motor, hal.Alarm, error) {
	if cfg.Backend != config.BackendGPIO {
		return &fake.Motor{Journal: journal, Logger: logger.Named("motor")},
			&fake.Alarm{Journal: journal, Logger: logger.Named("alarm")}, nil
	}

	var pins []gpio.PinIO
	for _, name := range []string{cfg.MotorIn1, cfg.MotorIn2, cfg.Buzzer} {
		pin, err := hal.OpenPin(name)
		if err != nil {
			return nil, nil, err
		}
		pins = append(pins, pin)
	}

	var enable gpio.PinOut
	if cfg.MotorEnable != "" {
		pin, err := hal.OpenPin(cfg.MotorEnable)
		if err != nil {
			return nil, nil, err
		}
		enable = pin
	}

	motor, err := hal.NewHBridge(pins[0], pins[1], enable)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize motor: %w", err)
	}
	alarm, err := hal.NewGPIOAlarm(pins[2])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize alarm: %w", err)
	}
	logger.Info("gpio actuators ready",
		zap.String("in1", cfg.MotorIn1), zap.String("in2", cfg.MotorIn2), zap.String("buzzer", cfg.Buzzer))
	return motor, alarm, nil
}

// newDelayService builds a node's tick service on the wall clock
func newDelayService(cfg delay.TimerConfig, logger *zap.Logger) *delay.Service {
	c := clock.New()
	return delay.NewService(delay.NewClockTimer(c), cfg, delay.WithClock(c), delay.WithLogger(logger))
}

// trafficRecorder observes link bytes: it counts them, decodes exchanges
// for the debug log and optionally appends them to a capture file. Taps may
// fire from both node goroutines in one process.
type trafficRecorder struct {
	mu      sync.Mutex
	stats   *doorlink.Statistics
	decoder *doorlink.Decoder
	capture *doorlink.CaptureWriter
	file    io.Closer
	logger  *zap.Logger
	onFrame func(*doorlink.Frame)
}

func newTrafficRecorder(path string, stats *doorlink.Statistics, logger *zap.Logger) (*trafficRecorder, error) {
	r := &trafficRecorder{
		stats:   stats,
		decoder: doorlink.NewDecoder(),
		logger:  logger,
	}
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create capture file: %w", err)
		}
		r.capture = doorlink.NewCaptureWriter(f)
		r.file = f
		logger.Info("capturing link traffic", zap.String("path", path))
	}
	return r, nil
}

// Tap is installed on a link
func (r *trafficRecorder) Tap(dir doorlink.Direction, b byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.RecordByte()
	r.logger.Debug("link byte", zap.Stringer("dir", dir), zap.Uint8("byte", b))

	if r.capture != nil {
		if err := r.capture.Write(dir, b); err != nil {
			r.logger.Warn("capture write failed, disabling capture", zap.Error(err))
			r.capture = nil
		}
	}

	frame, err := r.decoder.Feed(dir, b)
	if err != nil {
		r.logger.Debug("link decode", zap.Error(err))
		return
	}
	if frame != nil {
		r.logger.Debug("exchange", zap.String("command", doorlink.FormatCommand(frame.Command)),
			zap.Bool("has_verdict", frame.HasVerdict), zap.Bool("matched", frame.Matched()))
		if r.onFrame != nil {
			r.onFrame(frame)
		}
	}
}

func (r *trafficRecorder) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// closeAll closes everything, combining errors
func closeAll(fns ...func() error) error {
	var err error
	for _, fn := range fns {
		if fn != nil {
			err = multierr.Append(err, fn())
		}
	}
	return err
}
