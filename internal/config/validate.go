// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ---- link ----

	if cfg.Link.Baud <= 0 {
		return fmt.Errorf("link.baud must be positive, got %d", cfg.Link.Baud)
	}
	switch cfg.Link.Parity {
	case "none", "odd", "even":
	default:
		return fmt.Errorf("link.parity must be none, odd or even, got %q", cfg.Link.Parity)
	}

	// ---- timing ----

	timings := []struct {
		name string
		v    int
	}{
		{"timing.write_settle_ms", cfg.Timing.WriteSettleMs},
		{"timing.read_gap_ms", cfg.Timing.ReadGapMs},
		{"timing.key_press_ms", cfg.Timing.KeyPressMs},
		{"timing.verdict_gap_ms", cfg.Timing.VerdictGapMs},
		{"timing.notice_ms", cfg.Timing.NoticeMs},
		{"timing.warning_ms", cfg.Timing.WarningMs},
		{"door.open_seconds", cfg.Door.OpenSeconds},
		{"door.hold_seconds", cfg.Door.HoldSeconds},
		{"door.close_seconds", cfg.Door.CloseSeconds},
		{"alarm.seconds", cfg.Alarm.Seconds},
	}
	for _, tm := range timings {
		if tm.v < 0 {
			return fmt.Errorf("%s must not be negative, got %d", tm.name, tm.v)
		}
	}

	if cfg.Lockout.MaxAttempts < 1 {
		return fmt.Errorf("lockout.max_attempts must be at least 1, got %d", cfg.Lockout.MaxAttempts)
	}

	// ---- actuators ----

	switch cfg.Actuators.Backend {
	case BackendFake:
	case BackendGPIO:
		if cfg.Actuators.MotorIn1 == "" || cfg.Actuators.MotorIn2 == "" {
			return fmt.Errorf("actuators: gpio backend requires motor_in1 and motor_in2")
		}
		if cfg.Actuators.Buzzer == "" {
			return fmt.Errorf("actuators: gpio backend requires buzzer")
		}
	default:
		return fmt.Errorf("actuators.backend must be %q or %q, got %q", BackendFake, BackendGPIO, cfg.Actuators.Backend)
	}

	// ---- log ----

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", cfg.Log.Format)
	}

	return nil
}
