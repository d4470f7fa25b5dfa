// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the Portcullis YAML configuration.
//
// Loading happens in stages: Default, Load (file over defaults), Validate
// (declarative, no mutation) and Normalize (clamping, after Validate).
package config

import (
	"time"

	"github.com/Thermoquad/portcullis/internal/control"
	"github.com/Thermoquad/portcullis/internal/hmi"
)

type Config struct {
	Link      LinkConfig      `yaml:"link"`
	Store     StoreConfig     `yaml:"store"`
	Timing    TimingConfig    `yaml:"timing"`
	Lockout   LockoutConfig   `yaml:"lockout"`
	Door      DoorConfig      `yaml:"door"`
	Alarm     AlarmConfig     `yaml:"alarm"`
	Actuators ActuatorsConfig `yaml:"actuators"`
	Log       LogConfig       `yaml:"log"`
}

// ---- LINK ----

type LinkConfig struct {
	Port     string `yaml:"port"`
	Baud     int    `yaml:"baud"`
	Parity   string `yaml:"parity"` // none | odd | even
	URL      string `yaml:"url"`    // HMI dials a Control node over WebSocket
	Listen   string `yaml:"listen"` // Control serves WebSocket on this address
	Username string `yaml:"username"`
}

// ---- STORE ----

type StoreConfig struct {
	Path         string `yaml:"path"` // empty keeps the image in memory
	StrictWrites bool   `yaml:"strict_writes"`
}

// ---- TIMING ----

type TimingConfig struct {
	WriteSettleMs int `yaml:"write_settle_ms"`
	ReadGapMs     int `yaml:"read_gap_ms"`
	KeyPressMs    int `yaml:"key_press_ms"`
	VerdictGapMs  int `yaml:"verdict_gap_ms"`
	NoticeMs      int `yaml:"notice_ms"`
	WarningMs     int `yaml:"warning_ms"`
}

// ---- POLICY ----

type LockoutConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

type DoorConfig struct {
	OpenSeconds  int `yaml:"open_seconds"`
	HoldSeconds  int `yaml:"hold_seconds"`
	CloseSeconds int `yaml:"close_seconds"`
}

type AlarmConfig struct {
	Seconds int `yaml:"seconds"`
}

// ---- ACTUATORS ----

type ActuatorsConfig struct {
	Backend string `yaml:"backend"` // fake | gpio

	MotorIn1    string `yaml:"motor_in1"`
	MotorIn2    string `yaml:"motor_in2"`
	MotorEnable string `yaml:"motor_enable"` // optional
	Buzzer      string `yaml:"buzzer"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
	File   string `yaml:"file"`   // rotated with lumberjack when set
}

// Backends
const (
	BackendFake = "fake"
	BackendGPIO = "gpio"
)

// Default returns the board configuration
func Default() *Config {
	return &Config{
		Link: LinkConfig{
			Baud:   9600,
			Parity: "even",
		},
		Store: StoreConfig{
			Path: "portcullis-eeprom.db",
		},
		Timing: TimingConfig{
			WriteSettleMs: 500,
			ReadGapMs:     10,
			KeyPressMs:    500,
			VerdictGapMs:  500,
			NoticeMs:      2000,
			WarningMs:     1500,
		},
		Lockout: LockoutConfig{MaxAttempts: 3},
		Door:    DoorConfig{OpenSeconds: 15, HoldSeconds: 3, CloseSeconds: 15},
		Alarm:   AlarmConfig{Seconds: 60},
		Actuators: ActuatorsConfig{
			Backend: BackendFake,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// ReadGap is the pause between credential compare reads
func (c *Config) ReadGap() time.Duration {
	return ms(c.Timing.ReadGapMs)
}

// Control returns the Control node settings
func (c *Config) Control() control.Config {
	return control.Config{
		WriteSettle:      ms(c.Timing.WriteSettleMs),
		DoorOpenSeconds:  c.Door.OpenSeconds,
		DoorHoldSeconds:  c.Door.HoldSeconds,
		DoorCloseSeconds: c.Door.CloseSeconds,
		AlarmSeconds:     c.Alarm.Seconds,
		StrictWrites:     c.Store.StrictWrites,
	}
}

// HMI returns the HMI node settings
func (c *Config) HMI() hmi.Config {
	notice := ms(c.Timing.NoticeMs)
	return hmi.Config{
		MaxAttempts:      c.Lockout.MaxAttempts,
		KeyPress:         ms(c.Timing.KeyPressMs),
		VerdictGap:       ms(c.Timing.VerdictGapMs),
		Notice:           notice,
		Warning:          ms(c.Timing.WarningMs),
		DoorOpenSeconds:  c.Door.OpenSeconds,
		DoorHoldSeconds:  c.Door.HoldSeconds,
		DoorCloseSeconds: c.Door.CloseSeconds,
		AlarmSeconds:     c.Alarm.Seconds,
		NoticeSeconds:    int(notice / time.Second),
	}
}
