// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PWMFrequency is the motor enable PWM frequency used for partial speeds
const PWMFrequency = 500 * physic.Hertz

var (
	hostOnce sync.Once
	hostErr  error
)

// OpenPin initializes the host drivers once and looks up a GPIO by name
// (for example "GPIO17")
func OpenPin(name string) (gpio.PinIO, error) {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("failed to initialize GPIO host: %w", hostErr)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("GPIO pin %q not found", name)
	}
	return pin, nil
}

// GPIOAlarm drives a buzzer from one digital output
type GPIOAlarm struct {
	pin gpio.PinOut
}

// NewGPIOAlarm wraps pin and drives it low
func NewGPIOAlarm(pin gpio.PinOut) (*GPIOAlarm, error) {
	a := &GPIOAlarm{pin: pin}
	if err := a.Off(); err != nil {
		return nil, err
	}
	return a, nil
}

// On drives the buzzer pin high
func (a *GPIOAlarm) On() error {
	return a.pin.Out(gpio.High)
}

// Off drives the buzzer pin low
func (a *GPIOAlarm) Off() error {
	return a.pin.Out(gpio.Low)
}

// HBridge drives a DC motor through two direction inputs and an optional
// enable input
type HBridge struct {
	in1, in2 gpio.PinOut
	enable   gpio.PinOut
}

// NewHBridge wraps the bridge pins and stops the motor. enable may be nil
// when the bridge enable is tied high.
func NewHBridge(in1, in2, enable gpio.PinOut) (*HBridge, error) {
	h := &HBridge{in1: in1, in2: in2, enable: enable}
	if err := h.Rotate(Stop, 0); err != nil {
		return nil, err
	}
	return h, nil
}

// Rotate sets the bridge direction and speed (0-100)
func (h *HBridge) Rotate(dir Direction, speed uint8) error {
	a, b := gpio.Low, gpio.Low
	switch dir {
	case Forward:
		a = gpio.High
	case Reverse:
		b = gpio.High
	case Stop:
		speed = 0
	default:
		return fmt.Errorf("invalid motor direction %d", dir)
	}
	if speed > MaxSpeed {
		speed = MaxSpeed
	}

	err := multierr.Combine(h.in1.Out(a), h.in2.Out(b))
	if h.enable == nil {
		return err
	}
	switch speed {
	case 0:
		err = multierr.Append(err, h.enable.Out(gpio.Low))
	case MaxSpeed:
		err = multierr.Append(err, h.enable.Out(gpio.High))
	default:
		duty := gpio.Duty(int64(gpio.DutyMax) * int64(speed) / int64(MaxSpeed))
		err = multierr.Append(err, h.enable.PWM(duty, PWMFrequency))
	}
	return err
}
