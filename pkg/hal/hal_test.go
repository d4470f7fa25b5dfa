// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestLCD_Narration(t *testing.T) {
	lcd := NewLCD()
	var updates int
	lcd.OnChange(func([]string) { updates++ })

	lcd.Clear()
	lcd.Print("Plz Enter Pass:")
	lcd.MoveCursor(1, 0)
	for i := 0; i < 3; i++ {
		lcd.PutChar('*')
	}

	assert.Equal(t, []string{"Plz Enter Pass:", "***"}, lcd.Lines())
	row, col := lcd.Cursor()
	assert.Equal(t, 1, row)
	assert.Equal(t, 3, col)
	assert.Equal(t, 6, updates)
}

func TestLCD_ClipsLongRows(t *testing.T) {
	lcd := NewLCD()
	lcd.PrintAt(0, 10, "overflowing text")
	lcd.PrintAt(5, 0, "off screen")

	lines := lcd.Lines()
	assert.Equal(t, "          overfl", lines[0])
	assert.Equal(t, "", lines[1])
}

func TestLCD_ClearHomesCursor(t *testing.T) {
	lcd := NewLCD()
	lcd.PrintAt(1, 4, "Same Pass:")
	lcd.Clear()
	row, col := lcd.Cursor()
	assert.Zero(t, row)
	assert.Zero(t, col)
	assert.Equal(t, []string{"", ""}, lcd.Lines())
}

func TestIsDigitKey(t *testing.T) {
	for k := byte(0); k <= 9; k++ {
		assert.True(t, IsDigitKey(k))
	}
	for _, k := range []byte{KeyEnter, KeyOpen, KeyChange, KeyMultiply, KeyDivide, KeyClear} {
		assert.False(t, IsDigitKey(k), "key %q", k)
	}
}

func TestHBridge(t *testing.T) {
	in1 := &gpiotest.Pin{N: "IN1"}
	in2 := &gpiotest.Pin{N: "IN2"}
	en := &gpiotest.Pin{N: "EN"}

	h, err := NewHBridge(in1, in2, en)
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, in1.Read())
	assert.Equal(t, gpio.Low, in2.Read())

	tests := []struct {
		dir      Direction
		speed    uint8
		in1, in2 gpio.Level
	}{
		{Forward, MaxSpeed, gpio.High, gpio.Low},
		{Stop, 0, gpio.Low, gpio.Low},
		{Reverse, MaxSpeed, gpio.Low, gpio.High},
		{Stop, MaxSpeed, gpio.Low, gpio.Low},
	}
	for _, tt := range tests {
		t.Run(tt.dir.String(), func(t *testing.T) {
			require.NoError(t, h.Rotate(tt.dir, tt.speed))
			assert.Equal(t, tt.in1, in1.Read())
			assert.Equal(t, tt.in2, in2.Read())
		})
	}

	require.NoError(t, h.Rotate(Forward, 50))
	assert.Equal(t, gpio.DutyMax/2, en.D)

	assert.Error(t, h.Rotate(Direction(9), 10))
}

func TestGPIOAlarm(t *testing.T) {
	pin := &gpiotest.Pin{N: "BUZZER", L: gpio.High}
	a, err := NewGPIOAlarm(pin)
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, pin.Read())

	require.NoError(t, a.On())
	assert.Equal(t, gpio.High, pin.Read())
	require.NoError(t, a.Off())
	assert.Equal(t, gpio.Low, pin.Read())
}

func TestQueueKeypad(t *testing.T) {
	k := NewQueueKeypad(2)
	require.True(t, k.Type("7+"))
	assert.False(t, k.TryPress(KeyEnter), "queue is full")

	key, err := k.GetPressedKey()
	require.NoError(t, err)
	assert.Equal(t, byte(7), key)

	assert.True(t, k.TryPress(KeyEnter))
	require.NoError(t, k.Close())

	// Keys queued before Close are still delivered
	for _, want := range []byte{KeyOpen, KeyEnter} {
		key, err = k.GetPressedKey()
		require.NoError(t, err)
		assert.Equal(t, want, key)
	}
	_, err = k.GetPressedKey()
	assert.ErrorIs(t, err, ErrKeypadClosed)
	assert.False(t, k.TryPress(1))
	assert.False(t, k.Press(1))
}
