// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"errors"
	"sync"
)

// ErrKeypadClosed is returned by GetPressedKey after Close
var ErrKeypadClosed = errors.New("keypad closed")

// QueueKeypad is a Keypad fed by software: the terminal UI pushes key
// presses into it and tests script them.
type QueueKeypad struct {
	keys chan byte
	done chan struct{}
	once sync.Once
}

// NewQueueKeypad creates a keypad buffering up to buffer pending presses
func NewQueueKeypad(buffer int) *QueueKeypad {
	return &QueueKeypad{
		keys: make(chan byte, buffer),
		done: make(chan struct{}),
	}
}

// Press queues key codes. Returns false if the keypad was closed.
func (k *QueueKeypad) Press(keys ...byte) bool {
	for _, key := range keys {
		select {
		case k.keys <- key:
		case <-k.done:
			return false
		}
	}
	return true
}

// TryPress queues one key without blocking. Returns false if the queue is
// full or the keypad is closed.
func (k *QueueKeypad) TryPress(key byte) bool {
	select {
	case <-k.done:
		return false
	default:
	}
	select {
	case k.keys <- key:
		return true
	default:
		return false
	}
}

// Type queues the keys for a string: '0'-'9' become digit keys, any other
// character is queued as its own code
func (k *QueueKeypad) Type(s string) bool {
	keys := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		keys = append(keys, KeyFromRune(rune(s[i])))
	}
	return k.Press(keys...)
}

// KeyFromRune maps a typed character to a key code
func KeyFromRune(r rune) byte {
	if r >= '0' && r <= '9' {
		return byte(r - '0')
	}
	return byte(r)
}

// GetPressedKey blocks until a key is queued or the keypad is closed. Keys
// queued before Close are still delivered.
func (k *QueueKeypad) GetPressedKey() (byte, error) {
	select {
	case key := <-k.keys:
		return key, nil
	default:
	}
	select {
	case key := <-k.keys:
		return key, nil
	case <-k.done:
		return 0, ErrKeypadClosed
	}
}

// Close unblocks pending and future reads
func (k *QueueKeypad) Close() error {
	k.once.Do(func() { close(k.done) })
	return nil
}
