// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package fake

import (
	"sync"
	"time"
)

// Waiter returns immediately from every wait. Whole-second waits are
// journaled as "wait N" so they interleave with actuator events.
type Waiter struct {
	Journal *Journal

	mu     sync.Mutex
	pauses []time.Duration
}

// WaitSeconds records the wait and returns
func (w *Waiter) WaitSeconds(n int) {
	w.Journal.Add("wait %d", n)
}

// Pause records the pause and returns
func (w *Waiter) Pause(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pauses = append(w.pauses, d)
}

// Pauses returns the recorded pauses in order
func (w *Waiter) Pauses() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]time.Duration, len(w.pauses))
	copy(out, w.pauses)
	return out
}
