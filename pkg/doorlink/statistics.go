// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package doorlink

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of link and node statistics
type Counters struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Traffic
	TotalBytes     uint64
	SetRequests    uint64
	VerifyRequests uint64
	DoorCycles     uint64
	Alarms         uint64
	UnknownBytes   uint64

	// Outcomes
	Matches         uint64
	Mismatches      uint64
	InvalidVerdicts uint64
	Lockouts        uint64

	// Collaborator failures
	StorageWriteFailures uint64
	StorageReadFailures  uint64
	ActuatorFailures     uint64

	// Rates (calculated)
	ByteRate float64 // bytes/sec
}

// Statistics tracks protocol counters. Safe for concurrent use so a UI can
// read it while a node updates it.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{c: Counters{StartTime: now, LastUpdateTime: now}}
}

func (s *Statistics) update(fn func(c *Counters)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	fn(&s.c)
	s.mu.Unlock()
}

// RecordByte counts one byte crossing the link
func (s *Statistics) RecordByte() {
	s.update(func(c *Counters) { c.TotalBytes++ })
}

// RecordCommand counts a command byte; anything else counts as unknown
func (s *Statistics) RecordCommand(b byte) {
	s.update(func(c *Counters) {
		switch b {
		case CmdSetPassword:
			c.SetRequests++
		case CmdVerifyPassword:
			c.VerifyRequests++
		case CmdOpenDoor:
			c.DoorCycles++
		case CmdAlarm:
			c.Alarms++
		default:
			c.UnknownBytes++
		}
	})
}

// RecordVerdict counts a verdict byte
func (s *Statistics) RecordVerdict(b byte) {
	s.update(func(c *Counters) {
		switch b {
		case VerdictMatch:
			c.Matches++
		case VerdictMismatch:
			c.Mismatches++
		default:
			c.InvalidVerdicts++
		}
	})
}

// RecordLockout counts an exhausted 3-strike sequence
func (s *Statistics) RecordLockout() {
	s.update(func(c *Counters) { c.Lockouts++ })
}

// RecordWriteFailure counts a persistent storage write failure
func (s *Statistics) RecordWriteFailure() {
	s.update(func(c *Counters) { c.StorageWriteFailures++ })
}

// RecordReadFailure counts a persistent storage read failure
func (s *Statistics) RecordReadFailure() {
	s.update(func(c *Counters) { c.StorageReadFailures++ })
}

// RecordActuatorFailure counts a motor or alarm drive failure
func (s *Statistics) RecordActuatorFailure() {
	s.update(func(c *Counters) { c.ActuatorFailures++ })
}

// CalculateRates updates the calculated rates
func (s *Statistics) CalculateRates() {
	s.update(func(c *Counters) {
		now := time.Now()
		c.LastUpdateTime = now
		elapsed := now.Sub(c.StartTime).Seconds()
		if elapsed > 0 {
			c.ByteRate = float64(c.TotalBytes) / elapsed
		}
	})
}

// Snapshot returns a copy of the current counters
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// Format returns a formatted statistics summary
func (s *Statistics) Format() string {
	c := s.Snapshot()
	uptime := time.Since(c.StartTime).Round(time.Second)

	result := fmt.Sprintf("Uptime: %s, Bytes: %d (%.1f/s)\n", uptime, c.TotalBytes, c.ByteRate)
	result += fmt.Sprintf("Requests: set=%d verify=%d door=%d alarm=%d unknown=%d\n",
		c.SetRequests, c.VerifyRequests, c.DoorCycles, c.Alarms, c.UnknownBytes)
	result += fmt.Sprintf("Verdicts: match=%d mismatch=%d invalid=%d, Lockouts: %d\n",
		c.Matches, c.Mismatches, c.InvalidVerdicts, c.Lockouts)
	if c.StorageWriteFailures > 0 || c.StorageReadFailures > 0 || c.ActuatorFailures > 0 {
		result += fmt.Sprintf("Failures: storage-write=%d storage-read=%d actuator=%d\n",
			c.StorageWriteFailures, c.StorageReadFailures, c.ActuatorFailures)
	}
	return result
}
