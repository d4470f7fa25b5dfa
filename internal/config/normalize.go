// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

// MaxLockoutAttempts bounds lockout.max_attempts
const MaxLockoutAttempts = 9

// Normalize applies post-validation normalization.
// It may mutate cfg and must be called only after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Lockout.MaxAttempts > MaxLockoutAttempts {
		cfg.Lockout.MaxAttempts = MaxLockoutAttempts
	}

	// Bootstrap notices are counted in whole ticks
	if cfg.Timing.NoticeMs > 0 && cfg.Timing.NoticeMs < 1000 {
		cfg.Timing.NoticeMs = 1000
	}
}
