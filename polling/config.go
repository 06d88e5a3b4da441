// go-toypad
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-toypad.
//
// go-toypad is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-toypad is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-toypad; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package polling

import "time"

// SleepRecoveryConfig controls how a watcher notices that the host slept
// while a tag sat on the reader, and how hard it tries to wake the reader.
type SleepRecoveryConfig struct {
	// Enabled turns sleep detection on
	Enabled bool

	// TimeDiscontinuityThreshold is how far past the poll interval a gap
	// between two removal polls may grow before it counts as a sleep.
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts bounds the SAM re-configurations tried per wake.
	MaxRecoveryAttempts int

	// RecoveryBackoff is the pause between attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns the settings used by DefaultConfig.
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed, the time since the previous removal
// poll, is longer than pollInterval plus the threshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	expectedMax := pollInterval + cfg.TimeDiscontinuityThreshold
	return elapsed > expectedMax
}

// Config holds polling configuration options
type Config struct {
	// PollInterval is the pause between presence checks while a tag that
	// has been read stays on the reader.
	PollInterval time.Duration
	// CardRemovalTimeout bounds one presence check. A tag not found within
	// it counts as removed.
	CardRemovalTimeout time.Duration
	// SleepRecovery configures automatic recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:       250 * time.Millisecond,
		CardRemovalTimeout: 600 * time.Millisecond,
		SleepRecovery:      DefaultSleepRecoveryConfig(),
	}
}
