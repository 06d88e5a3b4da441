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

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-toypad/internal/syncutil"
	"github.com/ZaparooProject/go-toypad/pn532"
)

// Recoverer brings a reader back after the host slept.
type Recoverer interface {
	// AttemptRecovery returns nil once the reader answers again.
	AttemptRecovery(ctx context.Context) error
}

// RecovererFunc adapts a function to a Recoverer.
type RecovererFunc func(ctx context.Context) error

// AttemptRecovery calls f.
func (f RecovererFunc) AttemptRecovery(ctx context.Context) error {
	return f(ctx)
}

// DeviceRecoverer re-applies the PN532 configuration with
// Device.Configure, which is enough once the USB port itself has come back.
type DeviceRecoverer struct {
	device      *pn532.Device
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDeviceRecoverer creates a recoverer for device.
func NewDeviceRecoverer(device *pn532.Device, cfg SleepRecoveryConfig) *DeviceRecoverer {
	maxAttempts := cfg.MaxRecoveryAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.RecoveryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DeviceRecoverer{
		device:      device,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery retries Device.Configure with a fixed backoff.
func (r *DeviceRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		err := r.device.Configure(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}
