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

// Package polling runs sessions on every tag placed on a reader, one after
// another, and reports when each tag leaves.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ZaparooProject/go-toypad/internal/syncutil"
)

// Watcher handles continuous tag monitoring.
type Watcher struct {
	// OnTag runs inside the session of each new tag.
	OnTag func(session *toypad.Session, result *toypad.ReadResult) error
	// OnRemoved is called once the handled tag has left the reader.
	OnRemoved func(uid toypad.UID)
	// OnError receives session and handler errors. Monitoring continues
	// after them.
	OnError func(err error)

	reader    *toypad.Reader
	config    *Config
	recoverer Recoverer
	state     CardState
	stateMu   syncutil.RWMutex
	running   atomic.Bool
}

// NewWatcher monitors reader. A nil config uses DefaultConfig.
func NewWatcher(reader *toypad.Reader, config *Config) *Watcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &Watcher{
		reader: reader,
		config: config,
	}
}

// SetRecoverer sets what is done after a detected host sleep.
func (w *Watcher) SetRecoverer(r Recoverer) {
	w.recoverer = r
}

// State returns a copy of the current card state.
func (w *Watcher) State() CardState {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

func (w *Watcher) update(fn func(*CardState)) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	fn(&w.state)
}

func (w *Watcher) report(err error) {
	if err == nil {
		return
	}
	toypad.Debugf("polling: %v", err)
	if w.OnError != nil {
		w.OnError(err)
	}
}

// Run monitors until ctx ends and returns ctx.Err(). Only one Run may be
// active per Watcher.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("watcher already running")
	}
	defer w.running.Store(false)

	for {
		uid, handled := w.readNext(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if handled {
			if err := w.waitRemoved(ctx, uid); err != nil {
				return err
			}
		}
	}
}

// readNext runs one session. It reports whether a tag is left on the
// reader to wait for.
func (w *Watcher) readNext(ctx context.Context) (toypad.UID, bool) {
	var uid toypad.UID
	seen := false

	err := w.reader.Session(ctx, func(s *toypad.Session, result *toypad.ReadResult) error {
		uid, seen = s.UID(), true
		w.update(func(cs *CardState) { cs.TransitionToReading(uid) })

		if w.OnTag == nil {
			return nil
		}
		return w.OnTag(s, result)
	})
	if ctx.Err() != nil {
		return uid, false
	}
	w.report(err)

	if !seen && err != nil {
		// a failed Open still leaves the tag in the field
		pctx, cancel := context.WithTimeout(ctx, w.config.CardRemovalTimeout)
		got, probeErr := w.reader.Probe(pctx)
		cancel()
		if probeErr != nil {
			_ = sleepCtx(ctx, w.config.PollInterval)
			return uid, false
		}
		uid, seen = got, true
		w.update(func(cs *CardState) { cs.TransitionToReading(uid) })
	}

	w.update(func(cs *CardState) { cs.TransitionToWaitingRemoval() })
	return uid, seen
}

// waitRemoved polls until uid is no longer on the reader.
func (w *Watcher) waitRemoved(ctx context.Context, uid toypad.UID) error {
	last := time.Now()

	for {
		if err := sleepCtx(ctx, w.config.PollInterval); err != nil {
			return err
		}

		elapsed := time.Since(last)
		last = time.Now()
		if w.config.SleepRecovery.DetectSleep(elapsed, w.config.PollInterval) {
			toypad.Debugf("polling: %v since last poll, host slept", elapsed)
			if w.recoverer != nil {
				if err := w.recoverer.AttemptRecovery(ctx); err != nil {
					w.report(fmt.Errorf("recovery after sleep failed: %w", err))
				}
			}
			// the tag may have been swapped while asleep
			w.removed(uid)
			return nil
		}

		pctx, cancel := context.WithTimeout(ctx, w.config.CardRemovalTimeout)
		got, err := w.reader.Probe(pctx)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err == nil && got == uid {
			w.update(func(cs *CardState) { cs.Seen() })
			continue
		}
		w.removed(uid)
		return nil
	}
}

func (w *Watcher) removed(uid toypad.UID) {
	w.update(func(cs *CardState) { cs.TransitionToIdle() })
	if w.OnRemoved != nil {
		w.OnRemoved(uid)
	}
}

// sleepCtx performs a context-aware sleep. Returns ctx.Err() if context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
