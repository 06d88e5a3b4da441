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

package toypad

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-toypad/internal/syncutil"
)

// Reader gives callers exclusive use of a Connector. Only one session runs
// on a reader at a time; other callers block in Session until it ends.
type Reader struct {
	connector Connector
	opts      []SessionOption
	mu        syncutil.Mutex
	closed    bool
}

// NewReader wraps connector. opts are applied to every session.
func NewReader(connector Connector, opts ...SessionOption) (*Reader, error) {
	if connector == nil {
		return nil, errors.New("connector cannot be nil")
	}
	return &Reader{connector: connector, opts: opts}, nil
}

// Session waits for a tag, opens a session on it and calls fn with the
// session already past Open. The session is closed when fn returns, even
// if fn panics.
//
// A failed Open is returned without calling fn. Authentication failure is
// one such case: the session never reads or writes content.
func (r *Reader) Session(ctx context.Context, fn func(*Session, *ReadResult) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrSessionClosed
	}

	tag, err := r.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("waiting for tag: %w", err)
	}

	session, err := NewSession(tag, r.opts...)
	if err != nil {
		_ = tag.Close()
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	result, err := session.Open(ctx)
	if err != nil {
		return err
	}
	return fn(session, result)
}

// Close closes the connector. Sessions started afterwards fail with
// ErrSessionClosed.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.connector.Close(); err != nil {
		return fmt.Errorf("failed to close connector: %w", err)
	}
	return nil
}

// Probe returns the UID of the tag in the field without opening a session.
// It waits like Session does, so callers bound it with ctx.
func (r *Reader) Probe(ctx context.Context) (UID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return UID{}, ErrSessionClosed
	}

	tag, err := r.connector.Connect(ctx)
	if err != nil {
		return UID{}, err
	}
	defer func() { _ = tag.Close() }()

	return NewUID(tag.UIDBytes())
}
