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
	"io"
)

// Error categories
var (
	// Precondition errors - reported immediately, never retried
	ErrInvalidIdentifierLength = errors.New("tag identifier must be 7 bytes")
	ErrInvalidContent          = errors.New("invalid tag content")

	// Content errors - non-fatal, content is suspect
	ErrContentIntegrity = errors.New("tag content integrity check failed")

	// Transport errors
	ErrAccessDenied = errors.New("tag page access denied")
	ErrTransport    = errors.New("tag transport failed")

	// Session errors - terminal for the session
	ErrAuthenticationFailed  = errors.New("tag password authentication failed")
	ErrCategoryChangeRefused = errors.New("cannot change category of a password protected tag")
	ErrWriteIncomplete       = errors.New("tag write incomplete")
	ErrSessionClosed         = errors.New("session is closed")
	ErrInvalidState          = errors.New("operation not allowed in current session state")
)

// IntegrityError reports a character payload whose duplicated halves
// disagree after decryption. Blank and foreign tags decode this way.
type IntegrityError struct {
	First  uint32
	Second uint32
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: decrypted halves differ (%d != %d)", ErrContentIntegrity, e.First, e.Second)
}

// Is reports whether target is ErrContentIntegrity.
func (*IntegrityError) Is(target error) bool {
	return target == ErrContentIntegrity
}

// WriteError reports a write sequence that stopped part way. The tag may
// hold a mix of old and new pages; Written lists the pages that were
// committed before the failure, in order.
type WriteError struct {
	Err     error
	Written []uint8
	Page    uint8
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%v: page 0x%02X failed after writing %d page(s) %s: %v",
		ErrWriteIncomplete, e.Page, len(e.Written), formatPages(e.Written), e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrWriteIncomplete.
func (*WriteError) Is(target error) bool {
	return target == ErrWriteIncomplete
}

// StateError reports an operation attempted in the wrong session state.
type StateError struct {
	Op    string
	State SessionState
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (state %s)", e.Op, ErrInvalidState, e.State)
}

// Is reports whether target is ErrInvalidState, or ErrSessionClosed for a
// closed session.
func (e *StateError) Is(target error) bool {
	if target == ErrInvalidState {
		return true
	}
	return target == ErrSessionClosed && e.State == StateClosed
}

// IsAccessDenied returns true if err is the transport's access-denied
// signal, which the session answers with password authentication.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsFatal returns true if err ends the session. Integrity errors are the
// only tag-level failure a session survives.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrContentIntegrity),
		errors.Is(err, ErrAccessDenied):
		return false
	case errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrWriteIncomplete),
		errors.Is(err, ErrTransport),
		errors.Is(err, ErrSessionClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF):
		return true
	default:
		return false
	}
}

func formatPages(pages []uint8) string {
	s := "["
	for i, p := range pages {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("0x%02X", p)
	}
	return s + "]"
}
