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
)

// Tag is the page-level capability a session drives. Implementations live
// in the transport packages; internal/testing provides a virtual tag.
//
// Calls are synchronous and never overlap within a session.
type Tag interface {
	// UIDBytes returns the tag's serial number as read during selection
	UIDBytes() []byte

	// ReadPage reads one 4-byte page. A page the tag refuses to return
	// without authentication must be reported as an error wrapping
	// ErrAccessDenied.
	ReadPage(ctx context.Context, page uint8) ([]byte, error)

	// Authenticate sends the 4-byte password and checks the tag answers
	// with the 2-byte PACK that follows it in credential. A wrong PACK or
	// a NAK is (false, nil); errors are reserved for transport failures.
	Authenticate(ctx context.Context, credential [6]byte) (bool, error)

	// WritePage writes one 4-byte page.
	WritePage(ctx context.Context, page uint8, data []byte) error

	// Close releases the tag
	Close() error
}

// Connector produces tags. Connect blocks until a tag is presented or ctx
// ends.
type Connector interface {
	Connect(ctx context.Context) (Tag, error)
	Close() error
}

// ConnectorFunc adapts a function to a Connector with a no-op Close.
type ConnectorFunc func(ctx context.Context) (Tag, error)

// Connect calls f.
func (f ConnectorFunc) Connect(ctx context.Context) (Tag, error) {
	return f(ctx)
}

// Close does nothing.
func (ConnectorFunc) Close() error {
	return nil
}
