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

package pn532

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
)

// NTAG21x commands
const (
	ntagCmdRead    = 0x30
	ntagCmdWrite   = 0xA2
	ntagCmdPwdAuth = 0x1B

	ntagPageSize = 4
	releaseGrace = time.Second
)

// Tag is an NTAG21x selected by a Device.
type Tag struct {
	device *Device
	target *Target
	// halted is set after the tag NAKs; it must be selected again before
	// it answers anything.
	halted bool
	closed bool
}

// UIDBytes returns the UID reported during selection.
func (t *Tag) UIDBytes() []byte {
	return append([]byte(nil), t.target.UID...)
}

// ReadPage reads one page. A NAK is reported as toypad.ErrAccessDenied.
func (t *Tag) ReadPage(ctx context.Context, page uint8) ([]byte, error) {
	if t.closed {
		return nil, ErrTransportClosed
	}
	if err := t.wake(ctx); err != nil {
		return nil, err
	}

	data, err := t.device.InDataExchange(ctx, []byte{ntagCmdRead, page})
	if err != nil {
		if IsAuthenticationError(err) {
			t.halted = true
			return nil, fmt.Errorf("%w: page 0x%02X: %w", toypad.ErrAccessDenied, page, err)
		}
		return nil, fmt.Errorf("read page 0x%02X: %w", page, err)
	}

	// READ returns four pages
	if len(data) < ntagPageSize {
		return nil, fmt.Errorf("%w: read page 0x%02X returned %d bytes", ErrInvalidResponse, page, len(data))
	}
	return data[:ntagPageSize], nil
}

// Authenticate sends PWD_AUTH and compares the PACK. The tag is selected
// again first if a previous NAK halted it.
func (t *Tag) Authenticate(ctx context.Context, credential [6]byte) (bool, error) {
	if t.closed {
		return false, ErrTransportClosed
	}
	if err := t.wake(ctx); err != nil {
		return false, err
	}

	cmd := make([]byte, 0, 5)
	cmd = append(cmd, ntagCmdPwdAuth)
	cmd = append(cmd, credential[:4]...)

	pack, err := t.device.InDataExchange(ctx, cmd)
	if err != nil {
		var pe *PN532Error
		if errors.As(err, &pe) {
			t.halted = true
			t.device.log.Debugf("pn532: PWD_AUTH refused: %v", err)
			return false, nil
		}
		return false, fmt.Errorf("PWD_AUTH failed: %w", err)
	}

	if len(pack) < 2 {
		return false, fmt.Errorf("%w: PACK of %d bytes", ErrInvalidResponse, len(pack))
	}
	return bytes.Equal(pack[:2], credential[4:]), nil
}

// WritePage writes one page.
func (t *Tag) WritePage(ctx context.Context, page uint8, data []byte) error {
	if t.closed {
		return ErrTransportClosed
	}
	if len(data) != ntagPageSize {
		return fmt.Errorf("invalid page size: expected %d, got %d", ntagPageSize, len(data))
	}
	if err := t.wake(ctx); err != nil {
		return err
	}

	cmd := make([]byte, 0, 2+ntagPageSize)
	cmd = append(cmd, ntagCmdWrite, page)
	cmd = append(cmd, data...)

	if _, err := t.device.InDataExchange(ctx, cmd); err != nil {
		if IsAuthenticationError(err) {
			t.halted = true
			return fmt.Errorf("%w: write page 0x%02X: %w", toypad.ErrAccessDenied, page, err)
		}
		return fmt.Errorf("write page 0x%02X: %w", page, err)
	}
	return nil
}

// wake selects a halted tag again and checks it is the same tag.
func (t *Tag) wake(ctx context.Context) error {
	if !t.halted {
		return nil
	}

	if err := t.device.InRelease(ctx); err != nil {
		return fmt.Errorf("reselect: %w", err)
	}
	target, err := t.device.InListPassiveTarget(ctx)
	if err != nil {
		return fmt.Errorf("reselect: %w", err)
	}
	if !bytes.Equal(target.UID, t.target.UID) {
		return fmt.Errorf("%w: expected % X, found % X", ErrTargetChanged, t.target.UID, target.UID)
	}

	t.target = target
	t.halted = false
	return nil
}

// Close releases the target. It is safe to call more than once.
func (t *Tag) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), releaseGrace)
	defer cancel()
	return t.device.InRelease(ctx)
}

var _ toypad.Tag = (*Tag)(nil)
