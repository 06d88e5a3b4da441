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

package pcsc

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ebfe/scard"
)

// Tag is a card connected through a PC/SC reader.
type Tag struct {
	card   Card
	uid    []byte
	halted bool
	closed bool
}

// UIDBytes returns the UID read when the card was connected.
func (t *Tag) UIDBytes() []byte {
	return append([]byte(nil), t.uid...)
}

// accessDenied maps SW 63 00, the reader's report of a tag NAK.
func (t *Tag) accessDenied(err error, page uint8) error {
	var swErr *SWError
	if errors.As(err, &swErr) && swErr.SW == swOperation {
		t.halted = true
		return fmt.Errorf("%w: page 0x%02X: %w", toypad.ErrAccessDenied, page, err)
	}
	return err
}

// ReadPage reads one page with READ BINARY.
func (t *Tag) ReadPage(_ context.Context, page uint8) ([]byte, error) {
	if err := t.wake(); err != nil {
		return nil, err
	}

	data, err := transmit(t.card, "READ BINARY", []byte{0xFF, 0xB0, 0x00, page, pageSize})
	if err != nil {
		return nil, t.accessDenied(err, page)
	}
	if len(data) < pageSize {
		return nil, fmt.Errorf("%w: read page 0x%02X returned %d bytes", ErrShortResponse, page, len(data))
	}
	return data[:pageSize], nil
}

// Authenticate sends PWD_AUTH through the reader's InCommunicateThru and
// compares the PACK.
func (t *Tag) Authenticate(_ context.Context, credential [6]byte) (bool, error) {
	if err := t.wake(); err != nil {
		return false, err
	}

	apdu := []byte{0xFF, 0x00, 0x00, 0x00, 0x07, pn532Direct, pn532Thru, ntagPwdAuth}
	apdu = append(apdu, credential[:4]...)

	res, err := transmit(t.card, "PWD_AUTH", apdu)
	if err != nil {
		var swErr *SWError
		if errors.As(err, &swErr) {
			t.halted = true
			return false, nil
		}
		return false, err
	}

	// D5 43 status PACK0 PACK1
	if len(res) < 3 || res[1] != pn532ThruRes {
		return false, fmt.Errorf("%w: PWD_AUTH returned % X", ErrShortResponse, res)
	}
	if res[2] != 0x00 {
		toypad.Debugf("pcsc: PWD_AUTH refused, status 0x%02X", res[2])
		t.halted = true
		return false, nil
	}
	if len(res) < 5 {
		return false, fmt.Errorf("%w: PWD_AUTH returned % X", ErrShortResponse, res)
	}
	return bytes.Equal(res[3:5], credential[4:]), nil
}

// WritePage writes one page with UPDATE BINARY.
func (t *Tag) WritePage(_ context.Context, page uint8, data []byte) error {
	if len(data) != pageSize {
		return fmt.Errorf("invalid page size: expected %d, got %d", pageSize, len(data))
	}
	if err := t.wake(); err != nil {
		return err
	}

	apdu := make([]byte, 0, 5+pageSize)
	apdu = append(apdu, 0xFF, 0xD6, 0x00, page, pageSize)
	apdu = append(apdu, data...)

	if _, err := transmit(t.card, "UPDATE BINARY", apdu); err != nil {
		return t.accessDenied(err, page)
	}
	return nil
}

// wake resets a halted card so it is selected again, then checks the UID.
func (t *Tag) wake() error {
	if t.closed {
		return fmt.Errorf("%w: card disconnected", toypad.ErrTransport)
	}
	if !t.halted {
		return nil
	}

	if err := t.card.Reconnect(scard.ShareShared, scard.ProtocolAny, scard.ResetCard); err != nil {
		return fmt.Errorf("%w: reconnect: %w", toypad.ErrTransport, err)
	}
	uid, err := readUID(t.card)
	if err != nil {
		return err
	}
	if !bytes.Equal(uid, t.uid) {
		return fmt.Errorf("%w: expected % X, found % X", ErrCardChanged, t.uid, uid)
	}

	t.halted = false
	return nil
}

// Close disconnects the card. It is safe to call more than once.
func (t *Tag) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.card.Disconnect(scard.LeaveCard); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

var _ toypad.Tag = (*Tag)(nil)
