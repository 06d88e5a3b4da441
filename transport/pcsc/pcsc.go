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

// Package pcsc reads toy tags on PC/SC readers such as the ACR122U.
// Page access uses the PC/SC storage-card APDUs; PWD_AUTH has no storage
// APDU and is sent to the reader's PN532 through a direct transmit.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ZaparooProject/go-toypad/internal/syncutil"
	"github.com/ebfe/scard"
)

const (
	// DefaultPollTimeout bounds one GetStatusChange wait so ctx is checked
	// regularly.
	DefaultPollTimeout = 250 * time.Millisecond

	swOK         = 0x9000
	swOperation  = 0x6300
	pageSize     = 4
	pn532Direct  = 0xD4
	pn532Thru    = 0x42
	ntagPwdAuth  = 0x1B
	pn532ThruRes = 0x43
)

var (
	ErrNoReaders     = errors.New("no PC/SC readers found")
	ErrReaderIndex   = errors.New("reader index out of range")
	ErrCardChanged   = errors.New("a different card was presented")
	ErrShortResponse = errors.New("short response from reader")
)

// SWError is a status word other than 90 00.
type SWError struct {
	Cmd string
	SW  uint16
}

func (e *SWError) Error() string {
	return fmt.Sprintf("%s failed: SW %04X", e.Cmd, e.SW)
}

// Card is the part of *scard.Card a Tag uses.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Reconnect(mode scard.ShareMode, proto scard.Protocol, disp scard.Disposition) error
	Disconnect(disp scard.Disposition) error
}

// Context is the part of *scard.Context a Connector uses.
type Context interface {
	ListReaders() ([]string, error)
	GetStatusChange(states []scard.ReaderState, timeout time.Duration) error
	Release() error
}

// Connector waits for cards on one PC/SC reader.
type Connector struct {
	ctx         Context
	connect     func(reader string) (Card, error)
	reader      string
	pollTimeout time.Duration
	mu          syncutil.Mutex
}

// New establishes a PC/SC context and picks a reader. selector is either
// an index into the reader list or a substring of the reader name; empty
// selects the first reader.
func New(selector string) (*Connector, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("EstablishContext failed: %w", err)
	}

	readers, err := sc.ListReaders()
	if err != nil {
		_ = sc.Release()
		return nil, fmt.Errorf("%w: %w", ErrNoReaders, err)
	}

	reader, err := SelectReader(readers, selector)
	if err != nil {
		_ = sc.Release()
		return nil, err
	}

	connect := func(reader string) (Card, error) {
		return sc.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	}
	return NewWithContext(sc, reader, connect), nil
}

// NewWithContext builds a Connector over an existing context. connect
// opens the card on reader.
func NewWithContext(ctx Context, reader string, connect func(reader string) (Card, error)) *Connector {
	return &Connector{
		ctx:         ctx,
		connect:     connect,
		reader:      reader,
		pollTimeout: DefaultPollTimeout,
	}
}

// SelectReader picks a reader by index or by name substring.
func SelectReader(readers []string, selector string) (string, error) {
	if len(readers) == 0 {
		return "", ErrNoReaders
	}
	if selector == "" {
		return readers[0], nil
	}

	if idx, err := strconv.Atoi(selector); err == nil {
		if idx < 0 || idx >= len(readers) {
			return "", fmt.Errorf("%w: %d (0..%d)", ErrReaderIndex, idx, len(readers)-1)
		}
		return readers[idx], nil
	}

	for _, r := range readers {
		if strings.Contains(r, selector) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: no reader matches %q", ErrNoReaders, selector)
}

// Reader returns the reader name.
func (c *Connector) Reader() string {
	return c.reader
}

// Connect waits until a card is present, connects and reads its UID.
func (c *Connector) Connect(ctx context.Context) (toypad.Tag, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return nil, fmt.Errorf("%w: connector closed", toypad.ErrTransport)
	}

	states := []scard.ReaderState{{
		Reader:       c.reader,
		CurrentState: scard.StateUnaware,
	}}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := c.ctx.GetStatusChange(states, c.pollTimeout)
		if errors.Is(err, scard.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: GetStatusChange: %w", toypad.ErrTransport, err)
		}

		if states[0].EventState&scard.StatePresent != 0 {
			return c.open()
		}
		states[0].CurrentState = states[0].EventState
	}
}

func (c *Connector) open() (*Tag, error) {
	card, err := c.connect(c.reader)
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", toypad.ErrTransport, c.reader, err)
	}

	uid, err := readUID(card)
	if err != nil {
		_ = card.Disconnect(scard.LeaveCard)
		return nil, err
	}
	toypad.Debugf("pcsc: card %X on %s", uid, c.reader)
	return &Tag{card: card, uid: uid}, nil
}

// Close releases the PC/SC context. It is safe to call more than once.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Release()
	c.ctx = nil
	if err != nil {
		return fmt.Errorf("PC/SC release failed: %w", err)
	}
	return nil
}

// transmit sends apdu and splits off the status word.
func transmit(card Card, name string, apdu []byte) ([]byte, error) {
	res, err := card.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", toypad.ErrTransport, name, err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("%w: %s returned % X", ErrShortResponse, name, res)
	}

	n := len(res) - 2
	sw := uint16(res[n])<<8 | uint16(res[n+1])
	if sw != swOK {
		return nil, &SWError{Cmd: name, SW: sw}
	}
	return res[:n], nil
}

func readUID(card Card) ([]byte, error) {
	uid, err := transmit(card, "GET UID", []byte{0xFF, 0xCA, 0x00, 0x00, 0x00})
	if err != nil {
		return nil, err
	}
	return uid, nil
}

var _ toypad.Connector = (*Connector)(nil)
