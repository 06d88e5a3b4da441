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

// Package i2c carries PN532 commands over an I2C bus using periph.io.
package i2c

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ZaparooProject/go-toypad/internal/frame"
	"github.com/ZaparooProject/go-toypad/internal/syncutil"
	"github.com/ZaparooProject/go-toypad/pn532"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// PN532 7-bit I2C address (datasheet says 0x48, which is the 8-bit write
	// address including the R/W bit; periph.io and the Linux kernel expect the
	// 7-bit form: 0x48 >> 1 = 0x24).
	pn532Addr = 0x24

	pn532Ready = 0x01

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	maxNackRetries = 3
)

// Transport implements pn532.Transport over I2C.
type Transport struct {
	dev     *i2c.Dev
	closer  io.Closer
	busName string
	timeout time.Duration
	mu      syncutil.Mutex
}

// parseI2CPath extracts the bus path from "/dev/i2c-1:0x24" or returns
// the bare bus name.
func parseI2CPath(path string) string {
	bus, _, _ := strings.Cut(path, ":")
	return bus
}

// New opens the named bus, for example "/dev/i2c-1" or "1".
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(parseI2CPath(busName))
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	// Keep the default speed if the adapter refuses 400 kHz
	_ = bus.SetSpeed(maxClockFreq)

	t := NewWithBus(bus, busName)
	t.closer = bus
	return t, nil
}

// NewWithBus talks to a PN532 on an already open bus. The bus is closed
// by Close if it implements io.Closer.
func NewWithBus(bus i2c.Bus, busName string) *Transport {
	t := &Transport{
		dev:     &i2c.Dev{Addr: pn532Addr, Bus: bus},
		busName: busName,
		timeout: pn532.DefaultTimeout,
	}
	if c, ok := bus.(io.Closer); ok {
		t.closer = c
	}
	return t
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

// SendCommand writes the command frame, waits for the ACK and reads the
// response. A corrupt response is requested again with a NACK.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return nil, pn532.NewTransportError("send", t.busName, pn532.ErrTransportClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := frame.Build(cmd, args)
	if err != nil {
		return nil, pn532.NewTransportError("send", t.busName, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.dev.Tx(out, nil); err != nil {
		return nil, pn532.NewTransportError("send frame", t.busName, err)
	}
	if err := t.waitAck(ctx); err != nil {
		return nil, err
	}

	res, err := t.receiveFrame(ctx)
	if err != nil {
		return nil, err
	}

	if err := t.dev.Tx(frame.AckFrame, nil); err != nil {
		return nil, pn532.NewTransportError("send ACK", t.busName, err)
	}
	return res, nil
}

// SetTimeout sets how long SendCommand waits for the ACK and response.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timeout <= 0 {
		return fmt.Errorf("invalid I2C timeout %v", timeout)
	}
	t.timeout = timeout
	return nil
}

// Close releases the bus file descriptor. Leaking it can wedge the bus
// when transports are recreated quickly.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dev = nil
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	if err != nil {
		return fmt.Errorf("failed to close I2C bus: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportI2C
}

// waitReady polls the status byte with backoff until the PN532 has data.
func (t *Transport) waitReady(ctx context.Context) error {
	delay := time.Millisecond
	status := make([]byte, 1)

	for {
		if err := t.dev.Tx(nil, status); err != nil {
			return pn532.NewTransportError("ready check", t.busName, err)
		}
		if status[0] == pn532Ready {
			return nil
		}

		if err := sleepCtx(ctx, delay); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return pn532.NewTransportError("ready check", t.busName, pn532.ErrNotReady)
			}
			return err
		}
		delay = min(delay*2, 16*time.Millisecond)
	}
}

// read performs one read transaction and strips the leading status byte
// the PN532 prepends to every I2C read.
func (t *Transport) read(n int) ([]byte, error) {
	buf := make([]byte, 1+n)
	if err := t.dev.Tx(nil, buf); err != nil {
		return nil, pn532.NewTransportError("read", t.busName, err)
	}
	if buf[0] != pn532Ready {
		return nil, pn532.NewTransportError("read", t.busName, pn532.ErrNotReady)
	}
	return buf[1:], nil
}

func (t *Transport) waitAck(ctx context.Context) error {
	if err := t.waitReady(ctx); err != nil {
		if errors.Is(err, pn532.ErrNotReady) {
			return pn532.NewTransportError("wait ACK", t.busName, pn532.ErrNoACK)
		}
		return err
	}

	ack, err := t.read(len(frame.AckFrame))
	if err != nil {
		return err
	}
	switch {
	case bytes.Equal(ack, frame.AckFrame):
		return nil
	case bytes.Equal(ack, frame.NackFrame):
		return pn532.NewTransportError("wait ACK", t.busName, pn532.ErrNACKReceived)
	default:
		return pn532.NewTransportError("wait ACK", t.busName,
			fmt.Errorf("%w: got % X", pn532.ErrNoACK, ack))
	}
}

// receiveFrame reads a whole response in one transaction. Every read
// transaction restarts at the beginning of the PN532's output buffer, so
// the frame cannot be fetched in pieces.
func (t *Transport) receiveFrame(ctx context.Context) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := t.waitReady(ctx); err != nil {
			return nil, err
		}

		buf, err := t.read(frame.MaxFrameLength)
		if err != nil {
			return nil, err
		}

		res, _, err := frame.Parse(buf, frame.Pn532ToHost)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, frame.ErrErrorFrame):
			return nil, pn532.NewTransportError("receive", t.busName,
				fmt.Errorf("%w: %w", pn532.ErrInvalidResponse, err))
		case attempt >= maxNackRetries:
			return nil, pn532.NewTransportError("receive", t.busName,
				fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, err))
		}

		if err := t.dev.Tx(frame.NackFrame, nil); err != nil {
			return nil, pn532.NewTransportError("send NACK", t.busName, err)
		}
	}
}

var _ pn532.Transport = (*Transport)(nil)
