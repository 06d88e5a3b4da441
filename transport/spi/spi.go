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

// Package spi carries PN532 commands over SPI using periph.io. The PN532
// shifts bits LSB first, so every byte is bit-reversed on the wire.
package spi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ZaparooProject/go-toypad/internal/frame"
	"github.com/ZaparooProject/go-toypad/internal/syncutil"
	"github.com/ZaparooProject/go-toypad/pn532"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// SPI operation bytes, before bit reversal
	spiStatRead  = 0x02
	spiDataWrite = 0x01
	spiDataRead  = 0x03
	spiReady     = 0x01

	defaultFreq = 1 * physic.MegaHertz
	mode        = spi.Mode0

	maxNackRetries = 3
)

// Transport implements pn532.Transport over SPI.
type Transport struct {
	conn     spi.Conn
	closer   io.Closer
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
}

// New opens the named SPI port, for example "/dev/spidev0.0".
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t := NewWithConn(conn, portName)
	t.closer = port
	t.wakeup()
	return t, nil
}

// NewWithConn talks to a PN532 on an already connected SPI device.
func NewWithConn(conn spi.Conn, portName string) *Transport {
	return &Transport{
		conn:     conn,
		portName: portName,
		timeout:  pn532.DefaultTimeout,
	}
}

// wakeup clocks a dummy byte so a sleeping PN532 notices chip select.
func (t *Transport) wakeup() {
	time.Sleep(time.Millisecond)
	_ = t.conn.Tx([]byte{0x00}, nil)
	time.Sleep(time.Millisecond)
}

// reverseBit reverses the bits in a byte (LSB <-> MSB)
func reverseBit(b byte) byte {
	var result byte
	for range 8 {
		result <<= 1
		result |= b & 1
		b >>= 1
	}
	return result
}

func reverseBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = reverseBit(b)
	}
	return out
}

// transfer sends op and then reads n bytes in one full-duplex
// transaction.
func (t *Transport) transfer(op byte, n int) ([]byte, error) {
	w := make([]byte, 1+n)
	w[0] = reverseBit(op)
	r := make([]byte, 1+n)
	if err := t.conn.Tx(w, r); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	return reverseBytes(r[1:]), nil
}

func (t *Transport) write(op string, data []byte) error {
	w := make([]byte, 0, 1+len(data))
	w = append(w, reverseBit(spiDataWrite))
	w = append(w, reverseBytes(data)...)
	if err := t.conn.Tx(w, nil); err != nil {
		return pn532.NewTransportError(op, t.portName, err)
	}
	return nil
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

// waitReady polls the status register until the PN532 has data.
func (t *Transport) waitReady(ctx context.Context) error {
	for {
		status, err := t.transfer(spiStatRead, 1)
		if err != nil {
			return pn532.NewTransportError("status read", t.portName, err)
		}
		if status[0] == spiReady {
			return nil
		}

		if err := sleepCtx(ctx, time.Millisecond); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return pn532.NewTransportError("status read", t.portName, pn532.ErrNotReady)
			}
			return err
		}
	}
}

// SendCommand writes the command frame, waits for the ACK and reads the
// response.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil, pn532.NewTransportError("send", t.portName, pn532.ErrTransportClosed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := frame.Build(cmd, args)
	if err != nil {
		return nil, pn532.NewTransportError("send", t.portName, err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.write("send frame", out); err != nil {
		return nil, err
	}
	if err := t.waitAck(ctx); err != nil {
		return nil, err
	}
	return t.receiveFrame(ctx)
}

func (t *Transport) waitAck(ctx context.Context) error {
	if err := t.waitReady(ctx); err != nil {
		if errors.Is(err, pn532.ErrNotReady) {
			return pn532.NewTransportError("wait ACK", t.portName, pn532.ErrNoACK)
		}
		return err
	}

	ack, err := t.transfer(spiDataRead, len(frame.AckFrame))
	if err != nil {
		return pn532.NewTransportError("wait ACK", t.portName, err)
	}
	switch {
	case bytes.Equal(ack, frame.AckFrame):
		return nil
	case bytes.Equal(ack, frame.NackFrame):
		return pn532.NewTransportError("wait ACK", t.portName, pn532.ErrNACKReceived)
	default:
		return pn532.NewTransportError("wait ACK", t.portName,
			fmt.Errorf("%w: got % X", pn532.ErrNoACK, ack))
	}
}

// receiveFrame reads the whole response in one transaction, the same way
// the I2C transport does.
func (t *Transport) receiveFrame(ctx context.Context) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := t.waitReady(ctx); err != nil {
			return nil, err
		}

		buf, err := t.transfer(spiDataRead, frame.MaxFrameLength)
		if err != nil {
			return nil, pn532.NewTransportError("receive", t.portName, err)
		}

		res, _, err := frame.Parse(buf, frame.Pn532ToHost)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, frame.ErrErrorFrame):
			return nil, pn532.NewTransportError("receive", t.portName,
				fmt.Errorf("%w: %w", pn532.ErrInvalidResponse, err))
		case attempt >= maxNackRetries:
			return nil, pn532.NewTransportError("receive", t.portName,
				fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, err))
		}

		if err := t.write("send NACK", frame.NackFrame); err != nil {
			return nil, err
		}
	}
}

// SetTimeout sets how long SendCommand waits for the ACK and response.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timeout <= 0 {
		return fmt.Errorf("invalid SPI timeout %v", timeout)
	}
	t.timeout = timeout
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conn = nil
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	if err != nil {
		return fmt.Errorf("SPI close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportSPI
}

var _ pn532.Transport = (*Transport)(nil)
