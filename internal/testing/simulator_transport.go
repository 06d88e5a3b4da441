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

package testing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-toypad/internal/frame"
)

// ErrSimulatorClosed is returned after Close.
var ErrSimulatorClosed = errors.New("simulator transport closed")

// CommandLogEntry records a command sent to the transport
type CommandLogEntry struct {
	Timestamp time.Time
	Args      []byte
	Cmd       byte
}

// SimulatorTransport wraps VirtualPN532 and satisfies pn532.Transport, so
// Device tests run against real frames without hardware. It speaks the
// same frame codec as the UART transport, including a NACK retry on a
// corrupt response.
type SimulatorTransport struct {
	sim        *VirtualPN532
	CommandLog []CommandLogEntry
	timeout    time.Duration
	closed     bool
}

// NewSimulatorTransport creates a transport backed by sim.
func NewSimulatorTransport(sim *VirtualPN532) *SimulatorTransport {
	return &SimulatorTransport{
		sim:     sim,
		timeout: time.Second,
	}
}

// NewSimulatorWithTag returns a simulator holding tag and a transport
// wired to it.
func NewSimulatorWithTag(tag *VirtualNTAG213) (*VirtualPN532, *SimulatorTransport) {
	sim := NewVirtualPN532()
	if tag != nil {
		sim.SetTag(tag)
	}
	return sim, NewSimulatorTransport(sim)
}

// SendCommand sends cmd and returns the response starting with the
// response code.
func (t *SimulatorTransport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	if t.closed {
		return nil, ErrSimulatorClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.CommandLog = append(t.CommandLog, CommandLogEntry{
		Cmd:       cmd,
		Args:      append([]byte(nil), args...),
		Timestamp: time.Now(),
	})

	out, err := frame.Build(cmd, args)
	if err != nil {
		return nil, err
	}
	if _, err := t.sim.Write(out); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	buf := t.drain()
	if frame.IsAck(buf) {
		buf = buf[len(frame.AckFrame):]
	}

	data, _, err := frame.Parse(buf, frame.Pn532ToHost)
	if errors.Is(err, frame.ErrDataChecksum) || errors.Is(err, frame.ErrLengthChecksum) {
		if _, werr := t.sim.Write(frame.NackFrame); werr != nil {
			return nil, fmt.Errorf("write NACK failed: %w", werr)
		}
		data, _, err = frame.Parse(t.drain(), frame.Pn532ToHost)
	}
	if err != nil {
		return nil, fmt.Errorf("command 0x%02X: %w", cmd, err)
	}
	return data, nil
}

func (t *SimulatorTransport) drain() []byte {
	var out []byte
	buf := make([]byte, frame.MaxFrameLength)
	for {
		n, _ := t.sim.Read(buf)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

// SetTimeout records the timeout; the simulator answers immediately.
func (t *SimulatorTransport) SetTimeout(timeout time.Duration) error {
	t.timeout = timeout
	return nil
}

// Timeout returns the last timeout set.
func (t *SimulatorTransport) Timeout() time.Duration {
	return t.timeout
}

// Close marks the transport closed.
func (t *SimulatorTransport) Close() error {
	t.closed = true
	return nil
}

// Closed reports whether Close was called.
func (t *SimulatorTransport) Closed() bool {
	return t.closed
}

// Commands returns the command codes sent, in order.
func (t *SimulatorTransport) Commands() []byte {
	cmds := make([]byte, len(t.CommandLog))
	for i, e := range t.CommandLog {
		cmds[i] = e.Cmd
	}
	return cmds
}
