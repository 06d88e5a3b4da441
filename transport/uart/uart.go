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

// Package uart carries PN532 commands over a serial port (HSU mode,
// 115200 8N1), the usual wiring for USB-serial PN532 boards.
package uart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/ZaparooProject/go-toypad/internal/frame"
	"github.com/ZaparooProject/go-toypad/internal/syncutil"
	"github.com/ZaparooProject/go-toypad/pn532"
	"go.bug.st/serial"
)

const (
	baudRate = 115200

	// maxNackRetries bounds how often a corrupt response is requested again.
	maxNackRetries = 3
	// ackScanLimit is how many stray bytes waitAck skips before giving up.
	ackScanLimit = 32
	// idlePoll is the pause after a read that returned nothing.
	idlePoll = 2 * time.Millisecond
)

// wakeUpSequence takes the PN532 out of low-power HSU mode.
var wakeUpSequence = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// Transport implements pn532.Transport over a serial port.
type Transport struct {
	port     serial.Port
	portName string
	timeout  time.Duration
	mu       syncutil.Mutex
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// portReadTimeout is how long one Read blocks. Windows drivers need longer.
func portReadTimeout() time.Duration {
	if isWindows() {
		return 100 * time.Millisecond
	}
	return 50 * time.Millisecond
}

// New opens portName at 115200 8N1.
func New(portName string) (*Transport, error) {
	if err := checkAccess(portName); err != nil {
		return nil, pn532.NewTransportError("open", portName, err)
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

// NewWithPort wraps an already open port.
func NewWithPort(port serial.Port, portName string) (*Transport, error) {
	if port == nil {
		return nil, errors.New("port cannot be nil")
	}
	if err := port.SetReadTimeout(portReadTimeout()); err != nil {
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}

	return &Transport{
		port:     port,
		portName: portName,
		timeout:  pn532.DefaultTimeout,
	}, nil
}

// SendCommand frames and sends cmd, waits for the ACK and returns the
// response payload. A response with a bad checksum is requested again with
// a NACK; the command itself is never resent.
func (t *Transport) SendCommand(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
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

	if err := t.wakeUp(); err != nil {
		return nil, err
	}
	if err := t.write("send frame", out); err != nil {
		return nil, err
	}

	rest, err := t.waitAck(ctx)
	if err != nil {
		return nil, err
	}

	res, err := t.receiveFrame(ctx, rest)
	if err != nil {
		return nil, err
	}

	if err := t.write("ACK", frame.AckFrame); err != nil {
		return nil, err
	}
	return res, nil
}

// SetTimeout sets how long SendCommand waits for the ACK and response.
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timeout <= 0 {
		return fmt.Errorf("invalid UART timeout %v", timeout)
	}
	t.timeout = timeout
	return nil
}

// Close closes the port. It is safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the port is open
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() pn532.TransportType {
	return pn532.TransportUART
}

// PortName returns the path the transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) || attempt == maxRetries-1 {
			return fmt.Errorf("UART %s drain failed: %w", operation, err)
		}
		time.Sleep(baseDelay << attempt)
	}
	return nil
}

func (t *Transport) write(operation string, data []byte) error {
	n, err := t.port.Write(data)
	if err != nil {
		return pn532.NewTransportError(operation, t.portName, err)
	}
	if n != len(data) {
		return pn532.NewTransportError(operation, t.portName,
			fmt.Errorf("short write: %d of %d bytes", n, len(data)))
	}
	return t.drainWithRetry(operation)
}

// wakeUp sends 0x55 followed by zeros so a sleeping PN532 is listening
// when the frame arrives.
func (t *Transport) wakeUp() error {
	return t.write("wake up", wakeUpSequence)
}

// read reads what is available, pausing briefly when nothing is.
func (t *Transport) read(ctx context.Context, op string, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, pn532.NewTransportError(op, t.portName, pn532.ErrTransportTimeout)
		}
		return 0, err
	}

	n, err := t.port.Read(buf)
	if err != nil {
		return 0, pn532.NewTransportError(op, t.portName, err)
	}
	if n == 0 {
		time.Sleep(idlePoll)
	}
	return n, nil
}

// waitAck scans for the ACK frame and returns any bytes received after it.
// Some USB bridges deliver the ACK late or glued to the response.
func (t *Transport) waitAck(ctx context.Context) ([]byte, error) {
	var window []byte
	buf := make([]byte, frame.MaxFrameLength)
	skipped := 0

	for {
		n, err := t.read(ctx, "wait ACK", buf)
		if err != nil {
			if errors.Is(err, pn532.ErrTransportTimeout) {
				return nil, pn532.NewTransportError("wait ACK", t.portName, pn532.ErrNoACK)
			}
			return nil, err
		}
		window = append(window, buf[:n]...)

		if i := bytes.Index(window, frame.AckFrame); i >= 0 {
			return window[i+len(frame.AckFrame):], nil
		}
		if i := bytes.Index(window, frame.NackFrame); i >= 0 {
			return nil, pn532.NewTransportError("wait ACK", t.portName, pn532.ErrNACKReceived)
		}

		// keep the tail that could still start an ACK
		if extra := len(window) - (len(frame.AckFrame) - 1); extra > 0 {
			skipped += extra
			window = window[extra:]
		}
		if skipped > ackScanLimit {
			return nil, pn532.NewTransportError("wait ACK", t.portName, pn532.ErrNoACK)
		}
	}
}

// receiveFrame reads until a complete response frame is parsed, starting
// with pre.
func (t *Transport) receiveFrame(ctx context.Context, pre []byte) ([]byte, error) {
	data := append([]byte(nil), pre...)
	buf := make([]byte, frame.MaxFrameLength)
	nacks := 0

	for {
		res, _, err := frame.Parse(data, frame.Pn532ToHost)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, frame.ErrDataChecksum), errors.Is(err, frame.ErrLengthChecksum):
			if nacks >= maxNackRetries {
				return nil, pn532.NewTransportError("receive", t.portName,
					fmt.Errorf("%w: %w", pn532.ErrFrameCorrupted, err))
			}
			nacks++
			data = data[:0]
			if err := t.write("NACK", frame.NackFrame); err != nil {
				return nil, err
			}
		case errors.Is(err, frame.ErrErrorFrame):
			return nil, pn532.NewTransportError("receive", t.portName,
				fmt.Errorf("%w: %w", pn532.ErrInvalidResponse, err))
		case errors.Is(err, frame.ErrIncomplete), errors.Is(err, frame.ErrNoStartCode):
		default:
			return nil, pn532.NewTransportError("receive", t.portName, err)
		}

		n, err := t.read(ctx, "receive", buf)
		if err != nil {
			return nil, err
		}
		data = append(data, buf[:n]...)
	}
}

var _ pn532.Transport = (*Transport)(nil)
