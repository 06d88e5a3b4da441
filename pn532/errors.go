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
	"errors"
	"fmt"
)

// Transport errors
var (
	ErrNoACK            = errors.New("no ACK received from PN532")
	ErrNACKReceived     = errors.New("NACK received from PN532")
	ErrTransportTimeout = errors.New("PN532 response timeout")
	ErrTransportClosed  = errors.New("transport closed")
	ErrNotReady         = errors.New("PN532 not ready")
	ErrFrameCorrupted   = errors.New("corrupted frame from PN532")
)

// Protocol errors
var (
	ErrInvalidResponse   = errors.New("unexpected PN532 response")
	ErrNoTarget          = errors.New("no target in field")
	ErrUnsupportedTarget = errors.New("target is not an NTAG21x")
	ErrTargetChanged     = errors.New("a different tag was presented")
)

// TransportError wraps transport-level errors with the operation and port.
type TransportError struct {
	Err  error  // Underlying error
	Op   string // Operation that failed
	Port string // Port or bus name
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error.
func NewTransportError(op, port string, err error) *TransportError {
	return &TransportError{Op: op, Port: port, Err: err}
}

// PN532Error is a non-zero status byte in a PN532 response.
type PN532Error struct {
	Command   string
	ErrorCode byte
}

func (e *PN532Error) Error() string {
	return fmt.Sprintf("%s error 0x%02X (%s)", e.Command, e.ErrorCode, errorCodeMeaning(e.ErrorCode))
}

// IsAuthenticationError returns true if the error is authentication-related.
// NTAG21x tags answer a READ of a protected page, and a wrong PWD_AUTH,
// with a NAK that the PN532 reports this way.
func (e *PN532Error) IsAuthenticationError() bool {
	return e.ErrorCode == 0x14
}

// IsTimeoutError returns true if the target did not answer.
func (e *PN532Error) IsTimeoutError() bool {
	return e.ErrorCode == 0x01
}

func errorCodeMeaning(code byte) string {
	switch code {
	case 0x01:
		return "timeout"
	case 0x02:
		return "CRC error"
	case 0x03:
		return "parity error"
	case 0x13:
		return "data format error"
	case 0x14:
		return "authentication error"
	case 0x27:
		return "command not acceptable"
	case 0x29:
		return "target released"
	case 0x2B:
		return "card disappeared"
	default:
		return "unknown"
	}
}

// IsAuthenticationError checks if err is a PN532 authentication status.
func IsAuthenticationError(err error) bool {
	var pe *PN532Error
	if errors.As(err, &pe) {
		return pe.IsAuthenticationError()
	}
	return false
}
