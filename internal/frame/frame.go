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

package frame

import (
	"bytes"
	"errors"
	"fmt"
)

// Frame errors
var (
	ErrIncomplete     = errors.New("incomplete frame")
	ErrNoStartCode    = errors.New("frame start code not found")
	ErrLengthChecksum = errors.New("frame length checksum mismatch")
	ErrDataChecksum   = errors.New("frame data checksum mismatch")
	ErrUnexpectedTFI  = errors.New("unexpected frame identifier")
	ErrErrorFrame     = errors.New("PN532 application error frame")
	ErrDataTooLarge   = errors.New("command too large for a normal frame")
	ErrExtendedFrame  = errors.New("extended frames are not supported")
	ErrNotInformation = errors.New("ACK or NACK where an information frame was expected")
)

// Build returns the normal information frame carrying cmd and args from
// the host.
func Build(cmd byte, args []byte) ([]byte, error) {
	if len(args) > MaxArgsLength {
		return nil, fmt.Errorf("%w: %d argument bytes", ErrDataTooLarge, len(args))
	}

	dataLen := byte(2 + len(args))

	frm := make([]byte, 0, int(dataLen)+Overhead)
	frm = append(frm, Preamble, StartCode1, StartCode2, dataLen, complement(dataLen), HostToPn532, cmd)
	frm = append(frm, args...)

	dcs := complement(HostToPn532 + cmd + CalculateChecksum(args))
	frm = append(frm, dcs, Postamble)

	return frm, nil
}

// BuildResponse returns the frame a PN532 sends for a reply. data starts
// with the response code.
func BuildResponse(data []byte) []byte {
	dataLen := byte(1 + len(data))

	frm := make([]byte, 0, int(dataLen)+Overhead)
	frm = append(frm, Preamble, StartCode1, StartCode2, dataLen, complement(dataLen), Pn532ToHost)
	frm = append(frm, data...)
	frm = append(frm, complement(Pn532ToHost+CalculateChecksum(data)), Postamble)

	return frm
}

// ErrorFrame is the fixed syntax error frame a PN532 sends.
var ErrorFrame = []byte{0x00, 0x00, 0xFF, 0x01, 0xFF, ErrorTFI, 0x81, 0x00}

// FindStart returns the index of the first 00 FF start code in buf, or -1.
func FindStart(buf []byte) int {
	return bytes.Index(buf, []byte{StartCode1, StartCode2})
}

// IsAck reports whether buf begins with an ACK frame, ignoring leading
// preamble bytes.
func IsAck(buf []byte) bool {
	return bytes.HasPrefix(trimPreamble(buf), AckFrame[1:])
}

// IsNack reports whether buf begins with a NACK frame, ignoring leading
// preamble bytes.
func IsNack(buf []byte) bool {
	return bytes.HasPrefix(trimPreamble(buf), NackFrame[1:])
}

func trimPreamble(buf []byte) []byte {
	for len(buf) > 2 && buf[0] == Preamble && buf[1] == Preamble {
		buf = buf[1:]
	}
	return buf
}

// Parse decodes the first information frame in buf whose TFI is tfi. It
// returns the bytes after the TFI (command or response code, then
// parameters) and the number of bytes of buf consumed, up to and
// including the DCS.
//
// ErrIncomplete means more bytes are needed. ACK and NACK frames yield
// ErrNotInformation.
func Parse(buf []byte, tfi byte) (data []byte, n int, err error) {
	start := FindStart(buf)
	if start < 0 {
		if len(buf) > 0 && buf[len(buf)-1] == StartCode1 {
			return nil, 0, ErrIncomplete
		}
		return nil, 0, ErrNoStartCode
	}

	off := start + 2
	if off+2 > len(buf) {
		return nil, 0, ErrIncomplete
	}

	frameLen, lcs := buf[off], buf[off+1]
	switch {
	case frameLen == 0x00 && lcs == 0xFF, frameLen == 0xFF && lcs == 0x00:
		return nil, off + 2, ErrNotInformation
	case frameLen == 0xFF && lcs == 0xFF:
		return nil, 0, ErrExtendedFrame
	case frameLen+lcs != 0:
		return nil, off + 2, ErrLengthChecksum
	case frameLen == 0:
		return nil, off + 2, ErrLengthChecksum
	}

	off += 2
	end := off + int(frameLen)
	if end+1 > len(buf) {
		return nil, 0, ErrIncomplete
	}

	body := buf[off:end]
	if CalculateChecksum(body)+buf[end] != 0 {
		return nil, end + 1, ErrDataChecksum
	}

	switch body[0] {
	case tfi:
	case ErrorTFI:
		return nil, end + 1, ErrErrorFrame
	default:
		return nil, end + 1, fmt.Errorf("%w: 0x%02X", ErrUnexpectedTFI, body[0])
	}

	data = make([]byte, len(body)-1)
	copy(data, body[1:])
	return data, end + 1, nil
}
