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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []byte
		want []byte
		cmd  byte
	}{
		{
			name: "GetFirmwareVersion",
			cmd:  0x02,
			want: []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00},
		},
		{
			name: "SAMConfiguration normal mode",
			cmd:  0x14,
			args: []byte{0x01, 0x14, 0x01},
			want: []byte{0x00, 0x00, 0xFF, 0x05, 0xFB, 0xD4, 0x14, 0x01, 0x14, 0x01, 0x02, 0x00},
		},
		{
			name: "InDataExchange READ page 0x24",
			cmd:  0x40,
			args: []byte{0x01, 0x30, 0x24},
			want: []byte{0x00, 0x00, 0xFF, 0x05, 0xFB, 0xD4, 0x40, 0x01, 0x30, 0x24, 0x97, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Build(tt.cmd, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuild_TooLarge(t *testing.T) {
	t.Parallel()

	frm, err := Build(0x40, make([]byte, MaxArgsLength))
	require.NoError(t, err)
	assert.Len(t, frm, MaxFrameLength)

	_, err = Build(0x40, make([]byte, MaxArgsLength+1))
	require.ErrorIs(t, err, ErrDataTooLarge)
}

func TestBuildResponse(t *testing.T) {
	t.Parallel()

	got := BuildResponse([]byte{0x03, 0x32, 0x01, 0x06, 0x07})
	want := []byte{0x00, 0x00, 0xFF, 0x06, 0xFA, 0xD5, 0x03, 0x32, 0x01, 0x06, 0x07, 0xE8, 0x00}
	assert.Equal(t, want, got)
}

func TestParse_RoundTrip(t *testing.T) {
	t.Parallel()

	payloads := [][]byte{
		{0x15},
		{0x41, 0x00, 0x01, 0x39, 0xED, 0x60, 0xE4, 0xBE, 0x30, 0x7C, 0, 0, 0, 0, 0, 0, 0, 0},
		{0x4B, 0x01, 0x01, 0x00, 0x44, 0x00, 0x07, 0x04, 0x13, 0xBB, 0x1A, 0x99, 0x40, 0x80},
	}

	for _, p := range payloads {
		frm := BuildResponse(p)
		data, n, err := Parse(frm, Pn532ToHost)
		require.NoError(t, err)
		assert.Equal(t, p, data)
		assert.Equal(t, len(frm)-1, n, "consumed through DCS")
	}
}

func TestParse_SkipsLeadingGarbage(t *testing.T) {
	t.Parallel()

	buf := append([]byte{0x55, 0x01, 0x00}, BuildResponse([]byte{0x15})...)
	data, _, err := Parse(buf, Pn532ToHost)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x15}, data)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	valid := BuildResponse([]byte{0x03, 0x32, 0x01, 0x06, 0x07})

	badLCS := append([]byte(nil), valid...)
	badLCS[4] ^= 0x01

	badDCS := append([]byte(nil), valid...)
	badDCS[len(badDCS)-2] ^= 0xFF

	hostFrame, err := Build(0x02, nil)
	require.NoError(t, err)

	tests := []struct {
		want error
		name string
		buf  []byte
	}{
		{name: "empty", buf: nil, want: ErrNoStartCode},
		{name: "garbage", buf: []byte{0x01, 0x02, 0x03}, want: ErrNoStartCode},
		{name: "dangling start byte", buf: []byte{0x01, 0x00}, want: ErrIncomplete},
		{name: "header only", buf: valid[:4], want: ErrIncomplete},
		{name: "truncated body", buf: valid[:9], want: ErrIncomplete},
		{name: "bad length checksum", buf: badLCS, want: ErrLengthChecksum},
		{name: "bad data checksum", buf: badDCS, want: ErrDataChecksum},
		{name: "ack", buf: AckFrame, want: ErrNotInformation},
		{name: "nack", buf: NackFrame, want: ErrNotInformation},
		{name: "error frame", buf: ErrorFrame, want: ErrErrorFrame},
		{name: "host direction", buf: hostFrame, want: ErrUnexpectedTFI},
		{name: "extended", buf: []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0xFF}, want: ErrExtendedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Parse(tt.buf, Pn532ToHost)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIsAckNack(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAck(AckFrame))
	assert.True(t, IsAck(append([]byte{0x00, 0x00}, AckFrame...)))
	assert.False(t, IsAck(NackFrame))
	assert.True(t, IsNack(NackFrame))
	assert.False(t, IsNack(AckFrame))
	assert.False(t, IsAck([]byte{0x00}))
}

// Run with: go test -fuzz=FuzzParse -fuzztime=30s ./internal/frame/
func FuzzParse(f *testing.F) {
	f.Add(BuildResponse([]byte{0x15}))
	f.Add(AckFrame)
	f.Add(NackFrame)
	f.Add(ErrorFrame)
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x00, 0xFF})
	f.Add([]byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF})
	f.Add([]byte{0x00, 0xFF, 0x01, 0xFF, 0xD5})

	f.Fuzz(func(t *testing.T, buf []byte) {
		data, n, err := Parse(buf, Pn532ToHost)
		if err != nil {
			return
		}
		if n > len(buf) {
			t.Fatalf("consumed %d of %d bytes", n, len(buf))
		}
		if len(data) >= n {
			t.Fatalf("payload of %d bytes from %d consumed", len(data), n)
		}
	})
}
