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

package i2c

import (
	"context"
	"errors"
	"testing"
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
	virt "github.com/ZaparooProject/go-toypad/internal/testing"
	"github.com/ZaparooProject/go-toypad/pn532"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var errBusClosed = errors.New("bus closed")

// mockI2CBus puts a VirtualPN532 behind the PN532's I2C protocol: every
// read starts with the ready byte.
type mockI2CBus struct {
	sim    *virt.VirtualPN532
	addrs  []uint16
	closed bool
	mute   bool
}

func (m *mockI2CBus) Tx(addr uint16, w, r []byte) error {
	if m.closed {
		return errBusClosed
	}
	m.addrs = append(m.addrs, addr)

	if len(w) > 0 && !m.mute {
		if _, err := m.sim.Write(w); err != nil {
			return err //nolint:wrapcheck // mock
		}
	}
	if len(r) == 0 {
		return nil
	}

	clear(r)
	if !m.sim.HasPendingResponse() {
		return nil
	}
	r[0] = pn532Ready
	if len(r) > 1 {
		_, _ = m.sim.Read(r[1:])
	}
	return nil
}

func (*mockI2CBus) SetSpeed(_ physic.Frequency) error { return nil }

func (m *mockI2CBus) Close() error {
	m.closed = true
	return nil
}

func (*mockI2CBus) String() string { return "mock://i2c" }

var _ i2c.Bus = (*mockI2CBus)(nil)

func newTestTransport(t *testing.T, sim *virt.VirtualPN532) (*Transport, *mockI2CBus) {
	t.Helper()

	bus := &mockI2CBus{sim: sim}
	transport := NewWithBus(bus, "mock://i2c")
	require.NoError(t, transport.SetTimeout(100*time.Millisecond))
	return transport, bus
}

func TestParseI2CPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "/dev/i2c-1", want: "/dev/i2c-1"},
		{in: "/dev/i2c-1:0x24", want: "/dev/i2c-1"},
		{in: "1", want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseI2CPath(tt.in))
		})
	}
}

func TestI2C_GetFirmwareVersion(t *testing.T) {
	t.Parallel()

	transport, bus := newTestTransport(t, virt.NewVirtualPN532())

	res, err := transport.SendCommand(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x32, 0x01, 0x06, 0x07}, res)

	for _, addr := range bus.addrs {
		assert.Equal(t, uint16(0x24), addr)
	}
	assert.Equal(t, pn532.TransportI2C, transport.Type())
}

func TestI2C_NACKRetryOnCorruptResponse(t *testing.T) {
	t.Parallel()

	sim := virt.NewVirtualPN532()
	transport, _ := newTestTransport(t, sim)

	sim.InjectChecksumError()
	res, err := transport.SendCommand(context.Background(), 0x02, nil)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), res[0])
	assert.Equal(t, []byte{0x02}, sim.Commands())
}

func TestI2C_Errors(t *testing.T) {
	t.Parallel()

	t.Run("error frame", func(t *testing.T) {
		t.Parallel()
		transport, _ := newTestTransport(t, virt.NewVirtualPN532())

		_, err := transport.SendCommand(context.Background(), 0x60, nil)
		require.ErrorIs(t, err, pn532.ErrInvalidResponse)
	})

	t.Run("silent chip", func(t *testing.T) {
		t.Parallel()
		transport, bus := newTestTransport(t, virt.NewVirtualPN532())
		bus.mute = true

		_, err := transport.SendCommand(context.Background(), 0x02, nil)
		require.ErrorIs(t, err, pn532.ErrNoACK)
	})

	t.Run("missing ACK", func(t *testing.T) {
		t.Parallel()
		sim := virt.NewVirtualPN532()
		transport, _ := newTestTransport(t, sim)
		sim.DropNextACK()

		_, err := transport.SendCommand(context.Background(), 0x02, nil)
		require.ErrorIs(t, err, pn532.ErrNoACK)
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		transport, bus := newTestTransport(t, virt.NewVirtualPN532())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := transport.SendCommand(ctx, 0x02, nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, bus.addrs)
	})
}

func TestI2C_Close(t *testing.T) {
	t.Parallel()

	transport, bus := newTestTransport(t, virt.NewVirtualPN532())

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
	assert.True(t, bus.closed)
	assert.False(t, transport.IsConnected())

	_, err := transport.SendCommand(context.Background(), 0x02, nil)
	require.ErrorIs(t, err, pn532.ErrTransportClosed)
}

func TestI2C_SessionOnProtectedTag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	vt, err := virt.NewToyTag(nil, toypad.Vehicle(1010))
	require.NoError(t, err)
	sim := virt.NewVirtualPN532()
	sim.SetTag(vt)

	transport, _ := newTestTransport(t, sim)
	device, err := pn532.New(transport)
	require.NoError(t, err)
	require.NoError(t, device.Init(ctx))

	tag, err := device.Connect(ctx)
	require.NoError(t, err)

	session, err := toypad.NewSession(tag)
	require.NoError(t, err)
	result, err := session.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, toypad.Vehicle(1010), result.Content)

	require.NoError(t, session.Write(ctx, toypad.Vehicle(1011)))
	assert.Equal(t, [4]byte{0xF3, 0x03, 0x00, 0x00}, vt.Page(toypad.PageDataA))
}
