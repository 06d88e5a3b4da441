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
	"context"
	"errors"
	"testing"
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
	virt "github.com/ZaparooProject/go-toypad/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDevice returns an initialized Device on a simulator holding tag.
func newTestDevice(t *testing.T, tag *virt.VirtualNTAG213) (*Device, *virt.VirtualPN532, *virt.SimulatorTransport) {
	t.Helper()

	sim, transport := virt.NewSimulatorWithTag(tag)
	device, err := New(transport, WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, device.Init(context.Background()))

	return device, sim, transport
}

func TestNew_NilTransport(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)
}

func TestDevice_Init(t *testing.T) {
	t.Parallel()

	_, sim, transport := newTestDevice(t, nil)

	assert.True(t, sim.SAMConfigured())
	assert.Equal(t, DefaultTimeout, transport.Timeout())
	assert.Equal(t, []byte{cmdGetFirmwareVersion, cmdSAMConfiguration, cmdRFConfiguration}, transport.Commands())
	assert.Equal(t, []byte{samModeNormal, 0x14, 0x01}, transport.CommandLog[1].Args)
	assert.Equal(t, []byte{rfCfgMaxRetries, mxRtyATR, mxRtyPSL, passiveActivationRetries}, transport.CommandLog[2].Args)
	assert.Equal(t, byte(passiveActivationRetries), sim.PassiveActivationRetries())
}

func TestDevice_FirmwareVersion(t *testing.T) {
	t.Parallel()

	device, sim, _ := newTestDevice(t, nil)
	sim.SetFirmwareVersion(0x32, 0x01, 0x04, 0x07)

	fw, err := device.FirmwareVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PN532 v1.4", fw.String())
	assert.Equal(t, byte(0x07), fw.Support)
}

func TestDevice_InListPassiveTarget(t *testing.T) {
	t.Parallel()

	t.Run("empty field", func(t *testing.T) {
		t.Parallel()
		device, _, _ := newTestDevice(t, nil)

		_, err := device.InListPassiveTarget(context.Background())
		require.ErrorIs(t, err, ErrNoTarget)
	})

	t.Run("NTAG213", func(t *testing.T) {
		t.Parallel()
		device, _, transport := newTestDevice(t, virt.NewVirtualNTAG213(nil))

		target, err := device.InListPassiveTarget(context.Background())
		require.NoError(t, err)
		assert.Equal(t, virt.TestUID, target.UID)
		assert.Equal(t, byte(1), target.Number)
		assert.Equal(t, [2]byte{0x00, 0x44}, target.SensRes)
		assert.True(t, target.IsType2())

		last := transport.CommandLog[len(transport.CommandLog)-1]
		assert.Equal(t, []byte{0x01, brTy106TypeA}, last.Args, "no InitiatorData: any UID")
	})
}

func TestTarget_IsType2(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		selRes byte
		want   bool
	}{
		{name: "NTAG21x", selRes: 0x00, want: true},
		{name: "ISO-DEP", selRes: 0x20, want: false},
		{name: "NFC-DEP", selRes: 0x40, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, (&Target{SelRes: tt.selRes}).IsType2())
		})
	}
}

func TestDevice_InDataExchangeStatus(t *testing.T) {
	t.Parallel()

	tag := virt.NewVirtualNTAG213(nil)
	tag.Protect([4]byte{1, 2, 3, 4}, toypad.PasswordAck, toypad.PageDataA)
	device, _, _ := newTestDevice(t, tag)
	ctx := context.Background()

	_, err := device.InListPassiveTarget(ctx)
	require.NoError(t, err)

	res, err := device.InDataExchange(ctx, []byte{0x30, 0x04})
	require.NoError(t, err)
	assert.Len(t, res, 16)

	_, err = device.InDataExchange(ctx, []byte{0x30, toypad.PageDataA})
	var pe *PN532Error
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.IsAuthenticationError())
	assert.True(t, IsAuthenticationError(err))

	_, err = device.InDataExchange(ctx, []byte{0x30, 0x04})
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.IsTimeoutError(), "halted tag")
}

func TestDevice_Connect(t *testing.T) {
	t.Parallel()

	t.Run("returns tag", func(t *testing.T) {
		t.Parallel()
		device, _, _ := newTestDevice(t, virt.NewVirtualNTAG213(nil))

		tag, err := device.Connect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, virt.TestUID, tag.UIDBytes())
	})

	t.Run("waits for a tag", func(t *testing.T) {
		t.Parallel()
		device, sim, _ := newTestDevice(t, nil)

		go func() {
			time.Sleep(20 * time.Millisecond)
			sim.SetTag(virt.NewVirtualNTAG213(nil))
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		tag, err := device.Connect(ctx)
		require.NoError(t, err)
		assert.Equal(t, virt.TestUID, tag.UIDBytes())
	})

	t.Run("context ends", func(t *testing.T) {
		t.Parallel()
		device, _, _ := newTestDevice(t, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := device.Connect(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
	})

	t.Run("rejects short UID", func(t *testing.T) {
		t.Parallel()
		device, _, transport := newTestDevice(t, virt.NewVirtualNTAG213([]byte{0x01, 0x02, 0x03, 0x04}))

		_, err := device.Connect(context.Background())
		require.ErrorIs(t, err, ErrUnsupportedTarget)
		cmds := transport.Commands()
		assert.Equal(t, byte(cmdInRelease), cmds[len(cmds)-1])
	})
}

func TestDevice_Close(t *testing.T) {
	t.Parallel()

	device, _, transport := newTestDevice(t, nil)
	require.NoError(t, device.Close())
	assert.True(t, transport.Closed())
}

func TestPN532Error_Message(t *testing.T) {
	t.Parallel()

	err := &PN532Error{Command: "InDataExchange", ErrorCode: 0x14}
	assert.Equal(t, "InDataExchange error 0x14 (authentication error)", err.Error())
	assert.False(t, err.IsTimeoutError())
	assert.False(t, IsAuthenticationError(errors.New("other")))
}

func TestTransportError_Unwrap(t *testing.T) {
	t.Parallel()

	err := NewTransportError("read", "/dev/ttyUSB0", ErrTransportTimeout)
	assert.Equal(t, "read /dev/ttyUSB0: PN532 response timeout", err.Error())
	require.ErrorIs(t, err, ErrTransportTimeout)

	assert.Equal(t, "write: transport closed", NewTransportError("write", "", ErrTransportClosed).Error())
}
