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
	"testing"

	toypad "github.com/ZaparooProject/go-toypad"
	virt "github.com/ZaparooProject/go-toypad/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectTag(t *testing.T, vt *virt.VirtualNTAG213) (*Tag, *virt.VirtualPN532, *virt.SimulatorTransport) {
	t.Helper()

	device, sim, transport := newTestDevice(t, vt)
	tag, err := device.Connect(context.Background())
	require.NoError(t, err)

	pt, ok := tag.(*Tag)
	require.True(t, ok)
	return pt, sim, transport
}

func testCredential(t *testing.T) [6]byte {
	t.Helper()
	uid, err := toypad.NewUID(virt.TestUID)
	require.NoError(t, err)
	return toypad.Credential(uid)
}

func TestTag_ReadPage(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	vt.SetPage(0x10, [4]byte{0xDE, 0xAD, 0xBE, 0xEF})
	tag, _, _ := connectTag(t, vt)

	data, err := tag.ReadPage(context.Background(), 0x10)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, data)
}

func TestTag_ReadProtectedPageIsAccessDenied(t *testing.T) {
	t.Parallel()

	vt, err := virt.NewToyTag(nil, toypad.Character(1))
	require.NoError(t, err)
	tag, _, _ := connectTag(t, vt)

	_, err = tag.ReadPage(context.Background(), toypad.PageDataA)
	require.ErrorIs(t, err, toypad.ErrAccessDenied)
	assert.True(t, toypad.IsAccessDenied(err))
	assert.True(t, tag.halted)
}

func TestTag_AuthenticateReselectsHaltedTag(t *testing.T) {
	t.Parallel()

	vt, err := virt.NewToyTag(nil, toypad.Character(1))
	require.NoError(t, err)
	tag, _, transport := connectTag(t, vt)
	ctx := context.Background()

	_, err = tag.ReadPage(ctx, toypad.PageDataA)
	require.ErrorIs(t, err, toypad.ErrAccessDenied)

	before := len(transport.CommandLog)
	ok, err := tag.Authenticate(ctx, testCredential(t))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, tag.halted)

	assert.Equal(t, []byte{cmdInRelease, cmdInListPassiveTarget, cmdInDataExchange},
		transport.Commands()[before:])

	data, err := tag.ReadPage(ctx, toypad.PageDataA)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x4C, 0xC4, 0xAF, 0x1C}, data)
}

func TestTag_AuthenticateWrongPassword(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	vt.Protect([4]byte{1, 2, 3, 4}, toypad.PasswordAck, toypad.PageDataA)
	tag, _, _ := connectTag(t, vt)

	ok, err := tag.Authenticate(context.Background(), testCredential(t))
	require.NoError(t, err, "a refused password is not a transport error")
	assert.False(t, ok)
	assert.True(t, tag.halted)
}

func TestTag_AuthenticateWrongPack(t *testing.T) {
	t.Parallel()

	cred := testCredential(t)
	vt := virt.NewVirtualNTAG213(nil)
	var pwd [4]byte
	copy(pwd[:], cred[:4])
	vt.Protect(pwd, [2]byte{0x00, 0x00}, toypad.PageDataA)
	tag, _, _ := connectTag(t, vt)

	ok, err := tag.Authenticate(context.Background(), cred)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTag_ReselectChecksUID(t *testing.T) {
	t.Parallel()

	vt, err := virt.NewToyTag(nil, toypad.Character(1))
	require.NoError(t, err)
	tag, sim, _ := connectTag(t, vt)
	ctx := context.Background()

	_, err = tag.ReadPage(ctx, toypad.PageDataA)
	require.ErrorIs(t, err, toypad.ErrAccessDenied)

	sim.SetTag(virt.NewVirtualNTAG213([]byte{0x04, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}))
	_, err = tag.Authenticate(ctx, testCredential(t))
	require.ErrorIs(t, err, ErrTargetChanged)
}

func TestTag_WritePage(t *testing.T) {
	t.Parallel()

	vt := virt.NewVirtualNTAG213(nil)
	tag, _, _ := connectTag(t, vt)
	ctx := context.Background()

	require.NoError(t, tag.WritePage(ctx, 0x10, []byte{1, 2, 3, 4}))
	assert.Equal(t, [4]byte{1, 2, 3, 4}, vt.Page(0x10))

	err := tag.WritePage(ctx, 0x10, []byte{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid page size")

	vt.Protect([4]byte{1, 2, 3, 4}, toypad.PasswordAck, 0x10)
	err = tag.WritePage(ctx, 0x11, []byte{1, 2, 3, 4})
	require.ErrorIs(t, err, toypad.ErrAccessDenied)
}

func TestTag_Close(t *testing.T) {
	t.Parallel()

	tag, _, transport := connectTag(t, virt.NewVirtualNTAG213(nil))

	require.NoError(t, tag.Close())
	require.NoError(t, tag.Close())
	cmds := transport.Commands()
	assert.Equal(t, byte(cmdInRelease), cmds[len(cmds)-1])

	_, err := tag.ReadPage(context.Background(), 0x04)
	require.ErrorIs(t, err, ErrTransportClosed)
}

func TestSession_OverPN532(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		content   toypad.Content
		protected bool
	}{
		{name: "protected character", content: toypad.Character(3), protected: true},
		{name: "protected vehicle", content: toypad.Vehicle(1000), protected: true},
		{name: "open character", content: toypad.Character(998)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			vt, err := virt.NewToyTag(nil, tt.content)
			require.NoError(t, err)
			if !tt.protected {
				cfg0 := vt.Page(0x29)
				cfg0[3] = 0xFF
				vt.SetPage(0x29, cfg0)
			}

			tag, _, _ := connectTag(t, vt)
			session, err := toypad.NewSession(tag)
			require.NoError(t, err)

			result, err := session.Open(ctx)
			require.NoError(t, err)
			require.NoError(t, result.Err)
			assert.Equal(t, tt.content, result.Content)
			assert.Equal(t, tt.protected, result.Protected)

			next := tt.content
			next.ID++
			require.NoError(t, session.Write(ctx, next))
			require.NoError(t, session.Close())

			uid, err := toypad.NewUID(virt.TestUID)
			require.NoError(t, err)
			pages := toypad.Pages{DataA: vt.Page(toypad.PageDataA), DataB: vt.Page(toypad.PageDataB), Type: vt.Page(toypad.PageType)}
			got, err := toypad.DecodeForUID(pages, uid)
			require.NoError(t, err)
			assert.Equal(t, next, got)
			assert.Equal(t, toypad.DerivePassword(uid), toypad.Password(vt.Page(toypad.PagePassword)))
		})
	}
}

func TestSession_OverPN532_CategoryChangeRefused(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	vt, err := virt.NewToyTag(nil, toypad.Character(5))
	require.NoError(t, err)
	tag, _, _ := connectTag(t, vt)

	session, err := toypad.NewSession(tag)
	require.NoError(t, err)
	_, err = session.Open(ctx)
	require.NoError(t, err)

	err = session.Write(ctx, toypad.Vehicle(1000))
	require.ErrorIs(t, err, toypad.ErrCategoryChangeRefused)
	assert.Empty(t, vt.Writes())
}
