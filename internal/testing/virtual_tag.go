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

// Package testing provides test doubles: a virtual NTAG213 with password
// protection and a wire-level PN532 simulator that drives it.
package testing

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ZaparooProject/go-toypad/internal/syncutil"
)

// NTAG213 memory layout
const (
	NTAG213Pages = 45

	pageCC   = 0x03
	pageCfg0 = 0x29
	pageCfg1 = 0x2A
	pagePwd  = 0x2B
	pagePack = 0x2C

	cfg1Prot = 0x80
)

// NTAG21x commands
const (
	CmdRead    = 0x30
	CmdWrite   = 0xA2
	CmdPwdAuth = 0x1B
)

// ErrNAK is the tag refusing a command. After a NAK the tag is halted
// until Select.
var ErrNAK = errors.New("tag NAK")

// ErrHalted is a command sent to a halted tag. A real tag stays silent, so
// readers see a timeout.
var ErrHalted = errors.New("tag halted")

// ErrTagClosed is returned by a closed VirtualNTAG213.
var ErrTagClosed = errors.New("virtual tag closed")

// TestUID is the UID used when none is given.
var TestUID = []byte{0x04, 0x13, 0xBB, 0x1A, 0x99, 0x40, 0x80}

// PageWrite is one committed WRITE.
type PageWrite struct {
	Page uint8
	Data [4]byte
}

// VirtualNTAG213 simulates an NTAG213: 45 pages, PWD/PACK, AUTH0 and the
// PROT bit, and the halt that follows a NAK. It implements toypad.Tag
// directly and answers raw tag commands through Transceive for the PN532
// simulator.
type VirtualNTAG213 struct {
	readFaults    map[uint8]error
	writeFaults   map[uint8]error
	authFault     error
	uid           []byte
	writes        []PageWrite
	reads         []uint8
	pages         [NTAG213Pages][4]byte
	authAttempts  int
	mu            syncutil.Mutex
	authenticated bool
	halted        bool
	closed        bool
}

// NewVirtualNTAG213 returns a blank tag with factory configuration:
// protection disabled, PWD FF FF FF FF, PACK 00 00.
func NewVirtualNTAG213(uid []byte) *VirtualNTAG213 {
	if uid == nil {
		uid = TestUID
	}

	v := &VirtualNTAG213{
		uid:         append([]byte(nil), uid...),
		readFaults:  make(map[uint8]error),
		writeFaults: make(map[uint8]error),
	}

	if len(uid) == 7 {
		v.pages[0] = [4]byte{uid[0], uid[1], uid[2], 0x88 ^ uid[0] ^ uid[1] ^ uid[2]}
		v.pages[1] = [4]byte{uid[3], uid[4], uid[5], uid[6]}
		v.pages[2] = [4]byte{uid[3] ^ uid[4] ^ uid[5] ^ uid[6], 0x48, 0x00, 0x00}
	}
	v.pages[pageCC] = [4]byte{0xE1, 0x10, 0x12, 0x00}
	v.pages[pageCfg0] = [4]byte{0x04, 0x00, 0x00, 0xFF}
	v.pages[pageCfg1] = [4]byte{0x00, 0x05, 0x00, 0x00}
	v.pages[pagePwd] = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

	return v
}

// NewToyTag returns a tag holding c, protected the way factory toy tags
// are: the UID's derived password, PACK AA 55, AUTH0 at the data pages and
// reads protected.
func NewToyTag(uid []byte, c toypad.Content) (*VirtualNTAG213, error) {
	v := NewVirtualNTAG213(uid)

	u, err := toypad.NewUID(v.uid)
	if err != nil {
		return nil, err
	}
	pages, err := toypad.EncodeForUID(c, u)
	if err != nil {
		return nil, err
	}

	v.pages[toypad.PageDataA] = pages.DataA
	v.pages[toypad.PageDataB] = pages.DataB
	v.pages[toypad.PageType] = pages.Type
	v.Protect(toypad.DerivePassword(u), toypad.PasswordAck, toypad.PageDataA)

	return v, nil
}

// Protect sets PWD, PACK and AUTH0 and turns on read protection.
func (v *VirtualNTAG213) Protect(pwd [4]byte, pack [2]byte, auth0 uint8) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pages[pagePwd] = pwd
	v.pages[pagePack] = [4]byte{pack[0], pack[1], 0x00, 0x00}
	v.pages[pageCfg0][3] = auth0
	v.pages[pageCfg1][0] |= cfg1Prot
}

// Page returns a page's raw contents, ignoring protection.
func (v *VirtualNTAG213) Page(page uint8) [4]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pages[page]
}

// SetPage overwrites a page, ignoring protection.
func (v *VirtualNTAG213) SetPage(page uint8, data [4]byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pages[page] = data
}

// FailRead makes every READ starting at page return err.
func (v *VirtualNTAG213) FailRead(page uint8, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readFaults[page] = err
}

// FailWrite makes every WRITE to page return err without committing.
func (v *VirtualNTAG213) FailWrite(page uint8, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.writeFaults[page] = err
}

// FailAuth makes PWD_AUTH return err.
func (v *VirtualNTAG213) FailAuth(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.authFault = err
}

// Writes returns the committed writes in order.
func (v *VirtualNTAG213) Writes() []PageWrite {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]PageWrite(nil), v.writes...)
}

// Reads returns the start page of every READ attempted, in order.
func (v *VirtualNTAG213) Reads() []uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uint8(nil), v.reads...)
}

// AuthAttempts returns how many PWD_AUTH commands were received.
func (v *VirtualNTAG213) AuthAttempts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.authAttempts
}

// Authenticated reports whether PWD_AUTH succeeded since the last Select.
func (v *VirtualNTAG213) Authenticated() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.authenticated
}

// Protected reports whether unauthenticated reads of page are refused.
func (v *VirtualNTAG213) Protected(page uint8) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readProtected(page)
}

// Closed reports whether Close was called.
func (v *VirtualNTAG213) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// UID returns the tag's UID.
func (v *VirtualNTAG213) UID() []byte {
	return append([]byte(nil), v.uid...)
}

// Select wakes the tag the way a reader's anticollision does. It clears
// the halt and the authentication state.
func (v *VirtualNTAG213) Select() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.halted = false
	v.authenticated = false
}

func (v *VirtualNTAG213) auth0() uint8 {
	return v.pages[pageCfg0][3]
}

func (v *VirtualNTAG213) readProtected(page uint8) bool {
	return !v.authenticated && page >= v.auth0() && v.pages[pageCfg1][0]&cfg1Prot != 0
}

func (v *VirtualNTAG213) writeProtected(page uint8) bool {
	return !v.authenticated && page >= v.auth0()
}

func (v *VirtualNTAG213) nak() error {
	v.halted = true
	return ErrNAK
}

// Transceive executes one raw tag command and returns the tag's answer.
// WRITE answers with nothing; the 4-bit ACK is the reader's business.
func (v *VirtualNTAG213) Transceive(cmd []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.halted {
		return nil, ErrHalted
	}
	if len(cmd) == 0 {
		return nil, v.nak()
	}

	switch cmd[0] {
	case CmdRead:
		if len(cmd) != 2 {
			return nil, v.nak()
		}
		return v.read(cmd[1])
	case CmdWrite:
		if len(cmd) != 6 {
			return nil, v.nak()
		}
		var data [4]byte
		copy(data[:], cmd[2:])
		return nil, v.write(cmd[1], data)
	case CmdPwdAuth:
		if len(cmd) != 5 {
			return nil, v.nak()
		}
		return v.pwdAuth(cmd[1:])
	default:
		return nil, v.nak()
	}
}

func (v *VirtualNTAG213) read(page uint8) ([]byte, error) {
	v.reads = append(v.reads, page)

	if err := v.readFaults[page]; err != nil {
		return nil, err
	}
	if page >= NTAG213Pages || v.readProtected(page) {
		return nil, v.nak()
	}

	out := make([]byte, 0, 16)
	for i := range uint8(4) {
		p := (page + i) % NTAG213Pages
		switch {
		case p == pagePwd, p == pagePack, v.readProtected(p):
			out = append(out, 0x00, 0x00, 0x00, 0x00)
		default:
			out = append(out, v.pages[p][:]...)
		}
	}
	return out, nil
}

func (v *VirtualNTAG213) write(page uint8, data [4]byte) error {
	if err := v.writeFaults[page]; err != nil {
		return err
	}
	if page < 2 || page >= NTAG213Pages || v.writeProtected(page) {
		return v.nak()
	}

	v.pages[page] = data
	v.writes = append(v.writes, PageWrite{Page: page, Data: data})
	return nil
}

func (v *VirtualNTAG213) pwdAuth(pwd []byte) ([]byte, error) {
	v.authAttempts++

	if v.authFault != nil {
		return nil, v.authFault
	}
	if !bytes.Equal(pwd, v.pages[pagePwd][:]) {
		return nil, v.nak()
	}

	v.authenticated = true
	return append([]byte(nil), v.pages[pagePack][:2]...), nil
}

// UIDBytes implements toypad.Tag.
func (v *VirtualNTAG213) UIDBytes() []byte {
	return v.UID()
}

// ReadPage implements toypad.Tag.
func (v *VirtualNTAG213) ReadPage(ctx context.Context, page uint8) ([]byte, error) {
	if err := v.wake(ctx); err != nil {
		return nil, err
	}

	data, err := v.Transceive([]byte{CmdRead, page})
	if errors.Is(err, ErrNAK) {
		return nil, fmt.Errorf("%w: page 0x%02X: %w", toypad.ErrAccessDenied, page, err)
	}
	if err != nil {
		return nil, err
	}
	return data[:4], nil
}

// Authenticate implements toypad.Tag.
func (v *VirtualNTAG213) Authenticate(ctx context.Context, credential [6]byte) (bool, error) {
	if err := v.wake(ctx); err != nil {
		return false, err
	}

	pack, err := v.Transceive(append([]byte{CmdPwdAuth}, credential[:4]...))
	if errors.Is(err, ErrNAK) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bytes.Equal(pack, credential[4:]), nil
}

// WritePage implements toypad.Tag.
func (v *VirtualNTAG213) WritePage(ctx context.Context, page uint8, data []byte) error {
	if err := v.wake(ctx); err != nil {
		return err
	}
	if len(data) != 4 {
		return fmt.Errorf("page data must be 4 bytes, got %d", len(data))
	}

	cmd := append([]byte{CmdWrite, page}, data...)
	if _, err := v.Transceive(cmd); err != nil {
		return fmt.Errorf("write page 0x%02X: %w", page, err)
	}
	return nil
}

// Close implements toypad.Tag.
func (v *VirtualNTAG213) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// wake checks the tag is usable and selects it again after a NAK, the
// way the PN532 driver does.
func (v *VirtualNTAG213) wake(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrTagClosed
	}
	if v.halted {
		v.halted = false
		v.authenticated = false
	}
	return nil
}

var _ toypad.Tag = (*VirtualNTAG213)(nil)
