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

package toypad

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-toypad/pkg/tea"
)

// NTAG213 page layout used by toy pad tags
const (
	PageDataA    = 0x24 // Identifier data, first half
	PageDataB    = 0x25 // Identifier data, second half
	PageType     = 0x26 // Content type marker
	PageReserved = 0x27 // Unused by the game, read for diagnostics
	PagePassword = 0x2B // NTAG213 PWD
	PagePack     = 0x2C // NTAG213 PACK + RFUI

	// PageSize is the size of one NTAG page in bytes.
	PageSize = 4
)

// Content type markers stored in PageType
var (
	TypeCharacter = [PageSize]byte{0x00, 0x00, 0x00, 0x00}
	TypeVehicle   = [PageSize]byte{0x00, 0x01, 0x00, 0x00}
)

// Identifier ranges
const (
	MinCharacterID = 1
	MaxCharacterID = 999
	MinVehicleID   = 1000
)

// Kind is the category of a tag's content.
type Kind int

const (
	// KindUnknown is a tag whose type page matches neither known marker.
	KindUnknown Kind = iota
	// KindCharacter is a minifigure, IDs 1 to 999.
	KindCharacter
	// KindVehicle is a vehicle, gadget or token, IDs 1000 and up.
	KindVehicle
)

func (k Kind) String() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindVehicle:
		return "vehicle"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Content is what a tag represents. It is always a projection of the
// tag's pages and is never stored on its own.
type Content struct {
	Kind Kind
	ID   uint32
}

// Character returns character content with the given ID.
func Character(id uint32) Content {
	return Content{Kind: KindCharacter, ID: id}
}

// Vehicle returns vehicle content with the given ID.
func Vehicle(id uint32) Content {
	return Content{Kind: KindVehicle, ID: id}
}

// ContentForID picks the kind from the ID range: below 1000 is a
// character, 1000 and above a vehicle.
func ContentForID(id uint32) Content {
	if id >= MinVehicleID {
		return Vehicle(id)
	}
	return Character(id)
}

// Validate checks that the ID is inside the range of its kind.
func (c Content) Validate() error {
	switch c.Kind {
	case KindCharacter:
		if c.ID < MinCharacterID || c.ID > MaxCharacterID {
			return fmt.Errorf("%w: character ID %d outside %d..%d",
				ErrInvalidContent, c.ID, MinCharacterID, MaxCharacterID)
		}
	case KindVehicle:
		if c.ID < MinVehicleID {
			return fmt.Errorf("%w: vehicle ID %d below %d", ErrInvalidContent, c.ID, MinVehicleID)
		}
	default:
		return fmt.Errorf("%w: cannot encode %s content", ErrInvalidContent, c.Kind)
	}
	return nil
}

func (c Content) String() string {
	if c.Kind == KindUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%s %d", c.Kind, c.ID)
}

// Pages holds the four identifying pages starting at PageDataA.
type Pages struct {
	DataA    [PageSize]byte
	DataB    [PageSize]byte
	Type     [PageSize]byte
	Reserved [PageSize]byte
}

// PagesFromBlock splits the 16 bytes returned by an NTAG READ of
// PageDataA into Pages.
func PagesFromBlock(block []byte) (Pages, error) {
	var p Pages
	if len(block) < 4*PageSize {
		return p, fmt.Errorf("%w: need %d bytes for pages 0x%02X-0x%02X, got %d",
			ErrTransport, 4*PageSize, PageDataA, PageReserved, len(block))
	}
	copy(p.DataA[:], block[0:4])
	copy(p.DataB[:], block[4:8])
	copy(p.Type[:], block[8:12])
	copy(p.Reserved[:], block[12:16])
	return p, nil
}

// Kind classifies the type page.
func (p Pages) Kind() Kind {
	switch {
	case bytes.Equal(p.Type[:], TypeCharacter[:]):
		return KindCharacter
	case bytes.Equal(p.Type[:], TypeVehicle[:]):
		return KindVehicle
	default:
		return KindUnknown
	}
}

func (p Pages) String() string {
	return fmt.Sprintf("%02X:% X %02X:% X %02X:% X %02X:% X",
		PageDataA, p.DataA, PageDataB, p.DataB, PageType, p.Type, PageReserved, p.Reserved)
}

// swap32 reverses the byte order of a 4-byte group.
func swap32(dst, src []byte) {
	binary.BigEndian.PutUint32(dst, binary.LittleEndian.Uint32(src))
}

// Encode produces the identifying pages for c under key. The reserved page
// is left zero; callers do not write it.
func Encode(c Content, key Key) (Pages, error) {
	var p Pages
	if err := c.Validate(); err != nil {
		return p, err
	}

	switch c.Kind {
	case KindCharacter:
		block := make([]byte, tea.BlockSize)
		binary.BigEndian.PutUint32(block[0:4], c.ID)
		binary.BigEndian.PutUint32(block[4:8], c.ID)

		enc, err := tea.Encrypt(key[:], block, tea.DefaultRounds)
		if err != nil {
			return p, fmt.Errorf("encrypt character %d: %w", c.ID, err)
		}
		swap32(p.DataA[:], enc[0:4])
		swap32(p.DataB[:], enc[4:8])
		p.Type = TypeCharacter
	case KindVehicle:
		binary.LittleEndian.PutUint32(p.DataA[:], c.ID)
		p.Type = TypeVehicle
	}

	return p, nil
}

// Decode classifies and decodes p under key.
//
// A character payload whose halves disagree yields character content
// carrying the first half together with an *IntegrityError; the error is
// informational and the content should be treated as suspect. An
// unrecognized type page yields KindUnknown and no error.
func Decode(p Pages, key Key) (Content, error) {
	switch p.Kind() {
	case KindVehicle:
		return Vehicle(binary.LittleEndian.Uint32(p.DataA[:])), nil
	case KindCharacter:
		block := make([]byte, tea.BlockSize)
		swap32(block[0:4], p.DataA[:])
		swap32(block[4:8], p.DataB[:])

		dec, err := tea.Decrypt(key[:], block, tea.DefaultRounds)
		if err != nil {
			return Content{}, fmt.Errorf("decrypt character pages: %w", err)
		}

		first := binary.BigEndian.Uint32(dec[0:4])
		second := binary.BigEndian.Uint32(dec[4:8])
		if first != second {
			return Character(first), &IntegrityError{First: first, Second: second}
		}
		return Character(first), nil
	default:
		return Content{Kind: KindUnknown}, nil
	}
}

// EncodeForUID derives the key for uid and encodes c.
func EncodeForUID(c Content, uid UID) (Pages, error) {
	return Encode(c, DeriveKey(uid))
}

// DecodeForUID derives the key for uid and decodes p.
func DecodeForUID(p Pages, uid UID) (Content, error) {
	return Decode(p, DeriveKey(uid))
}
