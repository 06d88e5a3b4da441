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
	"encoding/hex"
	"fmt"
	"strings"
)

// UIDLength is the length of an NTAG21x serial number.
const UIDLength = 7

// UID is a tag's 7-byte serial number. It is the root of every derived
// password and key.
type UID [UIDLength]byte

// Manufacturer represents the chip manufacturer identified from the UID.
// The first byte of a 7-byte UID contains the manufacturer code per ISO/IEC 7816-6.
type Manufacturer string

const (
	// ManufacturerNXP is NXP Semiconductors (0x04), maker of genuine NTAG chips.
	ManufacturerNXP Manufacturer = "NXP"
	// ManufacturerST is STMicroelectronics (0x02).
	ManufacturerST Manufacturer = "STMicroelectronics"
	// ManufacturerInfineon is Infineon Technologies (0x05).
	ManufacturerInfineon Manufacturer = "Infineon"
	// ManufacturerTI is Texas Instruments (0x07).
	ManufacturerTI Manufacturer = "Texas Instruments"
	// ManufacturerUnknown indicates an unrecognized manufacturer code,
	// typically a clone chip.
	ManufacturerUnknown Manufacturer = "Unknown"
)

// NewUID copies b into a UID.
func NewUID(b []byte) (UID, error) {
	var uid UID
	if len(b) != UIDLength {
		return uid, fmt.Errorf("%w: got %d bytes", ErrInvalidIdentifierLength, len(b))
	}
	copy(uid[:], b)
	return uid, nil
}

// ParseUID parses a UID written as hex. Separators of any kind and a
// leading 0x are ignored, so "04:13:BB:1A:99:40:80", "0413bb1a994080" and
// "0x04-13-bb-1a-99-40-80" are equivalent. Thirteen digits are accepted
// as a UID whose leading zero was dropped.
func ParseUID(s string) (UID, error) {
	s = strings.TrimSpace(s)
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			digits.WriteRune(r)
		}
	}

	h := digits.String()
	if len(h) == UIDLength*2-1 {
		h = "0" + h
	}
	if len(h) != UIDLength*2 {
		return UID{}, fmt.Errorf("%w: %q has %d hex digits, expected %d",
			ErrInvalidIdentifierLength, s, len(h), UIDLength*2)
	}

	b, err := hex.DecodeString(h)
	if err != nil {
		return UID{}, fmt.Errorf("invalid UID %q: %w", s, err)
	}
	return NewUID(b)
}

// Bytes returns a copy of the UID as a slice.
func (u UID) Bytes() []byte {
	b := make([]byte, UIDLength)
	copy(b, u[:])
	return b
}

// Hex returns the UID as lower-case hex without separators.
func (u UID) Hex() string {
	return hex.EncodeToString(u[:])
}

// String returns the UID as colon-separated upper-case hex.
func (u UID) String() string {
	parts := make([]string, UIDLength)
	for i, b := range u {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// Manufacturer returns the chip manufacturer based on the UID's first byte.
func (u UID) Manufacturer() Manufacturer {
	switch u[0] {
	case 0x04:
		return ManufacturerNXP
	case 0x02:
		return ManufacturerST
	case 0x05:
		return ManufacturerInfineon
	case 0x07:
		return ManufacturerTI
	default:
		return ManufacturerUnknown
	}
}

// IsGenuineNXP returns true if the UID indicates a genuine NXP chip.
// Blank NTAG213 stickers sold as replacements are usually NXP too, so this
// says nothing about whether a tag came from the toy vendor.
func (u UID) IsGenuineNXP() bool {
	return u[0] == 0x04
}
