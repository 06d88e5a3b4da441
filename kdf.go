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
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Password is the 4-byte NTAG PWD derived from a tag's UID.
type Password [4]byte

// Key is the 16-byte TEA key derived from a tag's UID.
type Key [16]byte

// PasswordAck is the PACK value the tag returns on successful PWD_AUTH
// and the value written to the PACK page when provisioning.
var PasswordAck = [2]byte{0xAA, 0x55}

const (
	// MaxScrambleRounds is the largest count Scramble accepts.
	MaxScrambleRounds = 6

	scrambleSentinel = 0xAA
)

// passwordBase is the PWD template. The UID overwrites the first 7 bytes.
var passwordBase = [32]byte{
	0, 0, 0, 0, 0, 0, 0,
	'(', 'c', ')', ' ', 'C', 'o', 'p', 'y', 'r', 'i', 'g', 'h', 't', ' ',
	'L', 'E', 'G', 'O', ' ', '2', '0', '1', '4',
	0xAA, 0xAA,
}

// scrambleBase is the key template. The UID overwrites the first 7 bytes;
// the mix never reads past the sixth word.
var scrambleBase = [MaxScrambleRounds * 4]byte{
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0xB7,
	0xD5, 0xD7, 0xE6, 0xE7,
	0xBA, 0x3C, 0xA8, 0xD8,
	0x75, 0x47, 0x68, 0xCF,
	0x23, 0xE9, 0xFE, 0xAA,
}

func rotr32(x uint32, n int) uint32 {
	return bits.RotateLeft32(x, -n)
}

// mix runs the vendor's word mixer over the first n little-endian words of
// buf. The accumulator is subtracted, not added; the vendor's tags depend
// on that.
func mix(buf []byte, n int) uint32 {
	var v2 uint32
	for i := range n {
		b := binary.LittleEndian.Uint32(buf[i*4:])
		v2 = b + rotr32(v2, 25) + rotr32(v2, 10) - v2
	}
	return v2
}

// DerivePassword returns the NTAG password for uid.
func DerivePassword(uid UID) Password {
	base := passwordBase
	copy(base[:], uid[:])

	var pwd Password
	binary.LittleEndian.PutUint32(pwd[:], mix(base[:], len(base)/4))
	return pwd
}

// Scramble runs cnt rounds of the key mixer for uid and returns the result
// big-endian. A count of zero yields zeros. Counts above MaxScrambleRounds
// panic; the derivation only ever uses fixed counts.
func Scramble(uid UID, cnt int) [4]byte {
	if cnt < 0 || cnt > MaxScrambleRounds {
		panic(fmt.Sprintf("toypad: scramble count %d out of range 0..%d", cnt, MaxScrambleRounds))
	}

	var out [4]byte
	if cnt == 0 {
		return out
	}

	base := scrambleBase
	copy(base[:], uid[:])
	base[cnt*4-1] = scrambleSentinel

	binary.BigEndian.PutUint32(out[:], mix(base[:], cnt))
	return out
}

// DeriveKey returns the TEA key for uid: scramble rounds 3 through 6,
// concatenated.
func DeriveKey(uid UID) Key {
	var key Key
	for i, cnt := range []int{3, 4, 5, 6} {
		s := Scramble(uid, cnt)
		copy(key[i*4:], s[:])
	}
	return key
}

// Credential returns the 6 bytes handed to Tag.Authenticate: the derived
// password followed by the expected PACK.
func Credential(uid UID) [6]byte {
	pwd := DerivePassword(uid)

	var c [6]byte
	copy(c[:4], pwd[:])
	copy(c[4:], PasswordAck[:])
	return c
}

// Bytes returns the password as a slice.
func (p Password) Bytes() []byte {
	return append([]byte(nil), p[:]...)
}

// Bytes returns the key as a slice.
func (k Key) Bytes() []byte {
	return append([]byte(nil), k[:]...)
}
