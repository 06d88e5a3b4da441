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

// Package tea implements the Tiny Encryption Algorithm in the fixed
// configuration used by toy pad tags: a 128-bit key, a 64-bit block and
// (by default) 32 cycles. Word byte order is configurable because the
// vendor scheme loads both the key and the block big-endian, while most
// published test vectors are little-endian.
//
// This is not a general purpose block cipher package. It exists so the
// tag payload codec can reproduce the vendor's ciphertext bit for bit.
package tea

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Delta is the key schedule constant, floor(2^32 / phi).
	Delta uint32 = 0x9E3779B9

	// DefaultRounds is the number of cycles used by the tag scheme.
	DefaultRounds uint32 = 32

	// KeySize is the key length in bytes.
	KeySize = 16

	// BlockSize is the block length in bytes.
	BlockSize = 8
)

var (
	// ErrInvalidKeyLength is returned when a key is not exactly 16 bytes.
	ErrInvalidKeyLength = errors.New("tea: invalid key length")
	// ErrInvalidBlockLength is returned when a block is not exactly 8 bytes.
	ErrInvalidBlockLength = errors.New("tea: invalid block length")
)

// Cipher holds an expanded key. It carries no other state and is safe for
// concurrent use.
type Cipher struct {
	order  binary.ByteOrder
	k      [4]uint32
	rounds uint32
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithByteOrder sets the byte order used to load key and block words.
// The default is big-endian.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(c *Cipher) {
		if order != nil {
			c.order = order
		}
	}
}

// WithRounds sets the number of cycles used by Encrypt and Decrypt.
func WithRounds(rounds uint32) Option {
	return func(c *Cipher) {
		c.rounds = rounds
	}
}

// New returns a Cipher for the given 16-byte key.
func New(key []byte, opts ...Option) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyLength, KeySize, len(key))
	}

	c := &Cipher{
		order:  binary.BigEndian,
		rounds: DefaultRounds,
	}
	for _, opt := range opts {
		opt(c)
	}

	for i := range c.k {
		c.k[i] = c.order.Uint32(key[i*4:])
	}

	return c, nil
}

// Rounds returns the configured number of cycles.
func (c *Cipher) Rounds() uint32 {
	return c.rounds
}

// Encrypt encrypts one 8-byte block with the configured number of rounds.
func (c *Cipher) Encrypt(block []byte) ([]byte, error) {
	return c.EncryptRounds(block, c.rounds)
}

// Decrypt decrypts one 8-byte block with the configured number of rounds.
func (c *Cipher) Decrypt(block []byte) ([]byte, error) {
	return c.DecryptRounds(block, c.rounds)
}

// EncryptRounds encrypts one 8-byte block with an explicit round count.
func (c *Cipher) EncryptRounds(block []byte, rounds uint32) ([]byte, error) {
	if len(block) != BlockSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidBlockLength, BlockSize, len(block))
	}

	v0 := c.order.Uint32(block[0:4])
	v1 := c.order.Uint32(block[4:8])
	k0, k1, k2, k3 := c.k[0], c.k[1], c.k[2], c.k[3]

	var sum uint32
	for range rounds {
		sum += Delta
		v0 += ((v1 << 4) + k0) ^ (v1 + sum) ^ ((v1 >> 5) + k1)
		v1 += ((v0 << 4) + k2) ^ (v0 + sum) ^ ((v0 >> 5) + k3)
	}

	out := make([]byte, BlockSize)
	c.order.PutUint32(out[0:4], v0)
	c.order.PutUint32(out[4:8], v1)
	return out, nil
}

// DecryptRounds decrypts one 8-byte block with an explicit round count.
// The round count must match the one used for encryption.
func (c *Cipher) DecryptRounds(block []byte, rounds uint32) ([]byte, error) {
	if len(block) != BlockSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidBlockLength, BlockSize, len(block))
	}

	v0 := c.order.Uint32(block[0:4])
	v1 := c.order.Uint32(block[4:8])
	k0, k1, k2, k3 := c.k[0], c.k[1], c.k[2], c.k[3]

	// Wraps modulo 2^32; for 32 rounds this is 0xC6EF3720.
	sum := Delta * rounds
	for range rounds {
		v1 -= ((v0 << 4) + k2) ^ (v0 + sum) ^ ((v0 >> 5) + k3)
		v0 -= ((v1 << 4) + k0) ^ (v1 + sum) ^ ((v1 >> 5) + k1)
		sum -= Delta
	}

	out := make([]byte, BlockSize)
	c.order.PutUint32(out[0:4], v0)
	c.order.PutUint32(out[4:8], v1)
	return out, nil
}

// Encrypt encrypts block under key with big-endian words.
func Encrypt(key, block []byte, rounds uint32) ([]byte, error) {
	c, err := New(key)
	if err != nil {
		return nil, err
	}
	return c.EncryptRounds(block, rounds)
}

// Decrypt decrypts block under key with big-endian words.
func Decrypt(key, block []byte, rounds uint32) ([]byte, error) {
	c, err := New(key)
	if err != nil {
		return nil, err
	}
	return c.DecryptRounds(block, rounds)
}
