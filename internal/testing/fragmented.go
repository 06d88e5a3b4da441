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

package testing

import (
	"io"
	"math/rand/v2"
)

// FragmentedConnection wraps an io.ReadWriter and hands reads back in
// random small pieces, the way USB serial bridges deliver frames. Writes
// pass through unchanged. Nothing read from the backend is lost.
type FragmentedConnection struct {
	backend  io.ReadWriter
	rng      *rand.Rand
	pending  []byte
	maxChunk int
}

// NewFragmentedConnection returns reads of 1 to maxChunk bytes. A fixed
// seed gives a repeatable split.
func NewFragmentedConnection(backend io.ReadWriter, maxChunk int, seed uint64) *FragmentedConnection {
	if maxChunk < 1 {
		maxChunk = 1
	}
	return &FragmentedConnection{
		backend:  backend,
		maxChunk: maxChunk,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9E3779B9)), //nolint:gosec // test code
	}
}

// Write passes data through.
func (f *FragmentedConnection) Write(data []byte) (int, error) {
	return f.backend.Write(data) //nolint:wrapcheck // pass-through
}

// Read returns at most a random chunk of the buffered backend data.
func (f *FragmentedConnection) Read(buf []byte) (int, error) {
	if len(f.pending) == 0 {
		tmp := make([]byte, 1024)
		n, err := f.backend.Read(tmp)
		if err != nil || n == 0 {
			return 0, err //nolint:wrapcheck // pass-through
		}
		f.pending = append(f.pending, tmp[:n]...)
	}

	n := min(len(buf), len(f.pending), 1+f.rng.IntN(f.maxChunk))
	copy(buf, f.pending[:n])
	f.pending = f.pending[n:]
	return n, nil
}
