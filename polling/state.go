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

package polling

import (
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
)

// CardDetectionState represents the finite state machine for card detection
type CardDetectionState int

const (
	// StateIdle is waiting for a tag.
	StateIdle CardDetectionState = iota
	// StateReading is a session running on a tag.
	StateReading
	// StateWaitingRemoval is a handled tag still on the reader.
	StateWaitingRemoval
)

func (s CardDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateWaitingRemoval:
		return "waiting-removal"
	default:
		return "unknown"
	}
}

// CardState tracks the state of a card on a reader
type CardState struct {
	LastSeenTime   time.Time
	ReadStartTime  time.Time
	LastUID        toypad.UID
	DetectionState CardDetectionState
	Present        bool
}

// TransitionToReading moves to reading state for uid
func (cs *CardState) TransitionToReading(uid toypad.UID) {
	cs.DetectionState = StateReading
	cs.ReadStartTime = time.Now()
	cs.LastSeenTime = cs.ReadStartTime
	cs.LastUID = uid
	cs.Present = true
}

// TransitionToWaitingRemoval records that the read finished and the tag
// is still expected on the reader.
func (cs *CardState) TransitionToWaitingRemoval() {
	cs.DetectionState = StateWaitingRemoval
	cs.LastSeenTime = time.Now()
}

// Seen refreshes the last time the tag answered a presence check.
func (cs *CardState) Seen() {
	cs.LastSeenTime = time.Now()
}

// TransitionToIdle resets to idle state
func (cs *CardState) TransitionToIdle() {
	cs.DetectionState = StateIdle
	cs.Present = false
	cs.LastUID = toypad.UID{}
	cs.LastSeenTime = time.Time{}
	cs.ReadStartTime = time.Time{}
}
