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
	"context"
	"errors"
	"fmt"
)

// NTAG213 configuration pages, touched only when provisioning protection
const (
	PageCfg0 = 0x29 // MIRROR, RFUI, MIRROR_PAGE, AUTH0
	PageCfg1 = 0x2A // ACCESS, RFUI, RFUI, RFUI

	cfg0Auth0Offset = 3
	cfg1AccessProt  = 0x80
)

// SessionState is a step of the tag session protocol.
type SessionState int

const (
	// StateStart is a session that has not touched the tag yet.
	StateStart SessionState = iota
	// StateProbing is the unauthenticated read of PageDataA.
	StateProbing
	// StateAuthenticationRequired means the probe was refused.
	StateAuthenticationRequired
	// StateAuthenticated means PWD_AUTH succeeded.
	StateAuthenticated
	// StateAuthenticationFailed is terminal; no page is accessed after it.
	StateAuthenticationFailed
	// StateContentRead means the identifying pages were read and decoded.
	StateContentRead
	// StateContentWritten means a write sequence completed.
	StateContentWritten
	// StateClosed is terminal; the tag has been released.
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateProbing:
		return "probing"
	case StateAuthenticationRequired:
		return "authentication-required"
	case StateAuthenticated:
		return "authenticated"
	case StateAuthenticationFailed:
		return "authentication-failed"
	case StateContentRead:
		return "content-read"
	case StateContentWritten:
		return "content-written"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// ReadResult is what a session observed on the tag.
type ReadResult struct {
	// Err is a non-fatal decode problem, an *IntegrityError for blank or
	// foreign character pages.
	Err       error
	Content   Content
	Pages     Pages
	UID       UID
	Protected bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sends the session's diagnostics to l instead of Debugf.
func WithLogger(l Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithProvisionProtection makes writes to an unprotected tag also set
// AUTH0 to PageDataA and the PROT bit, so the tag refuses unauthenticated
// reads from then on like a factory tag. Without it only PWD and PACK are
// written and the tag stays open.
func WithProvisionProtection() SessionOption {
	return func(s *Session) {
		s.provisionProtection = true
	}
}

// Session runs the probe, authenticate, read and write protocol against
// one tag. It is not safe for concurrent use; exactly one session may
// drive a tag at a time.
type Session struct {
	tag                 Tag
	log                 Logger
	result              *ReadResult
	uid                 UID
	key                 Key
	password            Password
	state               SessionState
	protected           bool
	provisionProtection bool
}

// NewSession prepares a session for tag. The password and key are derived
// here from the tag's UID and never leave the session.
func NewSession(tag Tag, opts ...SessionOption) (*Session, error) {
	if tag == nil {
		return nil, errors.New("tag cannot be nil")
	}

	uid, err := NewUID(tag.UIDBytes())
	if err != nil {
		return nil, err
	}

	s := &Session{
		tag:      tag,
		log:      DefaultLogger,
		uid:      uid,
		password: DerivePassword(uid),
		key:      DeriveKey(uid),
		state:    StateStart,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// UID returns the tag's serial number.
func (s *Session) UID() UID {
	return s.uid
}

// State returns the current protocol state.
func (s *Session) State() SessionState {
	return s.state
}

// Protected reports whether the probe was refused, meaning the tag is
// password protected and its type page cannot be changed.
func (s *Session) Protected() bool {
	return s.protected
}

// Content returns the content last read or written, if any.
func (s *Session) Content() (Content, bool) {
	if s.result == nil {
		return Content{}, false
	}
	return s.result.Content, true
}

// Open probes the tag, authenticates if the probe is refused, and reads
// the identifying pages.
//
// Transport failures close the session. Authentication failure leaves the
// session in StateAuthenticationFailed without touching any page. A decode
// integrity problem is not an error here; it is reported in ReadResult.Err.
func (s *Session) Open(ctx context.Context) (*ReadResult, error) {
	if s.state != StateStart {
		return nil, &StateError{Op: "open", State: s.state}
	}

	s.log.Debugf("session %s: %s chip", s.uid, s.uid.Manufacturer())

	needsAuth, err := s.probe(ctx)
	if err != nil {
		return nil, err
	}

	if needsAuth {
		if err := s.authenticate(ctx); err != nil {
			return nil, err
		}
	}

	return s.readContent(ctx)
}

func (s *Session) probe(ctx context.Context) (bool, error) {
	s.state = StateProbing

	_, err := s.tag.ReadPage(ctx, PageDataA)
	switch {
	case err == nil:
		s.log.Debugf("session %s: page 0x%02X readable, no authentication needed", s.uid, PageDataA)
		return false, nil
	case IsAccessDenied(err):
		s.log.Debugf("session %s: page 0x%02X denied, tag is password protected", s.uid, PageDataA)
		s.state = StateAuthenticationRequired
		s.protected = true
		return true, nil
	default:
		return false, s.abort(fmt.Errorf("%w: probe page 0x%02X: %w", ErrTransport, PageDataA, err))
	}
}

func (s *Session) authenticate(ctx context.Context) error {
	cred := Credential(s.uid)
	s.log.Debugf("session %s: PWD_AUTH with password % X", s.uid, s.password[:])

	ok, err := s.tag.Authenticate(ctx, cred)
	if err != nil {
		s.state = StateAuthenticationFailed
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if !ok {
		s.state = StateAuthenticationFailed
		return fmt.Errorf("%w: tag rejected derived password for %s", ErrAuthenticationFailed, s.uid)
	}

	s.state = StateAuthenticated
	s.log.Debugf("session %s: authenticated", s.uid)
	return nil
}

func (s *Session) readContent(ctx context.Context) (*ReadResult, error) {
	var pages Pages
	for i, dst := range []*[PageSize]byte{&pages.DataA, &pages.DataB, &pages.Type, &pages.Reserved} {
		page := uint8(PageDataA + i)
		data, err := s.tag.ReadPage(ctx, page)
		if err != nil {
			return nil, s.abort(fmt.Errorf("%w: read page 0x%02X: %w", ErrTransport, page, err))
		}
		if len(data) < PageSize {
			return nil, s.abort(fmt.Errorf("%w: read page 0x%02X: short response (%d bytes)",
				ErrTransport, page, len(data)))
		}
		copy(dst[:], data[:PageSize])
	}

	content, decodeErr := Decode(pages, s.key)
	s.result = &ReadResult{
		UID:       s.uid,
		Protected: s.protected,
		Pages:     pages,
		Content:   content,
		Err:       decodeErr,
	}
	s.state = StateContentRead

	if decodeErr != nil {
		s.log.Debugf("session %s: pages %s decode as suspect %s: %v", s.uid, pages, content, decodeErr)
	} else {
		s.log.Debugf("session %s: pages %s decode as %s", s.uid, pages, content)
	}

	return s.result, nil
}

type pageWrite struct {
	data [PageSize]byte
	page uint8
}

// Write replaces the tag's content with target.
//
// On a protected tag the category cannot change and the call fails with
// ErrCategoryChangeRefused before any page is written. On an open tag the
// type page is written first when the category changes. The identifying
// pages follow, then PWD and PACK. The first failed write ends the
// sequence and the session with a *WriteError; nothing is retried.
func (s *Session) Write(ctx context.Context, target Content) error {
	if s.state != StateContentRead && s.state != StateContentWritten {
		return &StateError{Op: "write", State: s.state}
	}

	pages, err := Encode(target, s.key)
	if err != nil {
		return err
	}

	observed := s.result.Content.Kind
	if s.protected && target.Kind != observed {
		return fmt.Errorf("%w: %s holds %s content, requested %s",
			ErrCategoryChangeRefused, s.uid, observed, target.Kind)
	}

	plan := make([]pageWrite, 0, 7)
	if target.Kind != observed {
		plan = append(plan, pageWrite{page: PageType, data: pages.Type})
	}
	plan = append(plan,
		pageWrite{page: PageDataA, data: pages.DataA},
		pageWrite{page: PageDataB, data: pages.DataB},
		pageWrite{page: PagePassword, data: s.password},
		pageWrite{page: PagePack, data: [PageSize]byte{PasswordAck[0], PasswordAck[1], 0x00, 0x00}},
	)

	provisioning := s.provisionProtection && !s.protected
	if provisioning {
		protect, err := s.protectionPlan(ctx)
		if err != nil {
			return err
		}
		plan = append(plan, protect...)
	}

	s.log.Debugf("session %s: writing %s (%d pages)", s.uid, target, len(plan))

	written := make([]uint8, 0, len(plan))
	for _, w := range plan {
		s.log.Debugf("session %s: write page 0x%02X: % X", s.uid, w.page, w.data[:])
		if err := s.tag.WritePage(ctx, w.page, w.data[:]); err != nil {
			return s.abort(&WriteError{Page: w.page, Written: written, Err: err})
		}
		written = append(written, w.page)
	}

	if provisioning {
		s.markProvisioned(ctx)
	}

	s.result.Content = target
	s.result.Err = nil
	s.result.Pages.DataA = pages.DataA
	s.result.Pages.DataB = pages.DataB
	s.result.Pages.Type = pages.Type
	s.state = StateContentWritten

	return nil
}

// protectionPlan reads CFG0 and CFG1 and returns the writes that set
// AUTH0 to PageDataA and the PROT bit. The remaining bytes are kept.
func (s *Session) protectionPlan(ctx context.Context) ([]pageWrite, error) {
	cfg0, err := s.tag.ReadPage(ctx, PageCfg0)
	if err != nil {
		return nil, s.abort(fmt.Errorf("%w: read page 0x%02X: %w", ErrTransport, PageCfg0, err))
	}
	cfg1, err := s.tag.ReadPage(ctx, PageCfg1)
	if err != nil {
		return nil, s.abort(fmt.Errorf("%w: read page 0x%02X: %w", ErrTransport, PageCfg1, err))
	}
	if len(cfg0) < PageSize || len(cfg1) < PageSize {
		return nil, s.abort(fmt.Errorf("%w: short configuration page", ErrTransport))
	}

	var w0, w1 pageWrite
	w0.page, w1.page = PageCfg0, PageCfg1
	copy(w0.data[:], cfg0[:PageSize])
	copy(w1.data[:], cfg1[:PageSize])
	w0.data[cfg0Auth0Offset] = PageDataA
	w1.data[0] |= cfg1AccessProt

	// AUTH0 last: once it is set, CFG1 itself is protected.
	return []pageWrite{w1, w0}, nil
}

// markProvisioned records that AUTH0 now covers the content pages, so a
// later Write in this session keeps the category, and authenticates so the
// tag still accepts those writes.
func (s *Session) markProvisioned(ctx context.Context) {
	s.protected = true
	s.result.Protected = true

	ok, err := s.tag.Authenticate(ctx, Credential(s.uid))
	if err != nil || !ok {
		s.log.Debugf("session %s: authentication after provisioning failed (ok=%t): %v", s.uid, ok, err)
	}
}

// abort releases the tag after a fatal error and returns err.
func (s *Session) abort(err error) error {
	s.log.Debugf("session %s: aborting in state %s: %v", s.uid, s.state, err)
	if closeErr := s.Close(); closeErr != nil {
		s.log.Debugf("session %s: close after abort: %v", s.uid, closeErr)
	}
	return err
}

// Close releases the tag. It is safe to call more than once.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	if err := s.tag.Close(); err != nil {
		return fmt.Errorf("failed to close tag: %w", err)
	}
	return nil
}
