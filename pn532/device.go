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

// Package pn532 drives NTAG21x tags through an NXP PN532 reader chip. A
// Device is a toypad.Connector; the tags it returns are toypad.Tag.
package pn532

import (
	"context"
	"errors"
	"fmt"
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ZaparooProject/go-toypad/internal/syncutil"
)

// PN532 command codes
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

const (
	// samModeNormal disables the SAM; the PN532 talks to cards directly.
	samModeNormal = 0x01
	// brTy106TypeA is ISO/IEC 14443 Type A at 106 kbps.
	brTy106TypeA = 0x00

	// rfCfgMaxRetries is the RFConfiguration item setting
	// MxRtyATR, MxRtyPSL and MxRtyPassiveActivation.
	rfCfgMaxRetries = 0x05
	mxRtyATR        = 0xFF
	mxRtyPSL        = 0x01
	// passiveActivationRetries bounds how long one InListPassiveTarget
	// waits for a card. The power-on value 0xFF waits forever.
	passiveActivationRetries = 0x0A

	// DefaultPollInterval is the delay between empty InListPassiveTarget polls.
	DefaultPollInterval = 250 * time.Millisecond
	// DefaultTimeout is the transport response timeout set by Init.
	DefaultTimeout = time.Second
)

// FirmwareVersion is the GetFirmwareVersion response.
type FirmwareVersion struct {
	IC       byte
	Version  byte
	Revision byte
	Support  byte
}

func (f FirmwareVersion) String() string {
	return fmt.Sprintf("PN5%02X v%d.%d", f.IC, f.Version, f.Revision)
}

// Target is a card found by InListPassiveTarget.
type Target struct {
	UID     []byte
	SensRes [2]byte
	Number  byte
	SelRes  byte
}

// IsType2 reports whether SEL_RES marks an NFC Forum Type 2 tag.
func (t *Target) IsType2() bool {
	return t.SelRes&0x60 == 0x00
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sends command traces to l.
func WithLogger(l toypad.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l
		}
	}
}

// WithPollInterval sets the delay between empty polls in Connect.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// Device is a PN532 on some transport. Commands are serialized.
type Device struct {
	transport    Transport
	log          toypad.Logger
	pollInterval time.Duration
	mu           syncutil.Mutex
	target       byte
}

// New creates a Device. Call Init before Connect.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	d := &Device{
		transport:    transport,
		log:          toypad.DefaultLogger,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Init checks the chip answers, puts it in normal mode and bounds the
// passive activation retries.
func (d *Device) Init(ctx context.Context) error {
	if err := d.transport.SetTimeout(DefaultTimeout); err != nil {
		return fmt.Errorf("failed to set transport timeout: %w", err)
	}

	fw, err := d.FirmwareVersion(ctx)
	if err != nil {
		return err
	}
	d.log.Debugf("pn532: firmware %s, support 0x%02X", fw, fw.Support)

	return d.Configure(ctx)
}

// Configure runs SAMConfiguration and SetPassiveActivationRetries. Both
// settings are lost when the chip powers down.
func (d *Device) Configure(ctx context.Context) error {
	if err := d.SAMConfiguration(ctx); err != nil {
		return err
	}
	return d.SetPassiveActivationRetries(ctx, passiveActivationRetries)
}

// SetPassiveActivationRetries sets how often InListPassiveTarget retries
// activating a card before answering with no target. 0xFF retries forever
// and leaves the chip unresponsive while the field stays empty.
func (d *Device) SetPassiveActivationRetries(ctx context.Context, retries byte) error {
	args := []byte{rfCfgMaxRetries, mxRtyATR, mxRtyPSL, retries}
	if _, err := d.send(ctx, cmdRFConfiguration, args); err != nil {
		return fmt.Errorf("failed to set passive activation retries: %w", err)
	}
	return nil
}

func (d *Device) send(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Debugf("pn532: TX 0x%02X % X", cmd, args)
	res, err := d.transport.SendCommand(ctx, cmd, args)
	if err != nil {
		d.log.Debugf("pn532: command 0x%02X failed: %v", cmd, err)
		return nil, err
	}
	d.log.Debugf("pn532: RX % X", res)

	if len(res) == 0 || res[0] != cmd+1 {
		return nil, fmt.Errorf("%w: command 0x%02X answered with % X", ErrInvalidResponse, cmd, res)
	}
	return res[1:], nil
}

// FirmwareVersion returns the chip's firmware version.
func (d *Device) FirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	res, err := d.send(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("GetFirmwareVersion failed: %w", err)
	}
	if len(res) < 4 {
		return nil, fmt.Errorf("%w: firmware version too short (%d bytes)", ErrInvalidResponse, len(res))
	}

	return &FirmwareVersion{IC: res[0], Version: res[1], Revision: res[2], Support: res[3]}, nil
}

// SAMConfiguration puts the chip in normal mode with a 1 s virtual card
// timeout and IRQ enabled.
func (d *Device) SAMConfiguration(ctx context.Context) error {
	if _, err := d.send(ctx, cmdSAMConfiguration, []byte{samModeNormal, 0x14, 0x01}); err != nil {
		return fmt.Errorf("SAM configuration command failed: %w", err)
	}
	return nil
}

// InListPassiveTarget looks for one Type A card. It returns ErrNoTarget
// when the field is empty.
func (d *Device) InListPassiveTarget(ctx context.Context) (*Target, error) {
	res, err := d.send(ctx, cmdInListPassiveTarget, []byte{0x01, brTy106TypeA})
	if err != nil {
		return nil, fmt.Errorf("InListPassiveTarget failed: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty InListPassiveTarget response", ErrInvalidResponse)
	}
	if res[0] == 0 {
		return nil, ErrNoTarget
	}

	// NbTg Tg SENS_RES(2) SEL_RES NFCIDLength NFCID1...
	if len(res) < 6 {
		return nil, fmt.Errorf("%w: target data too short (%d bytes)", ErrInvalidResponse, len(res))
	}
	uidLen := int(res[5])
	if len(res) < 6+uidLen {
		return nil, fmt.Errorf("%w: UID truncated, want %d bytes", ErrInvalidResponse, uidLen)
	}

	t := &Target{
		Number:  res[1],
		SensRes: [2]byte{res[2], res[3]},
		SelRes:  res[4],
		UID:     append([]byte(nil), res[6:6+uidLen]...),
	}
	d.target = t.Number

	return t, nil
}

// InDataExchange sends data to the selected target and returns its answer.
// A non-zero status is a *PN532Error.
func (d *Device) InDataExchange(ctx context.Context, data []byte) ([]byte, error) {
	args := make([]byte, 0, 1+len(data))
	args = append(args, d.target)
	args = append(args, data...)

	res, err := d.send(ctx, cmdInDataExchange, args)
	if err != nil {
		return nil, fmt.Errorf("InDataExchange failed: %w", err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty InDataExchange response", ErrInvalidResponse)
	}

	// Bits 6 and 7 are the MI and NAD flags.
	if status := res[0] & 0x3F; status != 0 {
		return nil, &PN532Error{Command: "InDataExchange", ErrorCode: status}
	}
	return res[1:], nil
}

// InRelease releases every target.
func (d *Device) InRelease(ctx context.Context) error {
	res, err := d.send(ctx, cmdInRelease, []byte{0x00})
	if err != nil {
		return fmt.Errorf("InRelease failed: %w", err)
	}
	if len(res) > 0 && res[0]&0x3F != 0 {
		return &PN532Error{Command: "InRelease", ErrorCode: res[0] & 0x3F}
	}
	d.target = 0
	return nil
}

// Connect polls until an NTAG21x with a 7-byte UID is in the field or ctx
// ends. Other cards are released and reported as ErrUnsupportedTarget.
func (d *Device) Connect(ctx context.Context) (toypad.Tag, error) {
	for {
		target, err := d.InListPassiveTarget(ctx)
		switch {
		case err == nil:
			if len(target.UID) != toypad.UIDLength || !target.IsType2() {
				_ = d.InRelease(ctx)
				return nil, fmt.Errorf("%w: UID % X, SEL_RES 0x%02X",
					ErrUnsupportedTarget, target.UID, target.SelRes)
			}
			d.log.Debugf("pn532: target %d UID % X", target.Number, target.UID)
			return &Tag{device: d, target: target}, nil
		case !errors.Is(err, ErrNoTarget):
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// Close closes the transport.
func (d *Device) Close() error {
	if err := d.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

var _ toypad.Connector = (*Device)(nil)
