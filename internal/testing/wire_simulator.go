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
	"bytes"
	"errors"

	"github.com/ZaparooProject/go-toypad/internal/frame"
	"github.com/ZaparooProject/go-toypad/internal/syncutil"
)

// PN532 command codes answered by the simulator
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSAMConfiguration    = 0x14
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInListPassiveTarget = 0x4A
	cmdInRelease           = 0x52
)

// rfCfgMaxRetries is the RFConfiguration item holding the retry counts.
const rfCfgMaxRetries = 0x05

// PN532 status codes
const (
	statusOK       = 0x00
	statusTimeout  = 0x01
	statusAuthFail = 0x14
)

// NTAG213 anticollision answers
var (
	ntagSensRes = [2]byte{0x00, 0x44}
	ntagSelRes  = byte(0x00)
)

// VirtualPN532 simulates a PN532 at the frame level. It implements
// io.ReadWriter: frames written to it are acknowledged and answered into
// a buffer the host reads back, as on a UART.
//
// NTAG commands inside InDataExchange go to the VirtualNTAG213 in the
// field. A tag NAK is reported with status 0x14, a silent tag with 0x01.
type VirtualPN532 struct {
	tag                 *VirtualNTAG213
	lastResponse        []byte
	commands            []byte
	rxBuffer            bytes.Buffer
	txBuffer            bytes.Buffer
	mu                  syncutil.Mutex
	firmware            [4]byte
	selected            byte
	passiveRetries      byte
	samConfigured       bool
	injectChecksumError bool
	dropNextACK         bool
}

// NewVirtualPN532 returns a simulator reporting firmware PN532 v1.6 with
// an empty field.
func NewVirtualPN532() *VirtualPN532 {
	return &VirtualPN532{
		firmware:       [4]byte{0x32, 0x01, 0x06, 0x07},
		passiveRetries: 0xFF,
	}
}

// Write receives bytes from the host and answers every complete frame.
func (v *VirtualPN532) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Write(data)
	v.process()

	return len(data), nil
}

// Read returns pending response bytes. It returns 0, nil when nothing is
// pending, like a serial port whose read timed out.
func (v *VirtualPN532) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.txBuffer.Len() == 0 {
		return 0, nil
	}
	n, _ := v.txBuffer.Read(buf)
	return n, nil
}

// SetTag places tag in the field, replacing any other.
func (v *VirtualPN532) SetTag(tag *VirtualNTAG213) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tag = tag
	v.selected = 0
}

// RemoveTag empties the field.
func (v *VirtualPN532) RemoveTag() {
	v.SetTag(nil)
}

// SetFirmwareVersion sets the GetFirmwareVersion answer.
func (v *VirtualPN532) SetFirmwareVersion(ic, ver, rev, support byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmware = [4]byte{ic, ver, rev, support}
}

// InjectChecksumError corrupts the DCS of the next response. A NACK from
// the host gets the intact frame.
func (v *VirtualPN532) InjectChecksumError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.injectChecksumError = true
}

// DropNextACK suppresses the ACK for the next command. The response is
// still sent.
func (v *VirtualPN532) DropNextACK() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNextACK = true
}

// HasPendingResponse reports whether bytes are waiting to be read. The
// I2C and SPI mocks use it for the ready status.
func (v *VirtualPN532) HasPendingResponse() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBuffer.Len() > 0
}

// SAMConfigured reports whether SAMConfiguration was received.
func (v *VirtualPN532) SAMConfigured() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.samConfigured
}

// PassiveActivationRetries returns MxRtyPassiveActivation as last set by
// RFConfiguration. 0xFF, the power-on value, retries forever.
func (v *VirtualPN532) PassiveActivationRetries() byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.passiveRetries
}

// Commands returns the command codes received, in order.
func (v *VirtualPN532) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte(nil), v.commands...)
}

// Reset clears buffers and the selection.
func (v *VirtualPN532) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.rxBuffer.Reset()
	v.txBuffer.Reset()
	v.lastResponse = nil
	v.commands = nil
	v.selected = 0
	v.passiveRetries = 0xFF
	v.samConfigured = false
	v.injectChecksumError = false
	v.dropNextACK = false
}

func (v *VirtualPN532) process() {
	for v.rxBuffer.Len() > 0 {
		buf := v.rxBuffer.Bytes()

		if frame.IsNack(buf) {
			v.rxBuffer.Next(bytes.Index(buf, frame.NackFrame[1:]) + len(frame.NackFrame) - 1)
			if v.lastResponse != nil {
				v.txBuffer.Write(v.lastResponse)
			}
			continue
		}

		data, n, err := frame.Parse(buf, frame.HostToPn532)
		switch {
		case errors.Is(err, frame.ErrIncomplete):
			return
		case errors.Is(err, frame.ErrNoStartCode):
			v.rxBuffer.Reset()
			return
		case errors.Is(err, frame.ErrUnexpectedTFI):
			v.rxBuffer.Next(n)
			v.txBuffer.Write(frame.AckFrame)
			v.txBuffer.Write(frame.ErrorFrame)
			continue
		case err != nil:
			// ACK from the host, or a corrupt frame the chip ignores
			if n == 0 {
				n = 1
			}
			v.rxBuffer.Next(n)
			continue
		}

		v.rxBuffer.Next(n)
		v.handle(data[0], data[1:])
	}
}

func (v *VirtualPN532) handle(cmd byte, args []byte) {
	v.commands = append(v.commands, cmd)

	if v.dropNextACK {
		v.dropNextACK = false
	} else {
		v.txBuffer.Write(frame.AckFrame)
	}

	res := v.execute(cmd, args)
	if res == nil {
		v.lastResponse = frame.ErrorFrame
		v.txBuffer.Write(frame.ErrorFrame)
		return
	}

	out := frame.BuildResponse(res)
	v.lastResponse = out

	if v.injectChecksumError {
		v.injectChecksumError = false
		bad := append([]byte(nil), out...)
		bad[len(bad)-2] ^= 0xFF
		v.txBuffer.Write(bad)
		return
	}
	v.txBuffer.Write(out)
}

// execute returns the response payload starting with the response code,
// or nil for a command the simulator does not know.
func (v *VirtualPN532) execute(cmd byte, args []byte) []byte {
	switch cmd {
	case cmdGetFirmwareVersion:
		return append([]byte{cmd + 1}, v.firmware[:]...)
	case cmdSAMConfiguration:
		v.samConfigured = true
		return []byte{cmd + 1}
	case cmdRFConfiguration:
		return v.rfConfiguration(args)
	case cmdInListPassiveTarget:
		return v.inListPassiveTarget(args)
	case cmdInDataExchange:
		return v.inDataExchange(args)
	case cmdInRelease:
		v.selected = 0
		return []byte{cmd + 1, statusOK}
	default:
		return nil
	}
}

func (v *VirtualPN532) rfConfiguration(args []byte) []byte {
	if len(args) == 0 {
		return nil
	}
	if args[0] == rfCfgMaxRetries {
		if len(args) != 4 {
			return nil
		}
		v.passiveRetries = args[3]
	}
	return []byte{cmdRFConfiguration + 1}
}

// inListPassiveTarget answers MaxTg BrTy [InitiatorData]. For 106 kbps
// Type A the InitiatorData is the UID of the card to select, so a tag
// with another UID is not found.
func (v *VirtualPN532) inListPassiveTarget(args []byte) []byte {
	if len(args) < 2 || v.tag == nil {
		return []byte{cmdInListPassiveTarget + 1, 0x00}
	}
	if len(args) > 2 && !bytes.Equal(args[2:], v.tag.UID()) {
		return []byte{cmdInListPassiveTarget + 1, 0x00}
	}

	v.tag.Select()
	v.selected = 1

	uid := v.tag.UID()
	res := []byte{cmdInListPassiveTarget + 1, 0x01, v.selected, ntagSensRes[0], ntagSensRes[1], ntagSelRes, byte(len(uid))}
	return append(res, uid...)
}

func (v *VirtualPN532) inDataExchange(args []byte) []byte {
	if len(args) < 2 || v.tag == nil || v.selected == 0 || args[0] != v.selected {
		return []byte{cmdInDataExchange + 1, statusTimeout}
	}

	res, err := v.tag.Transceive(args[1:])
	switch {
	case errors.Is(err, ErrNAK):
		return []byte{cmdInDataExchange + 1, statusAuthFail}
	case err != nil:
		return []byte{cmdInDataExchange + 1, statusTimeout}
	}

	return append([]byte{cmdInDataExchange + 1, statusOK}, res...)
}
