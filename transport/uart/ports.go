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

package uart

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ErrNoPorts is returned by DefaultPort when no serial port exists.
var ErrNoPorts = errors.New("no serial ports found")

// PortInfo describes a serial port.
type PortInfo struct {
	Name    string
	VID     string
	PID     string
	Serial  string
	Product string
	IsUSB   bool
}

// usbSerialBridges are VID:PID pairs of the USB-serial chips PN532 boards
// ship with.
var usbSerialBridges = map[string]string{
	"1A86:7523": "CH340",
	"0403:6001": "FT232R",
	"10C4:EA60": "CP210x",
	"067B:2303": "PL2303",
}

// Bridge names the USB-serial chip, or returns "".
func (p PortInfo) Bridge() string {
	return usbSerialBridges[strings.ToUpper(p.VID+":"+p.PID)]
}

func (p PortInfo) String() string {
	if !p.IsUSB {
		return p.Name
	}
	desc := fmt.Sprintf("%s (USB %s:%s", p.Name, p.VID, p.PID)
	if b := p.Bridge(); b != "" {
		desc += " " + b
	}
	if p.Product != "" {
		desc += ", " + p.Product
	}
	return desc + ")"
}

// ListPorts returns the serial ports on this machine, known USB bridges
// first.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		names, listErr := serial.GetPortsList()
		if listErr != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", listErr)
		}
		ports := make([]PortInfo, 0, len(names))
		for _, name := range names {
			ports = append(ports, PortInfo{Name: name})
		}
		return sortPorts(ports), nil
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return sortPorts(ports), nil
}

func sortPorts(ports []PortInfo) []PortInfo {
	rank := func(p PortInfo) int {
		switch {
		case p.Bridge() != "":
			return 0
		case p.IsUSB:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(ports, func(i, j int) bool {
		ri, rj := rank(ports[i]), rank(ports[j])
		if ri != rj {
			return ri < rj
		}
		return ports[i].Name < ports[j].Name
	})
	return ports
}

// DefaultPort picks the most likely PN532 port.
func DefaultPort() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", ErrNoPorts
	}
	return ports[0].Name, nil
}
