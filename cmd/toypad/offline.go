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

package main

import (
	"fmt"
	"io"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ZaparooProject/go-toypad/catalog"
)

// Ranges covered when no -id is given.
var offlineRanges = [][2]uint32{
	{1, 799},
	{1000, 1299},
}

func listIDs(out io.Writer, cat *catalog.Catalog) {
	for _, e := range cat.Entries() {
		_, _ = fmt.Fprintf(out, "%5d  %-9s  %s\n", e.ID, e.Category, e.Name)
	}
}

func listNames(out io.Writer, cat *catalog.Catalog) {
	for _, name := range cat.Names() {
		_, _ = fmt.Fprintln(out, name)
	}
}

// runOffline prints the credentials for a UID and the NFC Tools commands
// that write content to it. id 0 means every ID in offlineRanges.
func runOffline(out io.Writer, uidArg string, id uint32) error {
	uid, err := toypad.ParseUID(uidArg)
	if err != nil {
		return err
	}
	pwd := toypad.DerivePassword(uid)

	_, _ = fmt.Fprintf(out, "UID:      %s\n", uid)
	_, _ = fmt.Fprintf(out, "Password: %X\n", pwd.Bytes())
	_, _ = fmt.Fprintf(out, "Key:      %X\n", toypad.DeriveKey(uid).Bytes())
	if !uid.IsGenuineNXP() {
		_, _ = fmt.Fprintf(out, "Warning: manufacturer is %s, not NXP\n", uid.Manufacturer())
	}

	if id != 0 {
		return printNFCToolsLine(out, uid, pwd, id)
	}
	for _, r := range offlineRanges {
		for i := r[0]; i <= r[1]; i++ {
			if err := printNFCToolsLine(out, uid, pwd, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func printNFCToolsLine(out io.Writer, uid toypad.UID, pwd toypad.Password, id uint32) error {
	pages, err := toypad.EncodeForUID(toypad.ContentForID(id), uid)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "NFC Tools command for ID=%d for pages 0x24 and 0x25: 1B:%X,A2:24:%X,A2:25:%X\n",
		id, pwd.Bytes(), pages.DataA[:], pages.DataB[:])
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
