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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ZaparooProject/go-toypad/catalog"
	"golang.org/x/term"
)

var (
	errWriteCanceled  = errors.New("write canceled")
	errNotInteractive = errors.New("stdin is not a terminal; pass -yes to write without confirmation")
)

// confirmFunc asks whether to go ahead with prompt.
type confirmFunc func(prompt string) (bool, error)

// newConfirmer returns a confirmFunc reading y/N answers from in. Without
// a terminal on in, every write is refused unless yes is set.
func newConfirmer(in io.Reader, out io.Writer, yes bool) confirmFunc {
	if yes {
		return func(string) (bool, error) { return true, nil }
	}
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return func(string) (bool, error) { return false, errNotInteractive }
	}
	return promptConfirmer(in, out)
}

func promptConfirmer(in io.Reader, out io.Writer) confirmFunc {
	scanner := bufio.NewScanner(in)
	return func(prompt string) (bool, error) {
		_, _ = fmt.Fprintf(out, "%s [y/N]: ", prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return false, fmt.Errorf("failed to read answer: %w", err)
			}
			return false, nil
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// resolveTarget finds query in the catalog. A decimal ID missing from the
// catalog is still accepted, its category picked from the ID range.
func resolveTarget(cat *catalog.Catalog, query string) (catalog.Entry, error) {
	if e, ok := cat.Lookup(query); ok {
		return e, nil
	}

	id, err := strconv.ParseUint(strings.TrimSpace(query), 10, 32)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("unknown ID or name %q (see -list-names)", query)
	}
	content := toypad.ContentForID(uint32(id))
	if err := content.Validate(); err != nil {
		return catalog.Entry{}, err
	}

	category := catalog.CategoryCharacter
	if content.Kind == toypad.KindVehicle {
		category = catalog.CategoryVehicle
	}
	return catalog.Entry{ID: uint32(id), Category: category}, nil
}

func describe(cat *catalog.Catalog, content toypad.Content) string {
	if name := cat.Name(content); name != "" {
		return fmt.Sprintf("%s (%s)", content, name)
	}
	return content.String()
}

func printResult(out io.Writer, cat *catalog.Catalog, result *toypad.ReadResult) {
	_, _ = fmt.Fprintf(out, "UID: %s\n", result.UID)
	if result.Content.Kind == toypad.KindUnknown {
		_, _ = fmt.Fprintf(out, "Content: unknown (type page % X)\n", result.Pages.Type[:])
	} else {
		_, _ = fmt.Fprintf(out, "Content: %s\n", describe(cat, result.Content))
	}
	_, _ = fmt.Fprintf(out, "Protected: %t\n", result.Protected)
	if !result.UID.IsGenuineNXP() {
		_, _ = fmt.Fprintf(out, "Warning: manufacturer is %s, not NXP\n", result.UID.Manufacturer())
	}
	if result.Err != nil {
		_, _ = fmt.Fprintf(out, "Warning: %v\n", result.Err)
	}
}

// writer writes one target to the next tag presented.
type writer struct {
	reader  *toypad.Reader
	catalog *catalog.Catalog
	confirm confirmFunc
	out     io.Writer
	target  catalog.Entry
	timeout time.Duration
}

func (w *writer) run(ctx context.Context) error {
	content := w.target.Content()

	ok, err := w.confirm(fmt.Sprintf("Write %s to the next tag?", describe(w.catalog, content)))
	if err != nil {
		return err
	}
	if !ok {
		return errWriteCanceled
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	_, _ = fmt.Fprintf(w.out, "Place a tag on the reader (waiting %s)...\n", w.timeout)
	return w.reader.Session(ctx, func(s *toypad.Session, result *toypad.ReadResult) error {
		printResult(w.out, w.catalog, result)
		if err := s.Write(ctx, content); err != nil {
			return fmt.Errorf("write failed: %w", err)
		}
		_, _ = fmt.Fprintf(w.out, "Wrote %s\n", describe(w.catalog, content))
		return nil
	})
}
