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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	toypad "github.com/ZaparooProject/go-toypad"
	"github.com/ZaparooProject/go-toypad/catalog"
	"github.com/ZaparooProject/go-toypad/internal/config"
	virt "github.com/ZaparooProject/go-toypad/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), opts.cfg)
	assert.Empty(t, opts.write)
	assert.False(t, opts.yes)
}

func TestParseFlags_FlagsOverrideConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "toypad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: pcsc\nreader: ACR122U\ntimeout: 10s\n"), 0o600))

	opts, err := parseFlags([]string{"-config", path, "-reader", "1", "-protect"})
	require.NoError(t, err)
	assert.Equal(t, config.TransportPCSC, opts.cfg.Transport)
	assert.Equal(t, "1", opts.cfg.Reader)
	assert.Equal(t, 10*time.Second, opts.cfg.Timeout)
	assert.True(t, opts.cfg.ProvisionProtection)
}

func TestParseFlags_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown transport", args: []string{"-transport", "usb"}},
		{name: "reader without pcsc", args: []string{"-reader", "0"}},
		{name: "spi without device", args: []string{"-transport", "spi"}},
		{name: "id without uid", args: []string{"-id", "3"}},
		{name: "id above 32 bits", args: []string{"-uid", "0413BB1A994080", "-id", "4294968296"}},
		{name: "missing config file", args: []string{"-config", "/nonexistent/toypad.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseFlags(tt.args)
			require.Error(t, err)
		})
	}
}

func TestRunOffline_SingleID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
		id   uint32
	}{
		{
			name: "character",
			id:   3,
			want: "NFC Tools command for ID=3 for pages 0x24 and 0x25: 1B:4BEF3621,A2:24:0139ED60,A2:25:E4BE307C",
		},
		{
			name: "vehicle",
			id:   1000,
			want: "NFC Tools command for ID=1000 for pages 0x24 and 0x25: 1B:4BEF3621,A2:24:E8030000,A2:25:00000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			require.NoError(t, runOffline(&out, "04 13 BB 1A 99 40 80", tt.id))

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			require.Len(t, lines, 4)
			assert.Equal(t, "UID:      04:13:BB:1A:99:40:80", lines[0])
			assert.Equal(t, "Password: 4BEF3621", lines[1])
			assert.Equal(t, "Key:      33EF82233A56082F78F06C7C246C3710", lines[2])
			assert.Equal(t, tt.want, lines[3])
		})
	}
}

func TestRunOffline_AllIDs(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, runOffline(&out, "0413BB1A994080", 0))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3+799+300)
	assert.Contains(t, lines[3], "ID=1 ")
	assert.Contains(t, lines[3+798], "ID=799 ")
	assert.Contains(t, lines[3+799], "ID=1000 ")
	assert.Contains(t, lines[len(lines)-1], "ID=1299 ")
}

func TestRunOffline_BadUID(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := runOffline(&out, "0413BB", 0)
	require.ErrorIs(t, err, toypad.ErrInvalidIdentifierLength)
	assert.Empty(t, out.String())
}

func TestRun_ListModes(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	opts := &options{cfg: config.Default(), listIDs: true}
	require.NoError(t, run(context.Background(), opts, nil, &out))
	assert.Contains(t, out.String(), "Wyldstyle")
	assert.Contains(t, out.String(), " 1000  vehicle")

	out.Reset()
	opts = &options{cfg: config.Default(), listNames: true}
	require.NoError(t, run(context.Background(), opts, nil, &out))
	assert.Equal(t, strings.Join(catalog.Default().Names(), "\n")+"\n", out.String())
}

func TestResolveTarget(t *testing.T) {
	t.Parallel()

	cat := catalog.Default()
	tests := []struct {
		name    string
		query   string
		want    toypad.Content
		wantErr bool
	}{
		{name: "name", query: "gandalf", want: toypad.Character(2)},
		{name: "catalog ID", query: "1000", want: toypad.Vehicle(1000)},
		{name: "unlisted character ID", query: "500", want: toypad.Character(500)},
		{name: "unlisted vehicle ID", query: "1200", want: toypad.Vehicle(1200)},
		{name: "zero", query: "0", wantErr: true},
		{name: "unknown name", query: "Nobody", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := resolveTarget(cat, tt.query)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Content())
		})
	}
}

func TestNewConfirmer(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	ok, err := newConfirmer(strings.NewReader(""), &out, true)("Write?")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = newConfirmer(strings.NewReader("y\n"), &out, false)("Write?")
	require.ErrorIs(t, err, errNotInteractive)
}

func TestPromptConfirmer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "y\n", want: true},
		{input: " YES \n", want: true},
		{input: "n\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			ok, err := promptConfirmer(strings.NewReader(tt.input), &out)("Write Batman?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, "Write Batman? [y/N]: ", out.String())
		})
	}
}

func TestPrintResult(t *testing.T) {
	t.Parallel()

	uid, err := toypad.ParseUID("04:13:BB:1A:99:40:80")
	require.NoError(t, err)

	var out bytes.Buffer
	printResult(&out, catalog.Default(), &toypad.ReadResult{
		UID:       uid,
		Content:   toypad.Character(3),
		Protected: true,
	})
	assert.Equal(t, "UID: 04:13:BB:1A:99:40:80\nContent: character 3 (Wyldstyle)\nProtected: true\n", out.String())

	out.Reset()
	printResult(&out, catalog.Default(), &toypad.ReadResult{
		UID:   uid,
		Pages: toypad.Pages{Type: [4]byte{0x00, 0x02, 0x00, 0x00}},
	})
	assert.Contains(t, out.String(), "Content: unknown (type page 00 02 00 00)")
}

func newTestWriter(t *testing.T, vt *virt.VirtualNTAG213, query string, confirm confirmFunc) (*writer, *bytes.Buffer) {
	t.Helper()

	reader, err := toypad.NewReader(toypad.ConnectorFunc(func(context.Context) (toypad.Tag, error) {
		return vt, nil
	}))
	require.NoError(t, err)

	cat := catalog.Default()
	target, err := resolveTarget(cat, query)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &writer{
		reader:  reader,
		catalog: cat,
		confirm: confirm,
		out:     out,
		target:  target,
		timeout: 5 * time.Second,
	}, out
}

func yes(string) (bool, error) { return true, nil }

func TestWriter_Writes(t *testing.T) {
	t.Parallel()

	vt, err := virt.NewToyTag(nil, toypad.Character(3))
	require.NoError(t, err)
	w, out := newTestWriter(t, vt, "Gandalf", yes)

	require.NoError(t, w.run(context.Background()))
	assert.Contains(t, out.String(), "Content: character 3 (Wyldstyle)")
	assert.Contains(t, out.String(), "Wrote character 2 (Gandalf)")

	uid, err := toypad.NewUID(virt.TestUID)
	require.NoError(t, err)
	pages := toypad.Pages{DataA: vt.Page(toypad.PageDataA), DataB: vt.Page(toypad.PageDataB), Type: vt.Page(toypad.PageType)}
	got, err := toypad.DecodeForUID(pages, uid)
	require.NoError(t, err)
	assert.Equal(t, toypad.Character(2), got)
}

func TestWriter_Declined(t *testing.T) {
	t.Parallel()

	vt, err := virt.NewToyTag(nil, toypad.Character(3))
	require.NoError(t, err)
	w, _ := newTestWriter(t, vt, "Gandalf", func(string) (bool, error) { return false, nil })

	require.ErrorIs(t, w.run(context.Background()), errWriteCanceled)
	assert.Empty(t, vt.Reads())
	assert.Empty(t, vt.Writes())
}

func TestWriter_CategoryChangeRefused(t *testing.T) {
	t.Parallel()

	vt, err := virt.NewToyTag(nil, toypad.Character(3))
	require.NoError(t, err)
	w, _ := newTestWriter(t, vt, "1000", yes)

	err = w.run(context.Background())
	require.ErrorIs(t, err, toypad.ErrCategoryChangeRefused)
	assert.Empty(t, vt.Writes())
}
