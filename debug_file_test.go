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

//nolint:paralleltest // Tests modify package-level session log state, cannot run in parallel
package toypad

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cleanupSessionLog resets global session log state.
func cleanupSessionLog(t *testing.T) {
	t.Helper()
	if sessionLogFile != nil {
		_ = sessionLogFile.Close()
	}
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLogWriter = nil
}

func TestInitSessionLogIn_CreatesFileWithHeader(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })

	dir := t.TempDir()
	path, err := InitSessionLogIn(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "toypad_"))
	assert.True(t, strings.HasSuffix(path, ".log"))
	assert.Equal(t, path, GetSessionLogPath())

	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // test file in temp dir
	require.NoError(t, err)
	assert.Contains(t, string(content), "=== Toy Pad Debug Session Log ===")
	assert.Contains(t, string(content), "Go Version:")
	assert.Contains(t, string(content), "=== Session ended ===")
}

func TestSessionLog_ReceivesDebugOutput(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })

	origEnabled := debugEnabled
	t.Cleanup(func() { debugEnabled = origEnabled })
	debugEnabled = false

	path, err := InitSessionLogIn(t.TempDir())
	require.NoError(t, err)

	Debugf("probe page 0x%02X", PageDataA)
	require.NoError(t, CloseSessionLog())

	content, err := os.ReadFile(path) //nolint:gosec // test file in temp dir
	require.NoError(t, err)
	assert.Contains(t, string(content), "DEBUG: probe page 0x24")
}

func TestCloseSessionLog_NilFile(t *testing.T) {
	cleanupSessionLog(t)

	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())
}

func TestInitSessionLogIn_ErrorOnInvalidDirectory(t *testing.T) {
	t.Cleanup(func() { cleanupSessionLog(t) })

	_, err := InitSessionLogIn(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create session log")
	assert.Empty(t, GetSessionLogPath())
}
