// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCurrentApp(t *testing.T) {
	device := &scriptedDevice{replies: [][]byte{appReply("Ledgstr", "1.2.3")}}

	app, err := GetCurrentApp(&Session{device: device})
	require.NoError(t, err)
	assert.Equal(t, "Ledgstr", app.Name)
	assert.Equal(t, "1.2.3", app.Version)
	assert.Equal(t, []int{1, 2, 3}, []int{app.VersionMajor, app.VersionMinor, app.VersionPatch})
	assert.Equal(t, []byte{0}, app.Flags)
	assert.Equal(t, []byte{0xb0, 0x01, 0x00, 0x00, 0x00}, device.sent[0])
}

func TestGetCurrentApp_RejectsUnknownFormat(t *testing.T) {
	for _, format := range []byte{0, 2, 0xff} {
		reply := appReply("Ledgstr", "1.0.0")
		reply[0] = format

		_, err := GetCurrentApp(&Session{device: &scriptedDevice{replies: [][]byte{reply}}})
		require.ErrorIs(t, err, ErrInvalidAppFormat)
	}
}

func TestParseAppDescriptor_Truncated(t *testing.T) {
	full := appReply("Ledgstr", "1.0.0")
	full = full[:len(full)-2]

	for i := 0; i < len(full); i++ {
		_, err := parseAppDescriptor(full[:i])
		require.ErrorIs(t, err, ErrInvalidAppFormat, "length %d", i)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		version             string
		major, minor, patch int
	}{
		{"1.0.0", 1, 0, 0},
		{"0.9.12", 0, 9, 12},
		{"10.2", 10, 2, 0},
		{"123", 1, 2, 3},
		{"2", 2, 0, 0},
		{"1.0.0-rc1", 1, 0, 0},
		{"", 0, 0, 0},
		{"beta", 0, 0, 0},
	}

	for _, tt := range tests {
		major, minor, patch := parseVersion(tt.version)
		assert.Equal(t, []int{tt.major, tt.minor, tt.patch}, []int{major, minor, patch}, tt.version)
	}
}

func TestEnsureApp(t *testing.T) {
	t.Run("already running", func(t *testing.T) {
		e := newTestEmulator(t)
		e.SetResidentApp(AppName, "1.0.0")

		app, err := ensureApp(&Session{device: e})
		require.NoError(t, err)
		assert.Equal(t, AppName, app.Name)
		require.Len(t, e.Commands(), 1)
	})

	t.Run("launch from dashboard", func(t *testing.T) {
		e := newTestEmulator(t)

		app, err := ensureApp(&Session{device: e})
		require.NoError(t, err)
		assert.Equal(t, AppName, app.Name)

		cmds := e.Commands()
		require.Len(t, cmds, 3)
		assert.Equal(t, [4]byte{0xb0, 0x01, 0, 0}, header(cmds[0]))
		assert.Equal(t, append([]byte{0xe0, 0xd8, 0, 0, 7}, AppName...), cmds[1])
		assert.Equal(t, [4]byte{0xb0, 0x01, 0, 0}, header(cmds[2]))
	})

	t.Run("quit other app first", func(t *testing.T) {
		e := newTestEmulator(t)
		e.SetResidentApp("Bitcoin", "2.1.0")

		app, err := ensureApp(&Session{device: e})
		require.NoError(t, err)
		assert.Equal(t, AppName, app.Name)

		cmds := e.Commands()
		require.Len(t, cmds, 4)
		assert.Equal(t, [4]byte{0xb0, 0xa7, 0, 0}, header(cmds[1]))
		assert.Equal(t, [4]byte{0xe0, 0xd8, 0, 0}, header(cmds[2]))
	})

	t.Run("launch failure surfaces", func(t *testing.T) {
		e := newTestEmulator(t)
		e.SetInstalledVersion("")

		_, err := ensureApp(&Session{device: e})
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StatusApplicationNotPresent, se.Code)
	})
}
