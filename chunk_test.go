// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks(t *testing.T) {
	for _, size := range []int{1, 7, 16, 128} {
		for n := 1; n <= 300; n += 13 {
			buf := bytes.Repeat([]byte{0xab}, n)
			want := (n + size - 1) / size

			padded, err := Chunks(buf, size, true)
			require.NoError(t, err)
			require.Len(t, padded, want)
			for _, piece := range padded {
				require.Len(t, piece, size)
			}
			last := padded[len(padded)-1]
			if n%size != 0 {
				require.Equal(t, make([]byte, size-n%size), last[n%size:])
			}

			plain, err := Chunks(buf, size, false)
			require.NoError(t, err)
			require.Len(t, plain, want)
			require.Equal(t, buf, bytes.Join(plain, nil))
		}
	}
}

func TestChunks_DoesNotAliasInput(t *testing.T) {
	buf := []byte("abcdefghij")
	pieces, err := Chunks(buf[:5], 3, true)
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	assert.Equal(t, []byte{'d', 'e', 0}, pieces[1])
	assert.Equal(t, []byte("abcdefghij"), buf)
}

func TestChunks_InvalidArguments(t *testing.T) {
	_, err := Chunks(nil, 16, false)
	require.Error(t, err)

	_, err = Chunks([]byte{1}, 0, false)
	require.Error(t, err)

	_, err = Chunks([]byte{1}, -4, true)
	require.Error(t, err)
}

func TestSendBulk_ReassemblesPages(t *testing.T) {
	device := &scriptedDevice{replies: [][]byte{
		{0x90, 0x00},
		{'A', 'B', 0x61, 0x04},
		{'C', 'D', 0x61, 0x02},
		{'E', 'F', 0x90, 0x00},
	}}
	s := &Session{device: device}

	results, err := SendBulk(s, insEncrypt, [][]byte{{0x01}, {0x02}})
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("ABCDEF")}, results)

	require.Len(t, device.sent, 4)
	assert.Equal(t, [4]byte{0xe0, 0x08, 0x00, 0x80}, header(device.sent[0]))
	assert.Equal(t, [4]byte{0xe0, 0x08, 0x01, 0x00}, header(device.sent[1]))
	assert.Equal(t, []byte{0xe0, 0xc0, 0x00, 0x00, 0x00}, device.sent[2])
	assert.Equal(t, []byte{0xe0, 0xc0, 0x00, 0x00, 0x00}, device.sent[3])
}

func TestSendBulk_OneResultPerDataReply(t *testing.T) {
	device := &scriptedDevice{replies: [][]byte{
		{'x', 0x90, 0x00},
		{0x90, 0x00},
		{'y', 'z', 0x90, 0x00},
	}}
	s := &Session{device: device}

	results, err := SendBulk(s, insDecrypt, [][]byte{{1}, {2}, {3}})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("x"), []byte("yz")}, results)
}

func TestSendBulk_BareMoreDataIsSkipped(t *testing.T) {
	device := &scriptedDevice{replies: [][]byte{
		{0x61, 0x00},
		{'x', 0x90, 0x00},
	}}
	s := &Session{device: device}

	results, err := SendBulk(s, insEncrypt, [][]byte{{1}, {2}})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("x")}, results)

	require.Len(t, device.sent, 2, "a status-only reply is not paged")
	assert.Equal(t, [4]byte{0xe0, 0x08, 0x00, 0x80}, header(device.sent[0]))
	assert.Equal(t, [4]byte{0xe0, 0x08, 0x01, 0x00}, header(device.sent[1]))
}

func TestSendBulk_UnexpectedStatus(t *testing.T) {
	device := &scriptedDevice{replies: [][]byte{
		{0x90, 0x00},
		{'A', 0x61, 0x01},
		{0x6a, 0x80},
	}}
	s := &Session{device: device}

	_, err := SendBulk(s, insEncrypt, [][]byte{{1}, {2}})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StatusInvalidData, se.Code)
}

func TestSendBulk_ClosedSession(t *testing.T) {
	device := &scriptedDevice{}
	s := &Session{device: device}
	require.NoError(t, s.close())
	require.NoError(t, s.close())
	assert.Equal(t, 1, device.closed)

	_, err := SendBulk(s, insEncrypt, [][]byte{{1}})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Empty(t, device.sent)
}
