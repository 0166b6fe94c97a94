// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemovePadding(t *testing.T) {
	tests := []struct {
		name  string
		block []byte
		want  []byte
		found bool
	}{
		{"full padding block", bytes.Repeat([]byte{16}, 16), []byte{}, true},
		{"three bytes", []byte("hello world!!\x03\x03\x03"), []byte("hello world!!"), true},
		{"one byte", []byte("abcdefghijklmno\x01"), []byte("abcdefghijklmno"), true},
		{"zero is not padding", []byte("abcdefghijklmno\x00"), []byte("abcdefghijklmno\x00"), false},
		{"larger than block", []byte("abc\x05"), []byte("abc\x05"), false},
		{"mismatched bytes", []byte("abcdefghijklm\x02\x01\x03"), []byte("abcdefghijklm\x02\x01\x03"), false},
		{"no padding", []byte("abcdefghijklmnop"), []byte("abcdefghijklmnop"), false},
		{"empty", []byte{}, []byte{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := RemovePadding(tt.block, cipherBlockSize)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemovePaddingInBlocks(t *testing.T) {
	t.Run("aligned input without padding is untouched", func(t *testing.T) {
		in := []byte("abcdefghijklmnopqrstuvwxyzABCDEF")
		assert.Equal(t, in, RemovePaddingInBlocks(in, 16))
		assert.Equal(t, in, RemovePaddingInBlocks(RemovePaddingInBlocks(in, 16), 16))
	})

	t.Run("strips trailing padding", func(t *testing.T) {
		in := append([]byte("abcdefghijklmnopqrst"), bytes.Repeat([]byte{12}, 12)...)
		assert.Equal(t, []byte("abcdefghijklmnopqrst"), RemovePaddingInBlocks(in, 16))
	})

	t.Run("full padding block", func(t *testing.T) {
		in := append([]byte("abcdefghijklmnop"), bytes.Repeat([]byte{16}, 16)...)
		assert.Equal(t, []byte("abcdefghijklmnop"), RemovePaddingInBlocks(in, 16))
	})

	t.Run("stops at first padded block", func(t *testing.T) {
		in := append([]byte("abcdefghijklmn\x02\x02"), []byte("ignored block...")...)
		assert.Equal(t, []byte("abcdefghijklmn"), RemovePaddingInBlocks(in, 16))
	})

	t.Run("short final block", func(t *testing.T) {
		in := []byte("abcdefghijklmnopqrs")
		assert.Equal(t, in, RemovePaddingInBlocks(in, 16))
	})
}

func TestParseCiphertext(t *testing.T) {
	ct, iv, err := ParseCiphertext(EncodeCiphertext([]byte("cipher"), []byte("0123456789abcdef")))
	require.NoError(t, err)
	assert.Equal(t, []byte("cipher"), ct)
	assert.Equal(t, []byte("0123456789abcdef"), iv)

	_, _, err = ParseCiphertext("no-delimiter")
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	_, _, err = ParseCiphertext("!!!?iv=AAAA")
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestDecodeEncryptEnvelope(t *testing.T) {
	iv := bytes.Repeat([]byte{0x11}, 16)
	ct := bytes.Repeat([]byte{0x22}, 32)

	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(ct)))
	buf = append(buf, byte(len(iv)))
	buf = append(buf, iv...)
	buf = append(buf, ct...)

	wire, err := DecodeEncryptEnvelope(buf)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(ct)+"?iv="+base64.StdEncoding.EncodeToString(iv), wire)

	t.Run("content beyond buffer", func(t *testing.T) {
		short := append([]byte{}, buf[:len(buf)-1]...)
		_, err := DecodeEncryptEnvelope(short)
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})

	t.Run("truncated header", func(t *testing.T) {
		_, err := DecodeEncryptEnvelope([]byte{1, 0, 0})
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})
}

func TestDecodeDecryptEnvelope(t *testing.T) {
	plaintext := []byte("\uFEFF hello nostr \x00")
	padding := 16 - len(plaintext)%16
	padded := append(append([]byte{}, plaintext...), bytes.Repeat([]byte{byte(padding)}, padding)...)

	buf := binary.LittleEndian.AppendUint32(nil, uint32(len(padded)))
	buf = append(buf, padded...)
	buf = append(buf, 0xde, 0xad)

	text, err := DecodeDecryptEnvelope(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello nostr", text)

	_, err = DecodeDecryptEnvelope(buf[:10])
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}
