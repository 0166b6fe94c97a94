// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"
)

const (
	cipherBlockSize = 16
	ivSeparator     = "?iv="
)

// RemovePadding strips PKCS#7 padding from one block. The second result
// reports whether padding was found; when it is false block is returned as is.
func RemovePadding(block []byte, blockSize int) ([]byte, bool) {
	if len(block) == 0 {
		return block, false
	}

	padding := int(block[len(block)-1])
	if padding < 1 || padding > len(block) || padding > blockSize {
		return block, false
	}
	for _, b := range block[len(block)-padding:] {
		if int(b) != padding {
			return block, false
		}
	}
	return block[:len(block)-padding], true
}

// RemovePaddingInBlocks walks buffer block by block and stops after the first
// block that carried padding. Blocks after it are dropped.
func RemovePaddingInBlocks(buffer []byte, blockSize int) []byte {
	if blockSize <= 0 {
		return buffer
	}

	out := make([]byte, 0, len(buffer))
	blockCount := (len(buffer) + blockSize - 1) / blockSize
	for i := 0; i < blockCount; i++ {
		end := min((i+1)*blockSize, len(buffer))
		block, found := RemovePadding(buffer[i*blockSize:end], blockSize)
		out = append(out, block...)
		if found {
			break
		}
	}
	return out
}

// EncodeCiphertext renders ciphertext and IV in the NIP-04 wire form.
func EncodeCiphertext(ciphertext, iv []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext) + ivSeparator + base64.StdEncoding.EncodeToString(iv)
}

// ParseCiphertext splits a NIP-04 wire string into ciphertext and IV.
func ParseCiphertext(wire string) ([]byte, []byte, error) {
	content, iv, found := strings.Cut(wire, ivSeparator)
	if !found {
		return nil, nil, fmt.Errorf("%w: missing %q delimiter", ErrInvalidEnvelope, ivSeparator)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ciphertext: %v", ErrInvalidEnvelope, err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: iv: %v", ErrInvalidEnvelope, err)
	}
	return ciphertext, ivBytes, nil
}

// DecodeEncryptEnvelope parses contentSize(4, LE) | ivSize(1) | iv | ciphertext
// and returns the NIP-04 wire form.
func DecodeEncryptEnvelope(buffer []byte) (string, error) {
	if len(buffer) < 5 {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidEnvelope, len(buffer))
	}

	contentSize := uint64(binary.LittleEndian.Uint32(buffer[0:4]))
	ivSize := uint64(buffer[4])
	ivEnd := 5 + ivSize
	if ivEnd+contentSize > uint64(len(buffer)) {
		return "", fmt.Errorf("%w: iv %d and content %d bytes exceed %d available",
			ErrInvalidEnvelope, ivSize, contentSize, len(buffer)-5)
	}

	return EncodeCiphertext(buffer[ivEnd:ivEnd+contentSize], buffer[5:ivEnd]), nil
}

// DecodeDecryptEnvelope parses contentSize(4, LE) | padded plaintext and
// returns the plaintext without padding and surrounding blanks.
func DecodeDecryptEnvelope(buffer []byte) (string, error) {
	if len(buffer) < 4 {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidEnvelope, len(buffer))
	}

	contentSize := uint64(binary.LittleEndian.Uint32(buffer[0:4]))
	if 4+contentSize > uint64(len(buffer)) {
		return "", fmt.Errorf("%w: content %d bytes exceeds %d available",
			ErrInvalidEnvelope, contentSize, len(buffer)-4)
	}

	plaintext := RemovePaddingInBlocks(buffer[4:4+contentSize], cipherBlockSize)
	text := strings.ToValidUTF8(string(plaintext), "\uFFFD")
	return strings.TrimFunc(text, isBlank), nil
}

func isBlank(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF' || r == 0
}
