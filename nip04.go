// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import "fmt"

// DecryptFailurePrefix starts every message Decrypt returns in place of a plaintext.
const DecryptFailurePrefix = "Unable to decrypt with your Ledger. Please make sure you are using the correct key. "

// Encrypt has the device encrypt plaintext for peer. The payload sent is the
// uncompressed peer key followed by the plaintext in 128-byte chunks; the
// device pads. The result is in NIP-04 wire form.
func Encrypt(s *Session, peer string, plaintext string) (string, error) {
	key, err := UncompressedPublicKey(peer)
	if err != nil {
		return "", err
	}
	chunks, err := Chunks([]byte(plaintext), bulkChunkSize, false)
	if err != nil {
		return "", err
	}

	results, err := SendBulk(s, insEncrypt, append([][]byte{key}, chunks...))
	if err != nil {
		return "", err
	}
	if len(results) != 1 {
		return "", fmt.Errorf("%w: got %d", ErrResultCount, len(results))
	}

	return DecodeEncryptEnvelope(results[0])
}

// Decrypt has the device decrypt a NIP-04 wire string from peer.
//
// Decrypt never fails: any fault, including device faults during the
// transfer, is rendered as DecryptFailurePrefix followed by the fault message
// and returned in place of the plaintext. Encrypt and SignEvent propagate
// their faults instead.
func Decrypt(s *Session, peer string, cyphertext string) string {
	plaintext, err := decrypt(s, peer, cyphertext)
	if err != nil {
		log.Warnf("decrypt failed: %v", err)
		return DecryptFailurePrefix + err.Error()
	}
	return plaintext
}

func decrypt(s *Session, peer string, cyphertext string) (string, error) {
	key, err := UncompressedPublicKey(peer)
	if err != nil {
		return "", err
	}
	content, iv, err := ParseCiphertext(cyphertext)
	if err != nil {
		return "", err
	}
	chunks, err := Chunks(content, bulkChunkSize, false)
	if err != nil {
		return "", err
	}

	results, err := SendBulk(s, insDecrypt, append([][]byte{key, iv}, chunks...))
	if err != nil {
		return "", err
	}
	if len(results) != 1 {
		return "", fmt.Errorf("%w: got %d", ErrResultCount, len(results))
	}

	return DecodeDecryptEnvelope(results[0])
}
