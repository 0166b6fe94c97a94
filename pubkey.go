// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// KeyFormat selects how a public key is rendered.
type KeyFormat int

const (
	FormatHex KeyFormat = iota
	FormatBech32
)

func confirmFlag(confirm bool) byte {
	if confirm {
		return p1Confirm
	}
	return p1NoConfirm
}

// GetPublicKey reads the user's public key. With validate the device shows
// the key and waits for confirmation.
//
// Reply layout: len(1) | 0x04 | X(32) | Y(32); the Nostr key is X.
func GetPublicKey(s *Session, format KeyFormat, validate bool) (string, error) {
	reply, err := s.Send(Command{CLA: claNostr, INS: insGetPublicKey, P1: confirmFlag(validate)})
	if err != nil {
		return "", err
	}

	data := reply[:len(reply)-2]
	if len(data) < 2+32 {
		return "", fmt.Errorf("public key reply too short: %d bytes", len(data))
	}
	pk := hex.EncodeToString(data[2 : 2+32])

	if format == FormatBech32 {
		return nip19.EncodePublicKey(pk)
	}
	return pk, nil
}

// UncompressedPublicKey normalizes a peer key given as 32-byte x-only,
// 33-byte compressed or 65-byte uncompressed hex into X || Y.
func UncompressedPublicKey(peer string) ([]byte, error) {
	b, err := hex.DecodeString(peer)
	if err != nil {
		return nil, fmt.Errorf("peer key %q is invalid hex: %w", peer, err)
	}

	var key *btcec.PublicKey
	if len(b) == 32 {
		key, err = schnorr.ParsePubKey(b)
	} else {
		key, err = btcec.ParsePubKey(b)
	}
	if err != nil {
		return nil, fmt.Errorf("peer key %q: %w", peer, err)
	}

	return key.SerializeUncompressed()[1:], nil
}
