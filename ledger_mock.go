//go:build ledger_mock
// +build ledger_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledgstr

import "os"

// BIP-340 test vector secret key, used when LEDGSTR_MOCK_SECRET is unset.
const mockSecretKey = "0000000000000000000000000000000000000000000000000000000000000003"

// NewLedgerAdmin returns an admin exposing a single emulated device with the
// Nostr app installed.
func NewLedgerAdmin() LedgerAdmin {
	secret := os.Getenv("LEDGSTR_MOCK_SECRET")
	if secret == "" {
		secret = mockSecretKey
	}

	emulator, err := NewEmulator(secret)
	if err != nil {
		log.Warnf("invalid LEDGSTR_MOCK_SECRET, using default key: %v", err)
		emulator, _ = NewEmulator(mockSecretKey)
	}
	return NewEmulatorAdmin(emulator)
}
