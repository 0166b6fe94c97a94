// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"
)

const (
	deviceSecret = "0000000000000000000000000000000000000000000000000000000000000003"
	devicePubKey = "f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9"
	peerSecret   = "b7e151628aed2a6abf7158809cf4f3c762e7160f38b4da56a784d9045190cfef"
)

// scriptedDevice replays canned replies and records every command.
type scriptedDevice struct {
	replies [][]byte
	sent    [][]byte
	closed  int
}

func (d *scriptedDevice) Exchange(command []byte) ([]byte, error) {
	d.sent = append(d.sent, append([]byte{}, command...))
	if len(d.replies) == 0 {
		return nil, errors.New("no scripted reply left")
	}
	reply := d.replies[0]
	d.replies = d.replies[1:]
	return reply, nil
}

func (d *scriptedDevice) Close() error {
	d.closed++
	return nil
}

type scriptedAdmin struct {
	devices    int
	device     LedgerDevice
	connectErr error
}

func (a *scriptedAdmin) CountDevices() int {
	return a.devices
}

func (a *scriptedAdmin) ListDevices() ([]string, error) {
	return make([]string, a.devices), nil
}

func (a *scriptedAdmin) Connect(int) (LedgerDevice, error) {
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	return a.device, nil
}

type progressLog []ConnectionState

func (p *progressLog) record(state ConnectionState) {
	*p = append(*p, state)
}

func appReply(name, version string) []byte {
	out := []byte{1, byte(len(name))}
	out = append(out, name...)
	out = append(out, byte(len(version)))
	out = append(out, version...)
	out = append(out, 1, 0)
	return withStatus(out, StatusOK)
}

func newTestEmulator(t *testing.T) *Emulator {
	t.Helper()
	e, err := NewEmulator(deviceSecret)
	require.NoError(t, err)
	return e
}

func peerPublicKey(t *testing.T) string {
	t.Helper()
	b, err := hex.DecodeString(peerSecret)
	require.NoError(t, err)
	_, pub := btcec.PrivKeyFromBytes(b)
	return hex.EncodeToString(schnorr.SerializePubKey(pub))
}

// header returns CLA, INS, P1, P2 of a recorded command.
func header(command []byte) [4]byte {
	return [4]byte{command[0], command[1], command[2], command[3]}
}

func hexString(b []byte) string {
	return hex.EncodeToString(b)
}
