// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/nbd-wtf/go-nostr/nip04"
)

const (
	emulatorFirmwareVersion = "2.2.3"
	emulatorPageSize        = 200
)

// Emulator is an in-memory Ledger running the Nostr app. Confirmations are
// approved immediately. Replies longer than one page are paged with 0x61xx.
type Emulator struct {
	mu        sync.Mutex
	secretKey *btcec.PrivateKey
	secretHex string
	installed string
	resident  string
	version   string
	locked    bool
	inUse     bool
	pending   []byte
	bulk      *bulkTransfer
	history   [][]byte
}

type bulkTransfer struct {
	ins    instruction
	chunks [][]byte
}

// NewEmulator starts an emulator on the dashboard with the Nostr app
// installed at version 1.0.0.
func NewEmulator(secretKeyHex string) (*Emulator, error) {
	b, err := hex.DecodeString(secretKeyHex)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes of hex")
	}
	sk, _ := btcec.PrivKeyFromBytes(b)
	return &Emulator{
		secretKey: sk,
		secretHex: secretKeyHex,
		installed: "1.0.0",
		resident:  DashboardAppName,
		version:   emulatorFirmwareVersion,
	}, nil
}

// PublicKey returns the x-only public key in hex.
func (e *Emulator) PublicKey() string {
	return hex.EncodeToString(schnorr.SerializePubKey(e.secretKey.PubKey()))
}

// SetResidentApp puts name in the foreground as if the user had launched it.
func (e *Emulator) SetResidentApp(name, version string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resident, e.version = name, version
	if name == AppName {
		e.installed = version
	}
}

// SetInstalledVersion changes the Nostr app version launched by open-app.
// An empty version uninstalls it.
func (e *Emulator) SetInstalledVersion(version string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.installed = version
}

func (e *Emulator) SetLocked(locked bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locked = locked
}

func (e *Emulator) ResidentApp() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resident
}

// Commands returns every APDU received so far.
func (e *Emulator) Commands() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]byte, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Emulator) Exchange(command []byte) ([]byte, error) {
	if len(command) < 5 {
		return nil, errors.New("APDU commands should not be smaller than 5")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, append([]byte{}, command...))
	cla, ins, p1, p2 := command[0], instruction(command[1]), command[2], command[3]
	data := command[5:]
	if int(command[4]) != len(data) {
		return status(StatusInvalidData), nil
	}
	if e.locked {
		return status(StatusLockedDevice), nil
	}

	switch {
	case cla == claDashboard && ins == insGetAppAndVersion:
		return e.appAndVersion(), nil
	case cla == claDashboard && ins == insQuitApp:
		e.resident, e.version = DashboardAppName, emulatorFirmwareVersion
		return status(StatusOK), nil
	case cla == claNostr && ins == insOpenApp:
		return e.openApp(string(data)), nil
	case cla != claNostr || e.resident != AppName:
		return status(StatusCLANotSupported), nil
	}

	switch ins {
	case insGetPublicKey:
		pub := e.secretKey.PubKey().SerializeUncompressed()
		return withStatus(append([]byte{byte(len(pub))}, pub...), StatusOK), nil
	case insSignHash:
		return e.signHash(data), nil
	case insEncrypt, insDecrypt:
		return e.bulkChunk(ins, p1, p2, data), nil
	case insGetNextPage:
		if len(e.pending) == 0 {
			return status(StatusConditionsNotSatisfied), nil
		}
		next := e.pending
		e.pending = nil
		return e.paged(next), nil
	default:
		return status(StatusINSNotSupported), nil
	}
}

func (e *Emulator) appAndVersion() []byte {
	out := []byte{1, byte(len(e.resident))}
	out = append(out, e.resident...)
	out = append(out, byte(len(e.version)))
	out = append(out, e.version...)
	out = append(out, 1, 0)
	return withStatus(out, StatusOK)
}

func (e *Emulator) openApp(name string) []byte {
	if e.resident != DashboardAppName {
		return status(StatusConditionsNotSatisfied)
	}
	if name != AppName || e.installed == "" {
		return status(StatusApplicationNotPresent)
	}
	e.resident, e.version = AppName, e.installed
	return status(StatusOK)
}

func (e *Emulator) signHash(hash []byte) []byte {
	if len(hash) != 32 {
		return status(StatusInvalidData)
	}
	sig, err := schnorr.Sign(e.secretKey, hash)
	if err != nil {
		return status(StatusInvalidData)
	}
	raw := sig.Serialize()
	return withStatus(append([]byte{byte(len(raw))}, raw...), StatusOK)
}

func (e *Emulator) bulkChunk(ins instruction, p1, p2 byte, data []byte) []byte {
	if p1 == 0 {
		e.bulk = &bulkTransfer{ins: ins}
	}
	if e.bulk == nil || e.bulk.ins != ins || int(p1) != len(e.bulk.chunks) {
		e.bulk = nil
		return status(StatusInvalidData)
	}
	e.bulk.chunks = append(e.bulk.chunks, append([]byte{}, data...))
	if p2 == p2MoreChunks {
		return status(StatusOK)
	}

	chunks := e.bulk.chunks
	e.bulk = nil

	var out []byte
	var err error
	if ins == insEncrypt {
		out, err = e.encrypt(chunks)
	} else {
		out, err = e.decrypt(chunks)
	}
	if err != nil {
		log.Debugf("emulator: %v", err)
		return status(StatusInvalidData)
	}
	return e.paged(out)
}

func (e *Emulator) sharedSecret(uncompressed []byte) ([]byte, error) {
	if len(uncompressed) != 64 {
		return nil, fmt.Errorf("peer key is %d bytes", len(uncompressed))
	}
	return nip04.ComputeSharedSecret(hex.EncodeToString(uncompressed[:32]), e.secretHex)
}

// encrypt answers contentSize(4, LE) | ivSize(1) | iv | ciphertext.
func (e *Emulator) encrypt(chunks [][]byte) ([]byte, error) {
	if len(chunks) < 2 {
		return nil, errors.New("encrypt needs a key and a plaintext")
	}
	shared, err := e.sharedSecret(chunks[0])
	if err != nil {
		return nil, err
	}

	wire, err := nip04.Encrypt(string(bytes.Join(chunks[1:], nil)), shared)
	if err != nil {
		return nil, err
	}
	ciphertext, iv, err := ParseCiphertext(wire)
	if err != nil {
		return nil, err
	}

	out := binary.LittleEndian.AppendUint32(nil, uint32(len(ciphertext)))
	out = append(out, byte(len(iv)))
	out = append(out, iv...)
	return append(out, ciphertext...), nil
}

// decrypt answers contentSize(4, LE) | plaintext with PKCS#7 padding left in.
func (e *Emulator) decrypt(chunks [][]byte) ([]byte, error) {
	if len(chunks) < 3 {
		return nil, errors.New("decrypt needs a key, an iv and a ciphertext")
	}
	iv, ciphertext := chunks[1], bytes.Join(chunks[2:], nil)
	if len(iv) != cipherBlockSize || len(ciphertext)%cipherBlockSize != 0 {
		return nil, fmt.Errorf("iv %d bytes, ciphertext %d bytes", len(iv), len(ciphertext))
	}
	shared, err := e.sharedSecret(chunks[0])
	if err != nil {
		return nil, err
	}

	plaintext, err := nip04.Decrypt(EncodeCiphertext(ciphertext, iv), shared)
	if err != nil {
		return nil, err
	}

	padding := cipherBlockSize - len(plaintext)%cipherBlockSize
	padded := append([]byte(plaintext), bytes.Repeat([]byte{byte(padding)}, padding)...)

	out := binary.LittleEndian.AppendUint32(nil, uint32(len(padded)))
	return append(out, padded...), nil
}

func (e *Emulator) paged(data []byte) []byte {
	if len(data) <= emulatorPageSize {
		return withStatus(data, StatusOK)
	}
	e.pending = append([]byte{}, data[emulatorPageSize:]...)
	return withStatus(data[:emulatorPageSize], StatusMoreData|uint16(min(len(e.pending), 0xff)))
}

func status(sw uint16) []byte {
	return withStatus(nil, sw)
}

func withStatus(data []byte, sw uint16) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return binary.BigEndian.AppendUint16(out, sw)
}

func (e *Emulator) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inUse {
		return errors.New("device busy: another session holds it")
	}
	e.inUse = true
	return nil
}

func (e *Emulator) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inUse = false
	e.pending, e.bulk = nil, nil
}

// Close is a no-op; the handles returned by an EmulatorAdmin track ownership.
func (e *Emulator) Close() error {
	return nil
}

// EmulatorAdmin exposes one Emulator as the only connected device.
// A second Connect fails while the first handle is open.
type EmulatorAdmin struct {
	Emulator *Emulator
}

func NewEmulatorAdmin(e *Emulator) *EmulatorAdmin {
	return &EmulatorAdmin{Emulator: e}
}

func (admin *EmulatorAdmin) CountDevices() int {
	return 1
}

func (admin *EmulatorAdmin) ListDevices() ([]string, error) {
	return []string{"emulator"}, nil
}

func (admin *EmulatorAdmin) Connect(deviceIndex int) (LedgerDevice, error) {
	if deviceIndex != 0 {
		return nil, errors.New("device not found")
	}
	if err := admin.Emulator.acquire(); err != nil {
		return nil, err
	}
	return &emulatorHandle{emulator: admin.Emulator}, nil
}

type emulatorHandle struct {
	emulator *Emulator
	once     sync.Once
}

func (h *emulatorHandle) Exchange(command []byte) ([]byte, error) {
	return h.emulator.Exchange(command)
}

func (h *emulatorHandle) Close() error {
	h.once.Do(h.emulator.release)
	return nil
}
