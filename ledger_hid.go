//go:build !ledger_mock
// +build !ledger_mock

// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/hid"
)

const (
	VendorLedger         = 0x2c97
	UsagePageLedgerNanoS = 0xffa0
	Channel              = 0x0101
	PacketSize           = 64

	// The device waits on the user for confirmations, so reads are slow.
	readTimeout = 20 * time.Second
)

var errDeviceNotFound = errors.New("ledger device not found")

// Models are told apart by the high byte of the product id. Devices that
// report an empty usage page are only accepted on the model's HID interface.
// https://github.com/LedgerHQ/ledger-live/blob/develop/libs/ledgerjs/packages/devices/src/index.ts
var ledgerModels = map[uint8]struct {
	name  string
	iface int
}{
	0x10: {"Nano S", 0},
	0x40: {"Nano X", 0},
	0x50: {"Nano S Plus", 0},
	0x60: {"Stax", 0},
	0x70: {"Flex", 0},
}

func modelName(d hid.DeviceInfo) string {
	if m, ok := ledgerModels[uint8(d.ProductID>>8)]; ok {
		return m.name
	}
	return fmt.Sprintf("unknown (%04x)", d.ProductID)
}

func isLedgerDevice(d hid.DeviceInfo) bool {
	if d.VendorID != VendorLedger {
		return false
	}
	if d.UsagePage == UsagePageLedgerNanoS {
		return true
	}
	m, ok := ledgerModels[uint8(d.ProductID>>8)]
	return ok && m.iface == d.Interface
}

// ledgerDevices enumerates the Nostr-capable HID interfaces in a stable order.
func ledgerDevices() []hid.DeviceInfo {
	var found []hid.DeviceInfo
	for _, d := range hid.Enumerate(VendorLedger, 0) {
		if isLedgerDevice(d) {
			found = append(found, d)
		}
	}
	return found
}

type hidAdmin struct{}

// NewLedgerAdmin returns the USB HID backend.
func NewLedgerAdmin() LedgerAdmin {
	return hidAdmin{}
}

func (hidAdmin) CountDevices() int {
	return len(ledgerDevices())
}

func (hidAdmin) ListDevices() ([]string, error) {
	devices := ledgerDevices()
	if len(devices) == 0 {
		log.Debug("no ledger found: it may be locked or held by another program")
	}

	paths := make([]string, 0, len(devices))
	for _, d := range devices {
		log.Debugw("ledger found",
			"path", d.Path,
			"model", modelName(d),
			"release", fmt.Sprintf("%x", d.Release),
			"serial", d.Serial,
			"usagePage", fmt.Sprintf("%x", d.UsagePage),
			"interface", d.Interface,
		)
		paths = append(paths, d.Path)
	}
	return paths, nil
}

func (hidAdmin) Connect(deviceIndex int) (LedgerDevice, error) {
	devices := ledgerDevices()
	if deviceIndex < 0 || deviceIndex >= len(devices) {
		return nil, fmt.Errorf("%w: index %d of %d", errDeviceNotFound, deviceIndex, len(devices))
	}

	info := devices[deviceIndex]
	device, err := info.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", modelName(info), err)
	}
	log.Debugf("opened ledger %s at %s", modelName(info), info.Path)

	d := &hidDevice{
		device:  device,
		packets: make(chan []byte),
		closed:  make(chan struct{}),
	}
	d.reader = &responseReader{channel: Channel, pipe: d.packets, timeout: readTimeout}
	return d, nil
}

// hidDevice is one open Ledger. Exchanges are serialized; a background reader
// feeds incoming packets to whichever exchange is waiting.
type hidDevice struct {
	device *hid.Device

	mu         sync.Mutex
	readerOnce sync.Once
	closeOnce  sync.Once
	packets    chan []byte
	reader     *responseReader
	closed     chan struct{}
}

func (d *hidDevice) Exchange(command []byte) ([]byte, error) {
	if len(command) < 5 {
		return nil, fmt.Errorf("command of %d bytes is shorter than an APDU header", len(command))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.closed:
		return nil, ErrSessionClosed
	default:
	}
	if d.reader.err != nil {
		return nil, d.reader.err
	}

	log.Debugf("[HID] => %x", command)
	packets, err := WrapCommandAPDU(Channel, command, PacketSize)
	if err != nil {
		return nil, err
	}
	for i, packet := range packets {
		if err := d.writePacket(packet); err != nil {
			return nil, fmt.Errorf("packet %d/%d: %w", i+1, len(packets), err)
		}
	}

	d.readerOnce.Do(func() { go d.readPackets() })
	response, err := d.reader.read()
	if err != nil {
		return nil, err
	}

	log.Debugf("[HID] <= %x", response)
	return response, nil
}

// writePacket writes one report, retrying partial writes.
func (d *hidDevice) writePacket(packet []byte) error {
	for written := 0; written < len(packet); {
		n, err := d.device.Write(packet[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("device accepted no bytes")
		}
		written += n
	}
	return nil
}

func (d *hidDevice) readPackets() {
	defer close(d.packets)
	for {
		buffer := make([]byte, PacketSize)
		n, err := d.device.Read(buffer)
		if err != nil {
			log.Debugf("[HID] reader stopped: %v", err)
			return
		}
		select {
		case d.packets <- buffer[:n]:
		case <-d.closed:
			return
		}
	}
}

func (d *hidDevice) Close() error {
	err := ErrSessionClosed
	d.closeOnce.Do(func() {
		close(d.closed)
		err = d.device.Close()
	})
	return err
}
