// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// instruction is an APDU instruction byte understood by the Nostr app or the dashboard.
type instruction byte

const (
	claNostr     byte = 0xe0
	claDashboard byte = 0xb0

	insGetAppAndVersion instruction = 0x01 // dashboard: resident app name and version
	insGetPublicKey     instruction = 0x05
	insSignHash         instruction = 0x07
	insEncrypt          instruction = 0x08
	insDecrypt          instruction = 0x09
	insQuitApp          instruction = 0xa7 // dashboard: leave the resident app
	insGetNextPage      instruction = 0xc0
	insOpenApp          instruction = 0xd8

	p1NoConfirm  byte = 0x00
	p1Confirm    byte = 0x01
	p2LastChunk  byte = 0x00
	p2MoreChunks byte = 0x80
)

// Status words returned in the last two bytes of every reply.
const (
	StatusOK                     uint16 = 0x9000
	StatusMoreData               uint16 = 0x6100
	StatusLockedDevice           uint16 = 0x5515
	StatusApplicationNotPresent  uint16 = 0x6807
	StatusConditionsNotSatisfied uint16 = 0x6985
	StatusInvalidData            uint16 = 0x6a80
	StatusINSNotSupported        uint16 = 0x6d00
	StatusCLANotSupported        uint16 = 0x6e00
)

var errReplyTooShort = errors.New("reply shorter than a status word")

// Command is a single APDU: CLA | INS | P1 | P2 | Lc | data.
type Command struct {
	CLA  byte
	INS  instruction
	P1   byte
	P2   byte
	Data []byte
}

// Serialize encodes the command. Payloads are limited to 255 bytes.
func (c Command) Serialize() ([]byte, error) {
	if len(c.Data) > 0xff {
		return nil, fmt.Errorf("apdu payload too long: %d bytes", len(c.Data))
	}
	buf := make([]byte, 5, 5+len(c.Data))
	buf[0] = c.CLA
	buf[1] = byte(c.INS)
	buf[2] = c.P1
	buf[3] = c.P2
	buf[4] = byte(len(c.Data))
	return append(buf, c.Data...), nil
}

// StatusError is returned when the device answers with an unexpected status word.
type StatusError struct {
	Code uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger device returned status 0x%04x (%s)", e.Code, statusText(e.Code))
}

func statusText(code uint16) string {
	switch {
	case code == StatusOK:
		return "ok"
	case IsMoreData(code):
		return "more data available"
	case code == StatusLockedDevice:
		return "device locked"
	case code == StatusApplicationNotPresent:
		return "application not present"
	case code == StatusConditionsNotSatisfied:
		return "conditions not satisfied, possibly denied by the user"
	case code == StatusInvalidData:
		return "invalid data"
	case code == StatusINSNotSupported:
		return "instruction not supported"
	case code == StatusCLANotSupported:
		return "class not supported"
	default:
		return "unknown"
	}
}

// IsMoreData reports whether sw announces a continuation page (0x61xx).
func IsMoreData(sw uint16) bool {
	return sw&0xff00 == StatusMoreData
}

// statusWord returns the trailing status word of reply.
func statusWord(reply []byte) (uint16, error) {
	if len(reply) < 2 {
		return 0, errReplyTooShort
	}
	return binary.BigEndian.Uint16(reply[len(reply)-2:]), nil
}

// exchange sends cmd and checks the status word. Only 0x9000 is accepted
// unless allowMoreData is set, in which case 0x61xx is accepted as well.
// The returned reply keeps its status word.
func exchange(device LedgerDevice, cmd Command, allowMoreData bool) ([]byte, error) {
	raw, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}

	log.Debugf("[APDU] => %x", raw)
	reply, err := device.Exchange(raw)
	if err != nil {
		return nil, err
	}
	log.Debugf("[APDU] <= %x", reply)

	sw, err := statusWord(reply)
	if err != nil {
		return nil, err
	}
	if sw == StatusOK || (allowMoreData && IsMoreData(sw)) {
		return reply, nil
	}
	return nil, &StatusError{Code: sw}
}
