// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const tagAPDU = 0x05

var (
	errInvalidChannel  = errors.New("invalid channel")
	errInvalidTag      = errors.New("invalid tag")
	errInvalidSequence = errors.New("invalid sequence index")
	errPacketTooShort  = errors.New("packet too short")
	errReadTimeout     = errors.New("timeout reading from device")
	errPipeClosed      = errors.New("read channel closed")
)

// WrapCommandAPDU turns the command into a sequence of packetSize byte packets for HID transport.
//
// Every packet starts with channel(2) | tag(1) | sequence(2). The first packet
// also carries the big-endian length of the whole command. Unused space in the
// last packet is zero.
func WrapCommandAPDU(channel uint16, command []byte, packetSize int) ([][]byte, error) {
	if packetSize < 8 {
		return nil, errors.New("packet size must be at least 8")
	}
	if len(command) > 0xffff {
		return nil, fmt.Errorf("command too long: %d bytes", len(command))
	}

	buffer := make([]byte, 2+len(command))
	binary.BigEndian.PutUint16(buffer[0:2], uint16(len(command)))
	copy(buffer[2:], command)

	var chunks [][]byte
	for seq := uint16(0); len(buffer) > 0; seq++ {
		packet := make([]byte, packetSize)
		binary.BigEndian.PutUint16(packet[0:2], channel)
		packet[2] = tagAPDU
		binary.BigEndian.PutUint16(packet[3:5], seq)

		n := copy(packet[5:], buffer)
		buffer = buffer[n:]
		chunks = append(chunks, packet)
	}

	return chunks, nil
}

// UnwrapResponseAPDU validates one HID packet and returns its payload.
// For the packet with sequence 0 it also returns the total reply length, -1 otherwise.
func UnwrapResponseAPDU(channel uint16, packet []byte, sequenceIdx uint16) ([]byte, int, error) {
	if len(packet) < 5 {
		return nil, 0, errPacketTooShort
	}
	if binary.BigEndian.Uint16(packet[0:2]) != channel {
		return nil, 0, errInvalidChannel
	}
	if packet[2] != tagAPDU {
		return nil, 0, errInvalidTag
	}
	if binary.BigEndian.Uint16(packet[3:5]) != sequenceIdx {
		return nil, 0, errInvalidSequence
	}

	if sequenceIdx != 0 {
		return packet[5:], -1, nil
	}
	if len(packet) < 7 {
		return nil, 0, errPacketTooShort
	}
	return packet[7:], int(binary.BigEndian.Uint16(packet[5:7])), nil
}

// readResponseAPDU collects packets from pipe until the announced reply length is reached.
func readResponseAPDU(channel uint16, pipe <-chan []byte, timeout time.Duration) ([]byte, error) {
	var response []byte
	total := -1

	for seq := uint16(0); total < 0 || len(response) < total; seq++ {
		select {
		case packet, ok := <-pipe:
			if !ok {
				return nil, errPipeClosed
			}
			payload, length, err := UnwrapResponseAPDU(channel, packet, seq)
			if err != nil {
				return nil, err
			}
			if seq == 0 {
				total = length
				response = make([]byte, 0, total)
			}
			response = append(response, payload...)
		case <-time.After(timeout):
			return nil, errReadTimeout
		}
	}

	return response[:total], nil
}

// responseReader reads replies from one device pipe. A failed read leaves
// the pipe out of step with the device (a late reply may still arrive), so
// every read after it fails too.
type responseReader struct {
	channel uint16
	pipe    <-chan []byte
	timeout time.Duration
	err     error
}

func (r *responseReader) read() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	response, err := readResponseAPDU(r.channel, r.pipe, r.timeout)
	if err != nil {
		r.err = fmt.Errorf("device handle unusable after failed read: %w", err)
		return nil, err
	}
	return response, nil
}
