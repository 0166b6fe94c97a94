// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"errors"
	"fmt"
)

const bulkChunkSize = 128

// Chunks splits buffer into pieces of size bytes. When padding is set and the
// last piece is short it is right-padded with zeros.
func Chunks(buffer []byte, size int, padding bool) ([][]byte, error) {
	if len(buffer) == 0 {
		return nil, errors.New("buffer is required")
	}
	if size <= 0 {
		return nil, errors.New("chunk size should be positive number")
	}

	result := make([][]byte, 0, (len(buffer)+size-1)/size)
	for i := 0; i < len(buffer); i += size {
		end := min(i+size, len(buffer))
		piece := make([]byte, end-i, size)
		copy(piece, buffer[i:end])
		if padding && len(piece) < size {
			piece = piece[:size]
		}
		result = append(result, piece)
	}
	return result, nil
}

// SendBulk sends chunks under one instruction. Chunk i travels with P1 = i and
// P2 = 0x80 while more chunks follow, 0x00 on the last one. Replies announcing
// more data are completed with get-next-page requests. Every reply that
// carries data becomes one result; bare status words contribute nothing.
func SendBulk(s *Session, ins instruction, chunks [][]byte) ([][]byte, error) {
	if len(chunks) > 0x100 {
		return nil, fmt.Errorf("too many chunks: %d", len(chunks))
	}

	var results [][]byte
	for i, chunk := range chunks {
		p2 := p2MoreChunks
		if i == len(chunks)-1 {
			p2 = p2LastChunk
		}

		reply, err := s.send(Command{CLA: claNostr, INS: ins, P1: byte(i), P2: p2, Data: chunk}, true)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}

		result, err := s.collectPages(reply)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if result == nil {
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// collectPages concatenates reply with its continuation pages, status words
// stripped. A reply that is only a status word contributes nothing and is
// not paged.
func (s *Session) collectPages(reply []byte) ([]byte, error) {
	sw, err := statusWord(reply)
	if err != nil {
		return nil, err
	}
	if len(reply) == 2 {
		return nil, nil
	}

	result := append([]byte{}, reply[:len(reply)-2]...)
	for IsMoreData(sw) {
		log.Debugf("fetching next page (sw %04x)", sw)
		page, err := s.send(Command{CLA: claNostr, INS: insGetNextPage}, true)
		if err != nil {
			return nil, err
		}
		sw, _ = statusWord(page)
		result = append(result, page[:len(page)-2]...)
	}
	return result, nil
}
