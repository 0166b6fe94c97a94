// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"encoding/hex"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

var now = nostr.Now

// SignHash has the device sign a 32-byte event id.
//
// Reply layout: len(1) | sig(64).
func SignHash(s *Session, idHex string, confirm bool) (string, error) {
	id, err := hex.DecodeString(idHex)
	if err != nil || len(id) != 32 {
		return "", fmt.Errorf("event id %q is not 32 bytes of hex", idHex)
	}

	reply, err := s.Send(Command{CLA: claNostr, INS: insSignHash, P1: confirmFlag(confirm), Data: id})
	if err != nil {
		return "", err
	}

	data := reply[:len(reply)-2]
	if len(data) < 1+64 {
		return "", fmt.Errorf("signature reply too short: %d bytes", len(data))
	}
	return hex.EncodeToString(data[1 : 1+64]), nil
}

// CompleteEvent fills a missing pubkey (read from the device), created_at and id.
func CompleteEvent(s *Session, evt *nostr.Event) error {
	if evt.PubKey == "" {
		pk, err := GetPublicKey(s, FormatHex, false)
		if err != nil {
			return err
		}
		evt.PubKey = pk
	}
	if evt.CreatedAt == 0 {
		evt.CreatedAt = now()
	}
	if evt.ID == "" {
		evt.ID = evt.GetID()
	}
	return nil
}

// ValidateEvent checks an event is well formed and its id matches its content.
func ValidateEvent(evt *nostr.Event) error {
	switch {
	case !nostr.IsValid32ByteHex(evt.PubKey):
		return invalidEvent("pubkey %q is not 32 bytes of lowercase hex", evt.PubKey)
	case evt.Kind < 0 || evt.Kind > 65535:
		return invalidEvent("kind %d out of range", evt.Kind)
	case evt.CreatedAt <= 0:
		return invalidEvent("created_at %d is not a timestamp", evt.CreatedAt)
	case !nostr.IsValid32ByteHex(evt.ID):
		return invalidEvent("id %q is not 32 bytes of lowercase hex", evt.ID)
	}

	if id := evt.GetID(); id != evt.ID {
		return invalidEvent("id %s does not match content hash %s", evt.ID, id)
	}
	return nil
}

// SignEvent completes evt, validates it and attaches the device signature.
// evt is modified in place. A validation failure is returned as *EventError
// before anything is sent for signing.
func SignEvent(s *Session, evt *nostr.Event, confirm bool) (*nostr.Event, error) {
	if err := CompleteEvent(s, evt); err != nil {
		return nil, err
	}
	if err := ValidateEvent(evt); err != nil {
		return nil, err
	}

	sig, err := SignHash(s, evt.ID, confirm)
	if err != nil {
		return nil, err
	}
	evt.Sig = sig
	return evt, nil
}
