// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package provider

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Extension tags every frame exchanged with a page.
const Extension = "ledgstr"

type RequestType string

const (
	TypeGetPublicKey RequestType = "getPublicKey"
	TypeSignEvent    RequestType = "signEvent"
	TypeEncrypt      RequestType = "nip04.encrypt"
	TypeDecrypt      RequestType = "nip04.decrypt"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrForeignFrame   = errors.New("frame is not addressed to " + Extension)
	ErrUnknownType    = errors.New("unknown request type")
	ErrDuplicateID    = errors.New("request id already pending")
)

// Request is a validated page request. Only the fields of its Type are set.
type Request struct {
	ID   string
	Type RequestType

	Event      *nostr.Event // signEvent
	Peer       string       // nip04.*
	Plaintext  string       // nip04.encrypt
	Cyphertext string       // nip04.decrypt
}

// ParseRequest validates a raw frame of the form
//
//	{"id": "...", "extension": "ledgstr", "type": "...", "params": {...}}
//
// and rejects it before dispatch when anything required is missing.
func ParseRequest(raw []byte) (Request, error) {
	var req Request
	if !gjson.ValidBytes(raw) {
		return req, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}

	frame := gjson.ParseBytes(raw)
	if !frame.IsObject() {
		return req, fmt.Errorf("%w: not an object", ErrMalformedFrame)
	}
	if frame.Get("extension").String() != Extension {
		return req, ErrForeignFrame
	}

	id := frame.Get("id")
	if id.Type != gjson.String || id.Str == "" {
		return req, fmt.Errorf("%w: missing id", ErrMalformedFrame)
	}
	req.ID = id.Str
	req.Type = RequestType(frame.Get("type").String())
	params := frame.Get("params")

	switch req.Type {
	case TypeGetPublicKey:
	case TypeSignEvent:
		event := params.Get("event")
		if !event.IsObject() {
			return req, fmt.Errorf("%w: %s needs params.event", ErrMalformedFrame, req.Type)
		}
		var evt nostr.Event
		if err := json.Unmarshal([]byte(event.Raw), &evt); err != nil {
			return req, fmt.Errorf("%w: event: %v", ErrMalformedFrame, err)
		}
		req.Event = &evt
	case TypeEncrypt:
		var err error
		if req.Peer, err = stringParam(params, "peer"); err != nil {
			return req, err
		}
		if req.Plaintext, err = stringParam(params, "plaintext"); err != nil {
			return req, err
		}
	case TypeDecrypt:
		var err error
		if req.Peer, err = stringParam(params, "peer"); err != nil {
			return req, err
		}
		if req.Cyphertext, err = stringParam(params, "cyphertext"); err != nil {
			return req, err
		}
	default:
		return req, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}

	return req, nil
}

func stringParam(params gjson.Result, name string) (string, error) {
	v := params.Get(name)
	if v.Type != gjson.String {
		return "", fmt.Errorf("%w: params.%s must be a string", ErrMalformedFrame, name)
	}
	return v.Str, nil
}

// Response answers one Request. Result is the operation's value, or an
// ErrorBody when it failed.
type Response struct {
	ID        string `json:"id"`
	Extension string `json:"extension"`
	Result    any    `json:"response"`
}

type ErrorBody struct {
	Error ErrorMessage `json:"error"`
}

type ErrorMessage struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// Err returns the failure carried by r, if any.
func (r Response) Err() error {
	if body, ok := r.Result.(ErrorBody); ok {
		return errors.New(body.Error.Message)
	}
	return nil
}

// Info reports a connection state change while a request is running.
type Info struct {
	ID        string `json:"id"`
	Extension string `json:"extension"`
	Type      string `json:"type"`
	State     string `json:"params"`
}
