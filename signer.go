// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import "github.com/nbd-wtf/go-nostr"

// Signer runs each Nostr operation in its own device session.
//
// Signer does not serialize calls. Only one session may hold the device at a
// time, so concurrent callers must hold a lock around each call.
type Signer struct {
	admin          LedgerAdmin
	confirmSigning bool
}

type Option func(*Signer)

// WithConfirmSigning makes the device ask for confirmation before signing.
func WithConfirmSigning(confirm bool) Option {
	return func(s *Signer) {
		s.confirmSigning = confirm
	}
}

func NewSigner(admin LedgerAdmin, opts ...Option) *Signer {
	s := &Signer{admin: admin}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Signer) ConfirmSigning() bool {
	return s.confirmSigning
}

func (s *Signer) GetPublicKey(progress ProgressFunc, format KeyFormat) (string, error) {
	return s.GetPublicKeyWith(progress, format, false)
}

// GetPublicKeyWith reads the public key, showing it on the device for the
// user to check when validate is set.
func (s *Signer) GetPublicKeyWith(progress ProgressFunc, format KeyFormat, validate bool) (string, error) {
	return WithSession(s.admin, progress, func(session *Session) (string, error) {
		return GetPublicKey(session, format, validate)
	})
}

// SignEvent signs evt in place using the configured confirmation mode.
func (s *Signer) SignEvent(progress ProgressFunc, evt *nostr.Event) (*nostr.Event, error) {
	return s.SignEventWith(progress, evt, s.confirmSigning)
}

func (s *Signer) SignEventWith(progress ProgressFunc, evt *nostr.Event, confirm bool) (*nostr.Event, error) {
	return WithSession(s.admin, progress, func(session *Session) (*nostr.Event, error) {
		return SignEvent(session, evt, confirm)
	})
}

func (s *Signer) Encrypt(progress ProgressFunc, peer, plaintext string) (string, error) {
	return WithSession(s.admin, progress, func(session *Session) (string, error) {
		return Encrypt(session, peer, plaintext)
	})
}

// Decrypt only returns an error for session conditions (no device, locked,
// outdated app). Decryption faults come back as a DecryptFailurePrefix message.
func (s *Signer) Decrypt(progress ProgressFunc, peer, cyphertext string) (string, error) {
	return WithSession(s.admin, progress, func(session *Session) (string, error) {
		return Decrypt(session, peer, cyphertext), nil
	})
}
