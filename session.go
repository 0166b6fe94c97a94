// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"fmt"

	"go.uber.org/multierr"
)

// ConnectionState is the progress of a device session as seen by the caller.
type ConnectionState int

const (
	Loading ConnectionState = iota
	NotConnected
	NotStarted
	RequireUpdate
	Started
)

func (c ConnectionState) String() string {
	switch c {
	case Loading:
		return "Loading"
	case NotConnected:
		return "NotConnected"
	case NotStarted:
		return "NotStarted"
	case RequireUpdate:
		return "RequireUpdate"
	case Started:
		return "Started"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(c))
	}
}

// ProgressFunc receives connection states. It runs synchronously: the session
// does not move on until it returns.
type ProgressFunc func(ConnectionState)

// Session owns one open device handle for the duration of a WithSession call.
type Session struct {
	device LedgerDevice
	closed bool
}

// Send exchanges one command and requires a 0x9000 status word.
// The reply is returned with its status word.
func (s *Session) Send(cmd Command) ([]byte, error) {
	return s.send(cmd, false)
}

func (s *Session) send(cmd Command, allowMoreData bool) ([]byte, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	return exchange(s.device, cmd, allowMoreData)
}

func (s *Session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.device.Close()
}

// MinAppMajorVersion is the oldest Nostr app major version the engine talks to.
const MinAppMajorVersion = 1

// WithSession opens the first Ledger found by admin, brings the Nostr app to
// the foreground and runs body against it. The device handle is closed exactly
// once before WithSession returns, whatever the outcome.
//
// No device visible reports NotConnected and returns ErrUSBNotAuthorized; a
// failed open returns ErrUSBNotConnected; an app older than
// MinAppMajorVersion reports RequireUpdate and returns ErrRequireUpdate.
// body only runs after Started was reported. Status word faults, from the
// lifecycle steps or from body, are classified into LedgerErrors.
func WithSession[T any](admin LedgerAdmin, progress ProgressFunc, body func(*Session) (T, error)) (result T, err error) {
	report := func(state ConnectionState) {
		log.Debugf("connection state: %s", state)
		if progress != nil {
			progress(state)
		}
	}

	if admin.CountDevices() == 0 {
		report(NotConnected)
		return result, ErrUSBNotAuthorized
	}

	device, err := admin.Connect(0)
	if err != nil || device == nil {
		log.Warnf("unable to open ledger: %v", err)
		return result, &LedgerError{Kind: KindUSBNotConnected, Err: err}
	}

	session := &Session{device: device}
	defer func() {
		if cerr := session.close(); cerr != nil {
			log.Warnf("closing ledger: %v", cerr)
			if err != nil {
				err = multierr.Append(err, cerr)
			}
		}
	}()

	report(Loading)

	app, err := ensureApp(session)
	if err != nil {
		report(NotStarted)
		err = classify(err)
		log.Warnf("ledger app not started: %v", err)
		return result, err
	}

	// An unparseable version has major 0 and is treated as outdated, where a
	// NaN comparison would have let it through.
	if app.VersionMajor < MinAppMajorVersion {
		report(RequireUpdate)
		return result, &LedgerError{Kind: KindRequireUpdate, Err: fmt.Errorf("%s is older than %d.0.0", app, MinAppMajorVersion)}
	}

	report(Started)
	result, err = body(session)
	return result, classify(err)
}
