// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"errors"
	"fmt"
)

// Kinds of classified conditions a caller can tell apart.
const (
	KindUSBNotAuthorized      = "USBNotAuthorized"
	KindUSBNotConnected       = "USBNotConnected"
	KindDeviceLocked          = "DeviceLocked"
	KindRequireUpdate         = "RequireUpdate"
	KindApplicationNotPresent = "ApplicationNotPresent"
	KindUnknown               = "Unknown"
)

// LedgerError is a classified device condition. Two LedgerErrors match under
// errors.Is when their kinds are equal, so the exported sentinels below can be
// used as targets regardless of the wrapped cause.
type LedgerError struct {
	Kind string
	Err  error
}

func (e *LedgerError) Error() string {
	if e.Err == nil {
		return e.Kind
	}
	return e.Kind + ": " + e.Err.Error()
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Kind == e.Kind
}

var (
	ErrUSBNotAuthorized      = &LedgerError{Kind: KindUSBNotAuthorized}
	ErrUSBNotConnected       = &LedgerError{Kind: KindUSBNotConnected}
	ErrDeviceLocked          = &LedgerError{Kind: KindDeviceLocked}
	ErrRequireUpdate         = &LedgerError{Kind: KindRequireUpdate}
	ErrApplicationNotPresent = &LedgerError{Kind: KindApplicationNotPresent}
	ErrUnknown               = &LedgerError{Kind: KindUnknown}
)

var (
	ErrInvalidAppFormat = errors.New("getAppAndVersion: format not supported")
	ErrSessionClosed    = errors.New("device session already closed")
	ErrResultCount      = errors.New("ledger must return only 1 data for this command")
	ErrInvalidEnvelope  = errors.New("invalid envelope")
)

// EventError reports an event that failed validation before signing.
type EventError struct {
	Message string
	Reason  string
}

func (e *EventError) Error() string {
	if e.Reason == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Reason)
}

func invalidEvent(format string, args ...any) *EventError {
	return &EventError{Message: "invalid event", Reason: fmt.Sprintf(format, args...)}
}

// classify maps device status faults to LedgerErrors. Anything else is returned untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var le *LedgerError
	if errors.As(err, &le) {
		return err
	}

	var se *StatusError
	if !errors.As(err, &se) {
		return err
	}

	switch se.Code {
	case StatusLockedDevice:
		return &LedgerError{Kind: KindDeviceLocked, Err: err}
	case StatusApplicationNotPresent:
		return &LedgerError{Kind: KindApplicationNotPresent, Err: err}
	default:
		return &LedgerError{Kind: KindUnknown, Err: err}
	}
}
