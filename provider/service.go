// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/luxfi/ledgstr"
)

const pubkeyFailure = "Unable to get the pubkey, check your device"

// Service answers page requests with a Ledger. Requests are queued and run
// one at a time so that only one device session is ever open.
type Service struct {
	signer  *ledgstr.Signer
	log     *zap.SugaredLogger
	queue   sync.Mutex
	pending *xsync.MapOf[string, chan Response]

	onInfo    func(Info)
	onSlow    func(Request)
	slowAfter time.Duration

	pubkeyMu sync.Mutex
	pubkey   string
}

type Option func(*Service)

// WithInfo receives the connection states of running requests.
func WithInfo(fn func(Info)) Option {
	return func(s *Service) {
		s.onInfo = fn
	}
}

// WithSlowHook calls fn when a request has been running for d. The request
// keeps running.
func WithSlowHook(d time.Duration, fn func(Request)) Option {
	return func(s *Service) {
		s.slowAfter, s.onSlow = d, fn
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *Service) {
		s.log = logger
	}
}

func NewService(signer *ledgstr.Signer, opts ...Option) *Service {
	s := &Service{
		signer:  signer,
		log:     ledgstr.Logger().Named("provider"),
		pending: xsync.NewMapOf[string, chan Response](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pending returns the number of requests waiting for a response.
func (s *Service) Pending() int {
	return s.pending.Size()
}

// Submit queues req. Its Response is delivered once on the returned channel.
func (s *Service) Submit(req Request) (<-chan Response, error) {
	ch := make(chan Response, 1)
	if _, loaded := s.pending.LoadOrStore(req.ID, ch); loaded {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
	}

	go func() {
		resp := s.handle(req)
		if waiter, ok := s.pending.LoadAndDelete(req.ID); ok {
			waiter <- resp
		}
	}()
	return ch, nil
}

// Call submits req and waits for its Response. Cancelling ctx stops the wait,
// not the device exchange.
func (s *Service) Call(ctx context.Context, req Request) (Response, error) {
	ch, err := s.Submit(req)
	if err != nil {
		return Response{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		s.pending.Delete(req.ID)
		return Response{}, ctx.Err()
	}
}

// HandleFrame parses a raw page frame, runs it and returns the encoded response.
func (s *Service) HandleFrame(ctx context.Context, raw []byte) ([]byte, error) {
	req, err := ParseRequest(raw)
	if err != nil {
		return nil, err
	}

	resp, err := s.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (s *Service) handle(req Request) Response {
	s.queue.Lock()
	defer s.queue.Unlock()

	if s.onSlow != nil && s.slowAfter > 0 {
		timer := time.AfterFunc(s.slowAfter, func() { s.onSlow(req) })
		defer timer.Stop()
	}

	progress := func(state ledgstr.ConnectionState) {
		if s.onInfo != nil {
			s.onInfo(Info{ID: req.ID, Extension: Extension, Type: "info", State: state.String()})
		}
	}

	s.log.Debugf("request %s: %s", req.ID, req.Type)
	result, err := s.dispatch(req, progress)
	if err != nil {
		s.log.Warnf("request %s (%s) failed: %v", req.ID, req.Type, err)
		return Response{ID: req.ID, Extension: Extension, Result: errorBody(req.Type, err)}
	}
	return Response{ID: req.ID, Extension: Extension, Result: result}
}

func (s *Service) dispatch(req Request, progress ledgstr.ProgressFunc) (any, error) {
	switch req.Type {
	case TypeGetPublicKey:
		return s.publicKey(progress)
	case TypeSignEvent:
		if req.Event == nil {
			return nil, fmt.Errorf("%w: missing event", ErrMalformedFrame)
		}
		return s.signer.SignEvent(progress, req.Event)
	case TypeEncrypt:
		return s.signer.Encrypt(progress, req.Peer, req.Plaintext)
	case TypeDecrypt:
		return s.signer.Decrypt(progress, req.Peer, req.Cyphertext)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
}

// publicKey reads the key once and reuses it for the life of the service.
func (s *Service) publicKey(progress ledgstr.ProgressFunc) (string, error) {
	s.pubkeyMu.Lock()
	defer s.pubkeyMu.Unlock()

	if s.pubkey != "" {
		return s.pubkey, nil
	}
	pk, err := s.signer.GetPublicKey(progress, ledgstr.FormatHex)
	if err != nil {
		return "", err
	}
	s.pubkey = pk
	return pk, nil
}

func errorBody(typ RequestType, err error) ErrorBody {
	msg := ErrorMessage{Message: err.Error()}

	var le *ledgstr.LedgerError
	var ee *ledgstr.EventError
	switch {
	case errors.As(err, &le):
		msg.Kind = le.Kind
		if typ == TypeGetPublicKey {
			msg.Message = pubkeyFailure
		}
	case errors.As(err, &ee):
		msg.Message = ee.Message
	}
	return ErrorBody{Error: msg}
}
