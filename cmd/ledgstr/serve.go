// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/coder/websocket"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/gjson"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/luxfi/ledgstr"
	"github.com/luxfi/ledgstr/provider"
)

const writeTimeout = 5 * time.Second

// ServeCommand creates the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Answer page requests over a local WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Usage:   "address to listen on",
				Value:   "127.0.0.1:7787",
				Sources: cli.EnvVars("LEDGSTR_LISTEN"),
			},
			&cli.StringSliceFlag{
				Name:  "origin",
				Usage: "page origins allowed to connect (host patterns)",
			},
			&cli.DurationFlag{
				Name:  "slow-after",
				Usage: "notify the page when a request waits on the device this long",
				Value: 2 * time.Second,
			},
			confirmFlag(),
		},
		Action: runServeCommand,
	}
}

func runServeCommand(ctx context.Context, cmd *cli.Command) error {
	signer := ledgstr.NewSigner(newAdmin(), ledgstr.WithConfirmSigning(cmd.Bool("confirm")))
	b := newBridge(signer, cmd.StringSlice("origin"), cmd.Duration("slow-after"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	server := &http.Server{
		Addr:              cmd.String("listen"),
		Handler:           b,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		b.log.Infof("listening on ws://%s", server.Addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// bridge relays page frames between WebSocket connections and one provider
// Service, so requests from every connection share the device queue.
type bridge struct {
	service *provider.Service
	origins []string
	log     *zap.SugaredLogger

	// request id -> connection that sent it, for info and slow notices
	owners *xsync.MapOf[string, *websocket.Conn]
}

func newBridge(signer *ledgstr.Signer, origins []string, slowAfter time.Duration) *bridge {
	b := &bridge{
		origins: origins,
		log:     ledgstr.Logger().Named("bridge"),
		owners:  xsync.NewMapOf[string, *websocket.Conn](),
	}
	b.service = provider.NewService(signer,
		provider.WithLogger(b.log),
		provider.WithInfo(b.notify),
		provider.WithSlowHook(slowAfter, func(req provider.Request) {
			b.log.Infof("request %s is waiting for the device", req.ID)
			b.notify(provider.Info{ID: req.ID, Extension: provider.Extension, Type: "slow"})
		}),
	)
	return b
}

func (b *bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: b.origins})
	if err != nil {
		b.log.Warnf("rejected connection from %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	b.log.Debugf("connection from %s", r.RemoteAddr)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				b.log.Debugf("connection from %s ended: %v", r.RemoteAddr, err)
			}
			return
		}
		go b.relay(ctx, conn, data)
	}
}

func (b *bridge) relay(ctx context.Context, conn *websocket.Conn, frame []byte) {
	id := gjson.GetBytes(frame, "id").String()
	if id != "" {
		if _, loaded := b.owners.LoadOrStore(id, conn); loaded {
			b.log.Warnf("dropping frame: request %s already pending", id)
			return
		}
		defer b.owners.Delete(id)
	}

	out, err := b.service.HandleFrame(ctx, frame)
	switch {
	case errors.Is(err, provider.ErrForeignFrame):
		return
	case err != nil:
		b.log.Warnf("dropping frame %q: %v", id, err)
		return
	}

	b.write(conn, out)
}

func (b *bridge) notify(info provider.Info) {
	conn, ok := b.owners.Load(info.ID)
	if !ok {
		return
	}
	out, err := json.Marshal(info)
	if err != nil {
		b.log.Warnf("failed to marshal info: %v", err)
		return
	}
	b.write(conn, out)
}

func (b *bridge) write(conn *websocket.Conn, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		b.log.Debugf("failed to write frame: %v", err)
	}
}
