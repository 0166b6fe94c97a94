// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v3"

	"github.com/luxfi/ledgstr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func confirmFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "confirm",
		Usage:   "ask for confirmation on the device before signing",
		Sources: cli.EnvVars("LEDGSTR_CONFIRM_SIGNING"),
	}
}

// PubkeyCommand creates the pubkey command
func PubkeyCommand() *cli.Command {
	return &cli.Command{
		Name:  "pubkey",
		Usage: "Print the public key held by the device",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "bech32",
				Usage: "print the key as an npub",
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "show the key on the device",
			},
		},
		Action: runPubkeyCommand,
	}
}

func runPubkeyCommand(ctx context.Context, cmd *cli.Command) error {
	format := ledgstr.FormatHex
	if cmd.Bool("bech32") {
		format = ledgstr.FormatBech32
	}

	signer := ledgstr.NewSigner(newAdmin())
	pk, err := signer.GetPublicKeyWith(progressTo(cmd), format, cmd.Bool("verify"))
	if err != nil {
		return fmt.Errorf("failed to get public key: %w", err)
	}

	fmt.Fprintln(cmd.Root().Writer, pk)
	return nil
}

// SignCommand creates the sign command
func SignCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Complete and sign a Nostr event",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "event",
				Usage:    "event JSON, or - to read it from stdin",
				Required: true,
			},
			confirmFlag(),
		},
		Action: runSignCommand,
	}
}

func runSignCommand(ctx context.Context, cmd *cli.Command) error {
	raw := []byte(cmd.String("event"))
	if cmd.String("event") == "-" {
		var err error
		if raw, err = io.ReadAll(cmd.Root().Reader); err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
	}

	var evt nostr.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}

	signer := ledgstr.NewSigner(newAdmin(), ledgstr.WithConfirmSigning(cmd.Bool("confirm")))
	signed, err := signer.SignEvent(progressTo(cmd), &evt)
	if err != nil {
		return fmt.Errorf("failed to sign event: %w", err)
	}

	output, err := json.Marshal(signed)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	fmt.Fprintln(cmd.Root().Writer, string(output))
	return nil
}

// EncryptCommand creates the encrypt command
func EncryptCommand() *cli.Command {
	return &cli.Command{
		Name:  "encrypt",
		Usage: "Encrypt a NIP-04 message for a peer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "peer",
				Usage:    "peer public key (hex)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "plaintext",
				Usage:    "message to encrypt",
				Required: true,
			},
		},
		Action: runEncryptCommand,
	}
}

func runEncryptCommand(ctx context.Context, cmd *cli.Command) error {
	signer := ledgstr.NewSigner(newAdmin())
	wire, err := signer.Encrypt(progressTo(cmd), cmd.String("peer"), cmd.String("plaintext"))
	if err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}

	fmt.Fprintln(cmd.Root().Writer, wire)
	return nil
}

// DecryptCommand creates the decrypt command
func DecryptCommand() *cli.Command {
	return &cli.Command{
		Name:  "decrypt",
		Usage: "Decrypt a NIP-04 message from a peer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "peer",
				Usage:    "peer public key (hex)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "cyphertext",
				Usage:    "message in <base64>?iv=<base64> form",
				Required: true,
			},
		},
		Action: runDecryptCommand,
	}
}

func runDecryptCommand(ctx context.Context, cmd *cli.Command) error {
	signer := ledgstr.NewSigner(newAdmin())
	plaintext, err := signer.Decrypt(progressTo(cmd), cmd.String("peer"), cmd.String("cyphertext"))
	if err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}
	if strings.HasPrefix(plaintext, ledgstr.DecryptFailurePrefix) {
		return errors.New(plaintext)
	}

	fmt.Fprintln(cmd.Root().Writer, plaintext)
	return nil
}

func progressTo(cmd *cli.Command) ledgstr.ProgressFunc {
	w := cmd.Root().ErrWriter
	return func(state ledgstr.ConnectionState) {
		fmt.Fprintf(w, "ledger: %s\n", state)
	}
}
