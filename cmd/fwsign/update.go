// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/fwsign/lib/updater"
	"github.com/usedbytes/log"
)

func updateAction(ctx *cli.Context) error {
	signer, cfg, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	fname, data, err := readInput(ctx, "SIGNED_FILE")
	if err != nil {
		return err
	}

	info, err := signer.Verify(data)
	if err != nil {
		if !ctx.Bool("force") {
			return err
		}
		log.Println("WARNING:", err)

		info, err = signer.Layout.ReadInfo(data)
		if err != nil {
			return err
		}
	}
	log.Printf("Sending %s (version 0x%08x, %d bytes)\n", fname, info.Version, len(data))

	port := cfg.Serial.Port
	if ctx.IsSet("port") {
		port = ctx.String("port")
	}

	baud := cfg.Serial.Baud
	if ctx.IsSet("baud") {
		baud = ctx.Int("baud")
	}

	opts := updater.DefaultOptions
	if cfg.Serial.TimeoutMs > 0 {
		opts.Timeout = time.Duration(cfg.Serial.TimeoutMs) * time.Millisecond
		opts.SyncTimeout = opts.Timeout
	}
	if cfg.Serial.EraseMs > 0 {
		opts.EraseDelay = time.Duration(cfg.Serial.EraseMs) * time.Millisecond
	}
	opts.Progress = !ctx.Bool("verbose") && isatty.IsTerminal(os.Stderr.Fd())

	p, err := updater.OpenSerial(port, baud)
	if err != nil {
		return err
	}

	u := updater.New(p, opts)
	defer u.Close()

	bg, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	return u.Update(bg, data, byte(info.DeviceID))
}
