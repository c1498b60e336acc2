// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/fwsign/lib/artifact"
	"github.com/usedbytes/fwsign/lib/config"
	"github.com/usedbytes/fwsign/lib/image"
	"github.com/usedbytes/log"
)

func signAction(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return errors.New("INPUT_FILE and VERSION are required")
	}

	// Check arguments before touching any files
	version, err := parseVersion(ctx.Args().Get(1))
	if err != nil {
		return err
	}

	signer, _, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	fname, raw, err := readInput(ctx, "INPUT_FILE")
	if err != nil {
		return err
	}
	log.Verbosef("Read %s (%d bytes)\n", fname, len(raw))

	res, err := signer.Sign(raw, version)
	if err != nil {
		return errors.Wrapf(err, "signing '%s'", fname)
	}

	outDir := ctx.String("out-dir")
	signedName := ctx.String("output")
	if signedName == "" {
		signedName = outputName(fname, outDir, ".signed.bin")
	}
	viewName := outputName(fname, outDir, ".view.bin")
	encName := outputName(fname, outDir, ".enc.bin")

	set := &artifact.Set{}
	set.Add(viewName, res.View, 0644)
	set.Add(encName, res.Ciphertext, 0644)

	if !ctx.Bool("no-manifest") {
		m := config.NewManifest(res.Info, res.MAC, res.Signed)
		m.SignedFile = filepath.Base(signedName)
		m.ViewFile = filepath.Base(viewName)
		m.CiphertextFile = filepath.Base(encName)

		data, err := m.EncodeTOML()
		if err != nil {
			return errors.Wrap(err, "encoding manifest")
		}
		set.Add(outputName(signedName, "", ".toml"), data, 0644)
		log.Verbosef("%s", m)
	}

	// Renamed last, so a failed commit can't leave a signed image
	// without its manifest
	set.Add(signedName, res.Signed, 0644)

	err = set.Commit()
	if err != nil {
		return err
	}

	for _, name := range set.Names() {
		log.Println("Wrote", name)
	}

	log.Printf("Version: 0x%08x\n", version)
	log.Printf("Key: %s\n", signer.Params.Key)
	log.Printf("MAC: %s\n", res.MAC)

	return nil
}

func verifyAction(ctx *cli.Context) error {
	signer, _, err := loadSigner(ctx)
	if err != nil {
		return err
	}

	fname, data, err := readInput(ctx, "SIGNED_FILE")
	if err != nil {
		return err
	}

	info, err := signer.Verify(data)
	if err != nil {
		return errors.Wrapf(err, "verifying '%s'", fname)
	}
	log.Verbosef("%s", info)

	if ctx.IsSet("manifest") {
		m, err := config.LoadManifest(ctx.String("manifest"))
		if err != nil {
			return err
		}

		err = m.Check(data)
		if err != nil {
			return err
		}

		sig := signer.Layout.Signature()
		if hex.EncodeToString(data[sig.Offset:sig.End()]) != m.MAC {
			return errors.Errorf("manifest MAC %s doesn't match image %x", m.MAC, data[sig.Offset:sig.End()])
		}
	}

	log.Printf("%s: OK (version 0x%08x, %d bytes)\n", fname, info.Version, info.Length)

	return nil
}

func infoAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	l := cfg.FirmwareLayout()

	fname, data, err := readInput(ctx, "FILE")
	if err != nil {
		return err
	}

	var img *image.Image
	if ctx.Bool("raw") {
		img, err = image.StripBootloader(data, l)
	} else {
		img, err = image.NewApplication(data, l)
	}
	if err != nil {
		return errors.Wrapf(err, "reading '%s'", fname)
	}

	info, err := img.Info()
	if err != nil {
		return err
	}

	log.Verbosef("%s", l)
	log.Printf("%s", info)
	log.Printf("Signature: %x\n", img.Signature())
	log.Printf("CheckCRC: 0x%04x\n", config.CheckCRC(img.Bytes()))

	if !l.SentinelOK(info) {
		log.Printf("WARNING: sentinel should be 0x%08x\n", l.Sentinel)
	}

	if int(info.Length) != img.Len() {
		log.Printf("WARNING: length field doesn't match application length %d\n", img.Len())
	}

	return nil
}

func padAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	fname, data, err := readInput(ctx, "BOOTLOADER_FILE")
	if err != nil {
		return err
	}

	padded, err := image.PadBootloader(data, cfg.Layout.BootloaderSize)
	if err != nil {
		return errors.Wrapf(err, "padding '%s'", fname)
	}

	out := ctx.String("output")
	if out == "" {
		out = fname
	}

	err = artifact.WriteFile(out, padded, 0644)
	if err != nil {
		return err
	}

	log.Printf("Padded %s from %d to %d bytes\n", out, len(data), len(padded))

	return nil
}

func configAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	data, err := cfg.EncodeTOML()
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(data)
	return err
}
