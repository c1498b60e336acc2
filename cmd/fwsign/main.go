// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"github.com/usedbytes/fwsign/lib/config"
	"github.com/usedbytes/fwsign/lib/sign"
	"github.com/usedbytes/log"
)

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	if !ctx.IsSet("config") {
		return config.Default(), nil
	}

	return config.LoadConfig(ctx.String("config"))
}

func loadSigner(ctx *cli.Context) (*sign.Signer, *config.Config, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	params, err := cfg.MACParams()
	if err != nil {
		return nil, nil, err
	}

	return sign.NewSigner(cfg.FirmwareLayout(), params, cfg.Encrypter()), cfg, nil
}

func parseVersion(str string) (uint32, error) {
	str = strings.TrimPrefix(strings.ToLower(str), "0x")
	if len(str) == 0 {
		return 0, errors.New("VERSION is required")
	}

	v, err := strconv.ParseUint(str, 16, 32)
	if err != nil {
		return 0, errors.Errorf("VERSION must be a 32-bit hex number, got '%s'", str)
	}

	return uint32(v), nil
}

func readInput(ctx *cli.Context, what string) (string, []byte, error) {
	if ctx.Args().Len() < 1 {
		return "", nil, errors.Errorf("%s is required", what)
	}
	fname := ctx.Args().First()

	data, err := ioutil.ReadFile(fname)
	if err != nil {
		return fname, nil, errors.Wrap(err, "reading input file")
	}

	return fname, data, nil
}

// outputName puts suffix on the input file name, minus its extension, in
// dir (or next to the input if dir is empty).
func outputName(input, dir, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+suffix)
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "fwsign",
		Usage: "Sign, check and flash firmware images for the AES-CBC-MAC bootloader",
		// Just ignore errors - we'll handle them ourselves in main()
		ExitErrHandler: func(c *cli.Context, e error) {},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "verbose",
				Aliases:  []string{"v"},
				Usage:    "Enable more output",
				Required: false,
				Value:    false,
			},
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "TOML file overriding the default key, layout and serial settings",
				Required: false,
			},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "sign",
			Usage:     "Strip the bootloader from a build artifact and sign the application",
			ArgsUsage: "INPUT_FILE VERSION",
			Action:    signAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Signed image file name (default: INPUT_FILE.signed.bin)",
				},
				&cli.StringFlag{
					Name:  "out-dir",
					Usage: "Directory for the signing view, ciphertext and manifest (default: next to INPUT_FILE)",
				},
				&cli.BoolFlag{
					Name:  "no-manifest",
					Usage: "Don't write the TOML manifest",
				},
			},
		},
		{
			Name:      "verify",
			Usage:     "Check the signature of a signed image",
			ArgsUsage: "SIGNED_FILE",
			Action:    verifyAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "manifest",
					Aliases: []string{"m"},
					Usage:   "Also check against a manifest written by 'sign'",
				},
			},
		},
		{
			Name:      "info",
			Usage:     "Print the FirmwareInfo block and signature of an image",
			ArgsUsage: "FILE",
			Action:    infoAction,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "raw",
					Usage: "FILE is a build artifact which still has its bootloader",
				},
			},
		},
		{
			Name:      "pad",
			Usage:     "Pad a bootloader binary with 0xff to fill its slot",
			ArgsUsage: "BOOTLOADER_FILE",
			Action:    padAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "Write here instead of padding in place",
				},
			},
		},
		{
			Name:      "update",
			Usage:     "Send a signed image to the bootloader over a serial port",
			ArgsUsage: "SIGNED_FILE",
			Action:    updateAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "port",
					Aliases: []string{"p"},
					Usage:   "Serial port (default from config)",
				},
				&cli.IntFlag{
					Name:    "baud",
					Aliases: []string{"b"},
					Usage:   "Baud rate (default from config)",
				},
				&cli.BoolFlag{
					Name:  "force",
					Usage: "Send the image even if its signature doesn't verify",
				},
			},
		},
		{
			Name:   "config",
			Usage:  "Print the effective configuration as TOML",
			Action: configAction,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		log.SetUseLog(false)

		log.SetVerbose(ctx.Bool("verbose"))
		log.Verboseln("Extra output enabled.")
		return nil
	}

	return app
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Println("ERROR:", err)
		if v, ok := err.(cli.ExitCoder); ok {
			os.Exit(v.ExitCode())
		} else {
			os.Exit(1)
		}
	}
}
