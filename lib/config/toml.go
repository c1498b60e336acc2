// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"bytes"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/usedbytes/fwsign/lib/layout"
	"github.com/usedbytes/fwsign/lib/mac"
)

// LoadConfig reads filename over the top of Default(), so a config file
// only needs the keys it wants to change.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	md, err := toml.DecodeFile(filename, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "loading config '%s'", filename)
	}

	if undec := md.Undecoded(); len(undec) != 0 {
		return nil, errors.Errorf("unrecognised config key '%s'", undec[0].String())
	}

	err = cfg.Validate()
	if err != nil {
		return nil, errors.Wrapf(err, "config '%s'", filename)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	_, err := c.MACParams()
	if err != nil {
		return err
	}

	switch c.Signing.Padding {
	case mac.PKCS7, mac.NoPadding:
	default:
		return errors.Errorf("unrecognised padding: %s", c.Signing.Padding)
	}

	err = c.FirmwareLayout().Validate()
	if err != nil {
		return err
	}

	if c.Serial.Baud < 0 || c.Serial.TimeoutMs < 0 || c.Serial.EraseMs < 0 {
		return errors.New("serial settings can't be negative")
	}

	return nil
}

func (c *Config) MACParams() (mac.Params, error) {
	key, err := mac.ParseBlock(c.Signing.Key)
	if err != nil {
		return mac.Params{}, errors.Wrap(err, "signing key")
	}

	iv, err := mac.ParseBlock(c.Signing.IV)
	if err != nil {
		return mac.Params{}, errors.Wrap(err, "signing iv")
	}

	return mac.Params{Key: key, IV: iv}, nil
}

func (c *Config) Encrypter() mac.Encrypter {
	return mac.AESCBC{Padding: c.Signing.Padding}
}

func (c *Config) FirmwareLayout() layout.Layout {
	return layout.Layout{
		BootloaderSize:    c.Layout.BootloaderSize,
		FWInfoOffset:      c.Layout.FWInfoOffset,
		Sentinel:          c.Layout.Sentinel,
		MaxFirmwareLength: c.Layout.MaxFirmwareLength,
	}
}

func (c *Config) EncodeTOML() ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := toml.NewEncoder(buf)
	err := enc.Encode(c)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
