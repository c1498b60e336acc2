// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	"github.com/usedbytes/fwsign/lib/layout"
	"github.com/usedbytes/fwsign/lib/mac"
)

// Manifest describes one signing run. It's written next to the signed
// image.
type Manifest struct {
	Version  uint32 `toml:"version"`
	DeviceID uint32 `toml:"device_id"`
	Length   uint32 `toml:"length"`
	MAC      string `toml:"mac"`
	// XMODEM CRC of the signed image, for checking transfers
	CheckCRC uint16 `toml:"check_crc"`

	SignedFile     string `toml:"signed_file,omitempty"`
	ViewFile       string `toml:"view_file,omitempty"`
	CiphertextFile string `toml:"ciphertext_file,omitempty"`
}

var crct = crc16.MakeTable(crc16.CRC16_XMODEM)

func CheckCRC(data []byte) uint16 {
	return crc16.Checksum(data, crct)
}

func NewManifest(info layout.FirmwareInfo, tag mac.Block, signed []byte) *Manifest {
	return &Manifest{
		Version:  info.Version,
		DeviceID: info.DeviceID,
		Length:   info.Length,
		MAC:      tag.String(),
		CheckCRC: CheckCRC(signed),
	}
}

func (m *Manifest) String() string {
	var s string
	s += "Manifest:\n"
	s += fmt.Sprintf("   Version: 0x%08x\n", m.Version)
	s += fmt.Sprintf("   DeviceID: 0x%02x\n", m.DeviceID)
	s += fmt.Sprintf("   Length: %d (0x%x) bytes\n", m.Length, m.Length)
	s += stringIfNotEmpty("   MAC:", m.MAC)
	s += fmt.Sprintf("   CheckCRC: 0x%04x\n", m.CheckCRC)
	s += stringIfNotEmpty("   SignedFile:", m.SignedFile)
	s += stringIfNotEmpty("   ViewFile:", m.ViewFile)
	s += stringIfNotEmpty("   CiphertextFile:", m.CiphertextFile)
	return s
}

func (m *Manifest) EncodeTOML() ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := toml.NewEncoder(buf)
	err := enc.Encode(m)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func LoadManifest(filename string) (*Manifest, error) {
	var m Manifest
	_, err := toml.DecodeFile(filename, &m)
	if err != nil {
		return nil, errors.Wrapf(err, "loading manifest '%s'", filename)
	}

	return &m, nil
}

// Check compares a signed image against the manifest.
func (m *Manifest) Check(signed []byte) error {
	if int(m.Length) != len(signed) {
		return errors.Errorf("manifest length %d, image is %d bytes", m.Length, len(signed))
	}

	crc := CheckCRC(signed)
	if crc != m.CheckCRC {
		return errors.Errorf("manifest check_crc 0x%04x, image has 0x%04x", m.CheckCRC, crc)
	}

	return nil
}
