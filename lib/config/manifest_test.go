// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/usedbytes/fwsign/lib/layout"
	"github.com/usedbytes/fwsign/lib/mac"
)

func TestCheckCRC(t *testing.T) {
	// CRC-16/XMODEM check value
	require.Equal(t, uint16(0x31c3), CheckCRC([]byte("123456789")))
}

func TestManifest(t *testing.T) {
	signed := make([]byte, 0x240)
	info := layout.FirmwareInfo{
		Sentinel: 0xdeadc0de,
		DeviceID: 0x42,
		Version:  0x0102,
		Length:   0x240,
	}

	m := NewManifest(info, mac.DefaultKey, signed)
	m.SignedFile = "firmware.signed.bin"
	require.NoError(t, m.Check(signed))
	require.Equal(t, "000102030405060708090a0b0c0d0e0f", m.MAC)

	data, err := m.EncodeTOML()
	require.NoError(t, err)

	fname := filepath.Join(t.TempDir(), "firmware.signed.toml")
	require.NoError(t, os.WriteFile(fname, data, 0644))

	loaded, err := LoadManifest(fname)
	require.NoError(t, err)
	require.Equal(t, m, loaded)

	signed[0x10] = 1
	require.Error(t, loaded.Check(signed))
	require.Error(t, loaded.Check(signed[:0x200]))
}
