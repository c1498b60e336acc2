// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package layout

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRegions(t *testing.T) {
	l := Default
	require.NoError(t, l.Validate())

	require.Equal(t, Region{0, 0x1b0}, l.VectorTable())
	require.Equal(t, Region{0x1b0, 16}, l.FWInfo())
	require.Equal(t, Region{0x1c0, 16}, l.Signature())
	require.Equal(t, Region{0x1d0, 0x30}, l.Body(0x200))

	require.Equal(t, 0x1b8, l.VersionField().Offset)
	require.Equal(t, 0x1bc, l.LengthField().Offset)
	require.Equal(t, 0x1d0, l.MinAppLength())
	require.Equal(t, 0x8000+0x1d0, l.MinRawLength())
}

func TestFWInfoIsOneBlock(t *testing.T) {
	l := Default
	require.Equal(t, BlockSize, l.FWInfo().Size)
	require.Equal(t, l.FWInfo().End(), l.Signature().Offset)
	require.Equal(t, l.FWInfo().End(), l.LengthField().End())
}

func TestValidate(t *testing.T) {
	l := Default
	l.FWInfoOffset = 0x1b4
	require.Error(t, l.Validate())

	l = Default
	l.BootloaderSize = 0
	require.Error(t, l.Validate())

	l = Default
	l.MaxFirmwareLength = 0x100
	require.Error(t, l.Validate())
}

func TestReadWriteInfo(t *testing.T) {
	l := Default
	app := make([]byte, 0x400)
	copy(app[0x1b0:], []byte{0xde, 0xc0, 0xad, 0xde, 0x42, 0, 0, 0})

	l.WriteVersion(app, 0x00010203)
	l.WriteLength(app, uint32(len(app)))

	info, err := l.ReadInfo(app)
	require.NoError(t, err)
	require.True(t, l.SentinelOK(info))
	require.Equal(t, FirmwareInfo{
		Sentinel: 0xdeadc0de,
		DeviceID: 0x42,
		Version:  0x00010203,
		Length:   0x400,
	}, info)

	require.Equal(t, []byte{0x03, 0x02, 0x01, 0x00}, app[0x1b8:0x1bc])
}

func TestReadInfoShort(t *testing.T) {
	_, err := Default.ReadInfo(make([]byte, 0x1cf))
	require.Error(t, err)
}
