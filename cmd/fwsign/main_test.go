// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want uint32
	}{
		{"1", 1},
		{"0x00010203", 0x00010203},
		{"0XDEADBEEF", 0xdeadbeef},
		{"ffffffff", 0xffffffff},
	} {
		v, err := parseVersion(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, v, tc.in)
	}

	for _, bad := range []string{"", "0x", "100000000", "12g4", "-1"} {
		_, err := parseVersion(bad)
		assert.Error(t, err, bad)
	}
}

func TestOutputName(t *testing.T) {
	in := filepath.Join("build", "firmware.bin")

	assert.Equal(t, filepath.Join("build", "firmware.signed.bin"), outputName(in, "", ".signed.bin"))
	assert.Equal(t, filepath.Join("out", "firmware.enc.bin"), outputName(in, "out", ".enc.bin"))
	assert.Equal(t, filepath.Join("build", "firmware.signed.toml"),
		outputName(filepath.Join("build", "firmware.signed.bin"), "", ".toml"))
	assert.Equal(t, "noext.view.bin", outputName("noext", "", ".view.bin"))
}
