// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package sign

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/usedbytes/fwsign/lib/image"
	"github.com/usedbytes/fwsign/lib/layout"
	"github.com/usedbytes/fwsign/lib/mac"
)

func buildArtifact(appLen int) []byte {
	raw := bytes.Repeat([]byte{0xff}, layout.BootloaderSize+appLen)
	app := raw[layout.BootloaderSize:]
	for i := range app {
		app[i] = byte(i ^ (i >> 8))
	}

	copy(app[0x1b0:], []byte{
		0xde, 0xc0, 0xad, 0xde,
		0x42, 0x00, 0x00, 0x00,
		0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff,
	})
	copy(app[0x1c0:0x1d0], make([]byte, 16))

	return raw
}

func defaultSigner() *Signer {
	return NewSigner(layout.Default, mac.DefaultParams, nil)
}

// independentMAC doesn't use anything from this repo except the offsets
func independentMAC(t *testing.T, signed []byte) []byte {
	view := append([]byte(nil), signed[0x1b0:0x1c0]...)
	view = append(view, signed[:0x1b0]...)
	view = append(view, signed[0x1d0:]...)

	n := 16 - len(view)%16
	view = append(view, bytes.Repeat([]byte{byte(n)}, n)...)

	key := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	cipher.NewCBCEncrypter(block, make([]byte, 16)).CryptBlocks(view, view)
	return view[len(view)-16:]
}

func TestSignRoundTrip(t *testing.T) {
	for _, appLen := range []int{0x1d0, 0x1d1, 0x400, 0x1235} {
		raw := buildArtifact(appLen)

		res, err := defaultSigner().Sign(raw, 0x42)
		require.NoError(t, err)

		require.Len(t, res.Signed, appLen)
		require.Equal(t, res.MAC[:], res.Signed[0x1c0:0x1d0])
		require.Equal(t, independentMAC(t, res.Signed), res.MAC[:])
		require.Equal(t, res.Ciphertext[len(res.Ciphertext)-16:], res.MAC[:])

		info, err := defaultSigner().Verify(res.Signed)
		require.NoError(t, err)
		require.Equal(t, uint32(0x42), info.Version)
		require.Equal(t, uint32(appLen), info.Length)
		require.Equal(t, uint32(0x42), info.DeviceID)
	}
}

func TestSignDeterministic(t *testing.T) {
	raw := buildArtifact(0x800)

	a, err := defaultSigner().Sign(raw, 7)
	require.NoError(t, err)
	b, err := defaultSigner().Sign(raw, 7)
	require.NoError(t, err)

	require.Equal(t, a.MAC, b.MAC)
	require.Equal(t, a.Signed, b.Signed)
	require.Equal(t, a.View, b.View)
}

func TestSignVersionChangesMAC(t *testing.T) {
	raw := buildArtifact(0x800)

	a, err := defaultSigner().Sign(raw, 1)
	require.NoError(t, err)
	b, err := defaultSigner().Sign(raw, 2)
	require.NoError(t, err)

	require.NotEqual(t, a.MAC, b.MAC)
}

func TestSignDoesNotModifyInput(t *testing.T) {
	raw := buildArtifact(0x300)
	orig := append([]byte(nil), raw...)

	_, err := defaultSigner().Sign(raw, 1)
	require.NoError(t, err)
	require.Equal(t, orig, raw)
}

func TestSignMetadata(t *testing.T) {
	raw := buildArtifact(0x2a4)

	res, err := defaultSigner().Sign(raw, 0x00000042)
	require.NoError(t, err)

	require.Equal(t, []byte{0xde, 0xc0, 0xad, 0xde}, res.Signed[0x1b0:0x1b4])
	require.Equal(t, []byte{0x42, 0x00, 0x00, 0x00}, res.Signed[0x1b8:0x1bc])
	require.Equal(t, uint32(len(res.Signed)), binary.LittleEndian.Uint32(res.Signed[0x1bc:0x1c0]))

	// The view starts with the patched FirmwareInfo block
	require.Equal(t, res.Signed[0x1b0:0x1c0], res.View[:16])
	require.Len(t, res.View, len(res.Signed)-16)
}

func TestSignTooShort(t *testing.T) {
	raw := buildArtifact(0x1d0)
	_, err := defaultSigner().Sign(raw[:len(raw)-1], 1)
	require.Equal(t, image.ErrTooShort, errors.Cause(err))
}

func TestSignTooLong(t *testing.T) {
	l := layout.Default
	l.MaxFirmwareLength = 0x400

	s := NewSigner(l, mac.DefaultParams, nil)
	_, err := s.Sign(buildArtifact(0x400), 1)
	require.NoError(t, err)

	_, err = s.Sign(buildArtifact(0x401), 1)
	require.Error(t, err)
}

func TestSignBadLayout(t *testing.T) {
	l := layout.Default
	l.FWInfoOffset = 0x1b1

	_, err := NewSigner(l, mac.DefaultParams, nil).Sign(buildArtifact(0x400), 1)
	require.Error(t, err)
}

func TestVerifyDetectsTampering(t *testing.T) {
	res, err := defaultSigner().Sign(buildArtifact(0x600), 3)
	require.NoError(t, err)

	for _, off := range []int{0x0, 0x1af, 0x1b8, 0x1d0, 0x5ff} {
		tampered := append([]byte(nil), res.Signed...)
		tampered[off] ^= 0x80
		_, err := defaultSigner().Verify(tampered)
		require.Equal(t, ErrSignatureMismatch, errors.Cause(err), "offset 0x%x", off)
	}

	tampered := append([]byte(nil), res.Signed...)
	tampered[0x1c3] ^= 0x01
	_, err = defaultSigner().Verify(tampered)
	require.Equal(t, ErrSignatureMismatch, errors.Cause(err))
}

func TestVerifyDetectsTruncation(t *testing.T) {
	res, err := defaultSigner().Sign(buildArtifact(0x600), 3)
	require.NoError(t, err)

	_, err = defaultSigner().Verify(res.Signed[:0x5f0])
	require.Equal(t, ErrLengthMismatch, errors.Cause(err))
}

func TestVerifyWrongKey(t *testing.T) {
	res, err := defaultSigner().Sign(buildArtifact(0x600), 3)
	require.NoError(t, err)

	p := mac.DefaultParams
	p.Key[0] = 0xff
	_, err = NewSigner(layout.Default, p, nil).Verify(res.Signed)
	require.Equal(t, ErrSignatureMismatch, errors.Cause(err))
}

func TestNoPaddingAligned(t *testing.T) {
	// 0x1d0 + 0x30 leaves a view of 0x1f0 bytes, which is block aligned
	s := NewSigner(layout.Default, mac.DefaultParams, mac.AESCBC{Padding: mac.NoPadding})
	res, err := s.Sign(buildArtifact(0x200), 1)
	require.NoError(t, err)
	require.Len(t, res.Ciphertext, len(res.View))

	_, err = s.Sign(buildArtifact(0x201), 1)
	require.Equal(t, mac.ErrUnaligned, errors.Cause(err))
}
