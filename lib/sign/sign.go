// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package sign

import (
	"crypto/subtle"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/usedbytes/fwsign/lib/image"
	"github.com/usedbytes/fwsign/lib/layout"
	"github.com/usedbytes/fwsign/lib/mac"
	"github.com/usedbytes/log"
)

var (
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrLengthMismatch    = errors.New("length field doesn't match image length")
)

type Signer struct {
	Layout    layout.Layout
	Params    mac.Params
	Encrypter mac.Encrypter
}

func NewSigner(l layout.Layout, p mac.Params, enc mac.Encrypter) *Signer {
	if enc == nil {
		enc = mac.AESCBC{Padding: mac.PKCS7}
	}

	return &Signer{
		Layout:    l,
		Params:    p,
		Encrypter: enc,
	}
}

type Result struct {
	Version uint32
	Info    layout.FirmwareInfo

	// View is the reordered plaintext which was fed to the cipher
	View       []byte
	Ciphertext []byte
	MAC        mac.Block

	// Signed is the distributable image, without a bootloader
	Signed []byte
}

// Sign takes a full build artifact, including its bootloader slot.
func (s *Signer) Sign(raw []byte, version uint32) (*Result, error) {
	err := s.Layout.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid layout")
	}

	img, err := image.StripBootloader(raw, s.Layout)
	if err != nil {
		return nil, err
	}

	return s.SignApplication(img, version)
}

// SignApplication patches img in place.
func (s *Signer) SignApplication(img *image.Image, version uint32) (*Result, error) {
	if s.Layout.MaxFirmwareLength != 0 && img.Len() > s.Layout.MaxFirmwareLength {
		return nil, errors.Errorf("application image is %d bytes, device can hold %d", img.Len(), s.Layout.MaxFirmwareLength)
	}

	img.PatchMetadata(version)

	info, err := img.Info()
	if err != nil {
		return nil, err
	}

	if !s.Layout.SentinelOK(info) {
		log.Printf("WARNING: FirmwareInfo sentinel is 0x%08x, expected 0x%08x. Wrong offset?\n",
			info.Sentinel, s.Layout.Sentinel)
	}
	log.Verbosef("%s", info)

	view := img.SigningView()
	log.Verbosef("Signing view: %d bytes, first block %s\n", len(view), hex.EncodeToString(view[:layout.BlockSize]))

	tag, ciphertext, err := mac.Compute(s.Encrypter, s.Params, view)
	if err != nil {
		return nil, err
	}

	err = img.PatchSignature(tag[:])
	if err != nil {
		return nil, err
	}

	signed, err := image.Assemble(nil, img)
	if err != nil {
		return nil, err
	}

	return &Result{
		Version:    version,
		Info:       info,
		View:       view,
		Ciphertext: ciphertext,
		MAC:        tag,
		Signed:     signed,
	}, nil
}

// Verify checks a distributable image, as produced by Sign.
func (s *Signer) Verify(signed []byte) (layout.FirmwareInfo, error) {
	img, err := image.NewApplication(signed, s.Layout)
	if err != nil {
		return layout.FirmwareInfo{}, err
	}

	info, err := img.Info()
	if err != nil {
		return info, err
	}

	if int(info.Length) != img.Len() {
		return info, errors.Wrapf(ErrLengthMismatch, "field says %d, image is %d", info.Length, img.Len())
	}

	tag, _, err := mac.Compute(s.Encrypter, s.Params, img.SigningView())
	if err != nil {
		return info, err
	}

	sig := img.Signature()
	log.Verbosef("Embedded signature: %x\n", sig)
	log.Verbosef("Computed signature: %s\n", tag)

	if subtle.ConstantTimeCompare(tag[:], sig) != 1 {
		return info, errors.Wrapf(ErrSignatureMismatch, "embedded %x, computed %s", sig, tag)
	}

	return info, nil
}
