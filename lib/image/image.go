// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package image does the byte surgery on an application image: patching
// FirmwareInfo and the signature in place, and building the reordered
// view which gets MAC'd.
package image

import (
	"github.com/pkg/errors"
	"github.com/usedbytes/fwsign/lib/layout"
)

var (
	ErrTooShort           = errors.New("image too short")
	ErrBootloaderTooLarge = errors.New("bootloader larger than its slot")
)

// Image is an application image, i.e. a build artifact with the
// bootloader slot removed. It owns its buffer.
type Image struct {
	layout layout.Layout
	data   []byte
}

// StripBootloader copies everything after the bootloader slot of a full
// build artifact.
func StripBootloader(raw []byte, l layout.Layout) (*Image, error) {
	if len(raw) < l.MinRawLength() {
		return nil, errors.Wrapf(ErrTooShort, "%d bytes, need at least %d", len(raw), l.MinRawLength())
	}

	return newImage(raw[l.BootloaderSize:], l), nil
}

// NewApplication wraps an image which has no bootloader, such as a signed
// distributable.
func NewApplication(app []byte, l layout.Layout) (*Image, error) {
	if len(app) < l.MinAppLength() {
		return nil, errors.Wrapf(ErrTooShort, "%d bytes, need at least %d", len(app), l.MinAppLength())
	}

	return newImage(app, l), nil
}

func newImage(app []byte, l layout.Layout) *Image {
	data := make([]byte, len(app))
	copy(data, app)

	return &Image{
		layout: l,
		data:   data,
	}
}

func (img *Image) Layout() layout.Layout {
	return img.layout
}

func (img *Image) Len() int {
	return len(img.data)
}

// Bytes returns the underlying buffer, not a copy.
func (img *Image) Bytes() []byte {
	return img.data
}

func (img *Image) Info() (layout.FirmwareInfo, error) {
	return img.layout.ReadInfo(img.data)
}

// PatchMetadata writes the version and the current image length into
// FirmwareInfo. The version isn't checked against anything.
func (img *Image) PatchMetadata(version uint32) {
	img.layout.WriteVersion(img.data, version)
	img.layout.WriteLength(img.data, uint32(len(img.data)))
}

// SigningView returns FirmwareInfo, then the vector table, then the body
// after the signature block. The signature itself is never included.
func (img *Image) SigningView() []byte {
	l := img.layout
	info := l.FWInfo()
	vt := l.VectorTable()
	body := l.Body(len(img.data))

	view := make([]byte, 0, info.Size+vt.Size+body.Size)
	view = append(view, img.data[info.Offset:info.End()]...)
	view = append(view, img.data[vt.Offset:vt.End()]...)
	view = append(view, img.data[body.Offset:body.End()]...)

	return view
}

func (img *Image) Signature() []byte {
	r := img.layout.Signature()
	sig := make([]byte, r.Size)
	copy(sig, img.data[r.Offset:r.End()])
	return sig
}

// PatchSignature overwrites the signature block, whatever was there.
func (img *Image) PatchSignature(mac []byte) error {
	r := img.layout.Signature()
	if len(mac) != r.Size {
		return errors.Errorf("signature must be %d bytes, got %d", r.Size, len(mac))
	}

	copy(img.data[r.Offset:r.End()], mac)
	return nil
}
