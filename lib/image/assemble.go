// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package image

import (
	"bytes"

	"github.com/pkg/errors"
)

const bootloaderFill = 0xff

// Assemble prepends bootloader (which may be empty, for a distributable
// image) to the application image. If a bootloader is given it has to fill
// its slot exactly, see PadBootloader.
func Assemble(bootloader []byte, img *Image) ([]byte, error) {
	if len(bootloader) != 0 && len(bootloader) != img.layout.BootloaderSize {
		return nil, errors.Errorf("bootloader is %d bytes, slot is %d", len(bootloader), img.layout.BootloaderSize)
	}

	out := make([]byte, 0, len(bootloader)+len(img.data))
	out = append(out, bootloader...)
	out = append(out, img.data...)

	return out, nil
}

// PadBootloader fills bl with 0xff up to size. It never truncates.
func PadBootloader(bl []byte, size int) ([]byte, error) {
	if len(bl) > size {
		return nil, errors.Wrapf(ErrBootloaderTooLarge, "%d bytes, slot is %d", len(bl), size)
	}

	padded := make([]byte, 0, size)
	padded = append(padded, bl...)
	padded = append(padded, bytes.Repeat([]byte{bootloaderFill}, size-len(bl))...)

	return padded, nil
}
