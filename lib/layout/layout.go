// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package layout describes where things live inside a firmware image.
//
// All application offsets are relative to the end of the bootloader slot.
// The patchers, the signing view builder and the verifier all take their
// offsets from a Layout, so they can't drift apart.
package layout

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	BlockSize = 16

	BootloaderSize    = 0x8000
	FWInfoOffset      = 0x01b0
	Sentinel          = 0xdeadc0de
	MaxFirmwareLength = (512 * 1024) - BootloaderSize
)

// Sub-offsets within the FirmwareInfo block
const (
	sentinelOffset = 0
	deviceIDOffset = 4
	versionOffset  = 8
	lengthOffset   = 12
)

type Region struct {
	Offset int
	Size   int
}

func (r Region) End() int {
	return r.Offset + r.Size
}

func (r Region) String() string {
	return fmt.Sprintf("[0x%04x, 0x%04x)", r.Offset, r.End())
}

type Layout struct {
	BootloaderSize    int
	FWInfoOffset      int
	Sentinel          uint32
	MaxFirmwareLength int
}

var Default = Layout{
	BootloaderSize:    BootloaderSize,
	FWInfoOffset:      FWInfoOffset,
	Sentinel:          Sentinel,
	MaxFirmwareLength: MaxFirmwareLength,
}

func (l Layout) Validate() error {
	if l.BootloaderSize <= 0 {
		return errors.New("bootloader size must be positive")
	}

	if l.FWInfoOffset <= 0 || l.FWInfoOffset%BlockSize != 0 {
		return errors.Errorf("fwinfo offset 0x%x must be a non-zero multiple of %d", l.FWInfoOffset, BlockSize)
	}

	if l.MaxFirmwareLength != 0 && l.MaxFirmwareLength < l.MinAppLength() {
		return errors.Errorf("max firmware length 0x%x is smaller than the header (0x%x)", l.MaxFirmwareLength, l.MinAppLength())
	}

	return nil
}

// VectorTable is everything before the FirmwareInfo block.
func (l Layout) VectorTable() Region {
	return Region{Offset: 0, Size: l.FWInfoOffset}
}

func (l Layout) FWInfo() Region {
	return Region{Offset: l.FWInfoOffset, Size: BlockSize}
}

func (l Layout) Signature() Region {
	return Region{Offset: l.FWInfoOffset + BlockSize, Size: BlockSize}
}

// Body is the code and data following the signature, up to appLen.
func (l Layout) Body(appLen int) Region {
	start := l.Signature().End()
	return Region{Offset: start, Size: appLen - start}
}

func (l Layout) SentinelField() Region {
	return Region{Offset: l.FWInfoOffset + sentinelOffset, Size: 4}
}

func (l Layout) DeviceIDField() Region {
	return Region{Offset: l.FWInfoOffset + deviceIDOffset, Size: 4}
}

func (l Layout) VersionField() Region {
	return Region{Offset: l.FWInfoOffset + versionOffset, Size: 4}
}

func (l Layout) LengthField() Region {
	return Region{Offset: l.FWInfoOffset + lengthOffset, Size: 4}
}

// MinAppLength is the smallest application image which still contains
// the FirmwareInfo and signature blocks.
func (l Layout) MinAppLength() int {
	return l.Signature().End()
}

// MinRawLength is the same as MinAppLength, for a build artifact which
// still carries its bootloader.
func (l Layout) MinRawLength() int {
	return l.BootloaderSize + l.MinAppLength()
}

func (l Layout) String() string {
	var s string
	s += "Layout:\n"
	s += fmt.Sprintf("   Bootloader: 0x%04x bytes\n", l.BootloaderSize)
	s += fmt.Sprintf("   VectorTable: %s\n", l.VectorTable())
	s += fmt.Sprintf("   FWInfo: %s\n", l.FWInfo())
	s += fmt.Sprintf("   Signature: %s\n", l.Signature())
	if l.MaxFirmwareLength != 0 {
		s += fmt.Sprintf("   MaxFirmwareLength: 0x%x\n", l.MaxFirmwareLength)
	}
	return s
}
