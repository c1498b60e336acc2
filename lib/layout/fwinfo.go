// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// FirmwareInfo mirrors firmware_info_t, which the application links
// directly after its vector table.
type FirmwareInfo struct {
	Sentinel uint32
	DeviceID uint32
	Version  uint32
	Length   uint32
}

func (l Layout) field(app []byte, r Region) uint32 {
	return binary.LittleEndian.Uint32(app[r.Offset:r.End()])
}

func (l Layout) setField(app []byte, r Region, v uint32) {
	binary.LittleEndian.PutUint32(app[r.Offset:r.End()], v)
}

func (l Layout) checkLen(app []byte) error {
	if len(app) < l.MinAppLength() {
		return errors.Errorf("application image too short: %d bytes, need at least %d", len(app), l.MinAppLength())
	}
	return nil
}

func (l Layout) ReadInfo(app []byte) (FirmwareInfo, error) {
	if err := l.checkLen(app); err != nil {
		return FirmwareInfo{}, err
	}

	return FirmwareInfo{
		Sentinel: l.field(app, l.SentinelField()),
		DeviceID: l.field(app, l.DeviceIDField()),
		Version:  l.field(app, l.VersionField()),
		Length:   l.field(app, l.LengthField()),
	}, nil
}

// WriteVersion and WriteLength leave the sentinel and device ID alone.
func (l Layout) WriteVersion(app []byte, version uint32) {
	l.setField(app, l.VersionField(), version)
}

func (l Layout) WriteLength(app []byte, length uint32) {
	l.setField(app, l.LengthField(), length)
}

func (l Layout) SentinelOK(info FirmwareInfo) bool {
	return info.Sentinel == l.Sentinel
}

func (fi FirmwareInfo) String() string {
	var s string
	s += "FirmwareInfo:\n"
	s += fmt.Sprintf("   Sentinel: 0x%08x\n", fi.Sentinel)
	s += fmt.Sprintf("   DeviceID: 0x%02x\n", fi.DeviceID)
	s += fmt.Sprintf("   Version: 0x%08x\n", fi.Version)
	s += fmt.Sprintf("   Length: %d (0x%x) bytes\n", fi.Length, fi.Length)
	return s
}
