// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package comms implements the host side of the bootloader's UART packet
// protocol.
//
// Every packet is 18 bytes: a length byte, 16 data bytes padded with 0xff,
// and a CRC-8 (poly 0x07) over the length and data.
package comms

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sigurn/crc8"
)

const (
	LengthBytes  = 1
	DataLength   = 16
	CRCBytes     = 1
	CRCIndex     = LengthBytes + DataLength
	PacketLength = LengthBytes + DataLength + CRCBytes
)

// Single-byte packet types, carried in Data[0]
const (
	AckData0  = 0x15
	RetxData0 = 0x19

	SyncObservedData0     = 0x20
	FWUpdateReqData0      = 0x31
	FWUpdateResData0      = 0x37
	DeviceIDReqData0      = 0x3c
	DeviceIDResData0      = 0x3f
	FWLengthReqData0      = 0x42
	FWLengthResData0      = 0x45
	ReadyForDataData0     = 0x48
	UpdateSuccessfulData0 = 0x54
	NackData0             = 0x59
)

const padByte = 0xff

var crct = crc8.MakeTable(crc8.CRC8)

type Packet struct {
	Length byte
	Data   [DataLength]byte
	CRC    byte
}

// NewPacket pads data and fills in the CRC. length is sent as-is, so data
// packets can use the bootloader's "length - 1" convention.
func NewPacket(length byte, data []byte) (Packet, error) {
	var p Packet
	if len(data) > DataLength {
		return p, errors.Errorf("packet data too long: %d bytes", len(data))
	}

	p.Length = length
	copy(p.Data[:], data)
	for i := len(data); i < DataLength; i++ {
		p.Data[i] = padByte
	}
	p.CRC = p.ComputeCRC()

	return p, nil
}

func SingleBytePacket(b byte) Packet {
	p, _ := NewPacket(1, []byte{b})
	return p
}

var (
	ackPacket  = SingleBytePacket(AckData0)
	retxPacket = SingleBytePacket(RetxData0)
)

func ParsePacket(raw []byte) (Packet, error) {
	var p Packet
	if len(raw) != PacketLength {
		return p, errors.Errorf("packet must be %d bytes, got %d", PacketLength, len(raw))
	}

	p.Length = raw[0]
	copy(p.Data[:], raw[LengthBytes:CRCIndex])
	p.CRC = raw[CRCIndex]

	return p, nil
}

func (p Packet) ComputeCRC() byte {
	return crc8.Checksum(p.Bytes()[:CRCIndex], crct)
}

func (p Packet) Valid() bool {
	return p.CRC == p.ComputeCRC()
}

func (p Packet) Bytes() []byte {
	raw := make([]byte, 0, PacketLength)
	raw = append(raw, p.Length)
	raw = append(raw, p.Data[:]...)
	return append(raw, p.CRC)
}

func (p Packet) IsSingleByte(b byte) bool {
	if p.Length != 1 || p.Data[0] != b {
		return false
	}

	return bytes.Count(p.Data[1:], []byte{padByte}) == DataLength-1
}

func (p Packet) IsAck() bool {
	return p.IsSingleByte(AckData0)
}

func (p Packet) IsRetx() bool {
	return p.IsSingleByte(RetxData0)
}

func (p Packet) String() string {
	return fmt.Sprintf("len=%d data=%s crc=0x%02x", p.Length, hex.EncodeToString(p.Data[:]), p.CRC)
}
