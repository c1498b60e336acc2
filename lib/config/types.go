// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package config

import (
	"fmt"

	"github.com/usedbytes/fwsign/lib/layout"
	"github.com/usedbytes/fwsign/lib/mac"
)

func stringIfNotEmpty(prefix, val string) string {
	if len(val) > 0 {
		return fmt.Sprintf("%s %s\n", prefix, val)
	}
	return ""
}

type Signing struct {
	Key     string      `toml:"key,omitempty"`
	IV      string      `toml:"iv,omitempty"`
	Padding mac.Padding `toml:"padding,omitempty"`
}

func (s *Signing) String() string {
	var str string
	str += "Signing:\n"
	str += stringIfNotEmpty("   Key:", s.Key)
	str += stringIfNotEmpty("   IV:", s.IV)
	str += stringIfNotEmpty("   Padding:", s.Padding.String())
	return str
}

type Layout struct {
	BootloaderSize    int    `toml:"bootloader_size,omitzero"`
	FWInfoOffset      int    `toml:"fwinfo_offset,omitzero"`
	Sentinel          uint32 `toml:"sentinel,omitzero"`
	MaxFirmwareLength int    `toml:"max_fw_length,omitzero"`
}

type Serial struct {
	Port string `toml:"port,omitempty"`
	Baud int    `toml:"baud,omitzero"`
	// Milliseconds to wait for each packet from the bootloader
	TimeoutMs int `toml:"timeout_ms,omitzero"`
	// Milliseconds to give the bootloader to erase the application
	EraseMs int `toml:"erase_ms,omitzero"`
}

func (s *Serial) String() string {
	var str string
	str += "Serial:\n"
	str += stringIfNotEmpty("   Port:", s.Port)
	str += fmt.Sprintf("   Baud: %d\n", s.Baud)
	str += fmt.Sprintf("   Timeout: %d ms\n", s.TimeoutMs)
	str += fmt.Sprintf("   Erase: %d ms\n", s.EraseMs)
	return str
}

type Config struct {
	Signing Signing `toml:"signing"`
	Layout  Layout  `toml:"layout"`
	Serial  Serial  `toml:"serial"`
}

func Default() *Config {
	return &Config{
		Signing: Signing{
			Key:     mac.DefaultKey.String(),
			IV:      mac.ZeroIV.String(),
			Padding: mac.PKCS7,
		},
		Layout: Layout{
			BootloaderSize:    layout.Default.BootloaderSize,
			FWInfoOffset:      layout.Default.FWInfoOffset,
			Sentinel:          layout.Default.Sentinel,
			MaxFirmwareLength: layout.Default.MaxFirmwareLength,
		},
		Serial: Serial{
			Port:      "/dev/ttyACM0",
			Baud:      115200,
			TimeoutMs: 60000,
			EraseMs:   15000,
		},
	}
}

func (c *Config) String() string {
	var s string
	s += c.Signing.String()
	s += c.FirmwareLayout().String()
	s += c.Serial.String()
	return s
}
