// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>

// Package mac computes the firmware authentication code: the last block of
// an AES-128-CBC encryption of the signing view, with a fixed key and an
// all-zero IV.
//
// This is CBC-MAC, not a signature. Anyone who can verify can also sign.
package mac

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

const BlockSize = aes.BlockSize

type Block [BlockSize]byte

func (b Block) String() string {
	return hex.EncodeToString(b[:])
}

func ParseBlock(str string) (Block, error) {
	var b Block
	raw, err := hex.DecodeString(str)
	if err != nil {
		return b, errors.Wrapf(err, "can't parse '%s'", str)
	}
	if len(raw) != BlockSize {
		return b, errors.Errorf("'%s' is %d bytes, expected %d", str, len(raw), BlockSize)
	}
	copy(b[:], raw)
	return b, nil
}

var (
	// Matches the key baked into the bootloader
	DefaultKey = Block{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	}
	ZeroIV = Block{}
)

var ErrUnaligned = errors.New("plaintext is not block aligned")

type Padding string

const (
	// PKCS7 is what `openssl enc` does by default. A block-aligned
	// plaintext gets a whole extra block of padding.
	PKCS7     Padding = "pkcs7"
	NoPadding Padding = "none"
)

func (p Padding) String() string {
	return string(p)
}

func (p *Padding) UnmarshalText(text []byte) error {
	str := Padding(text)
	switch str {
	case PKCS7:
		*p = PKCS7
	case NoPadding:
		*p = NoPadding
	default:
		return fmt.Errorf("unrecognised padding: %s", str)
	}

	return nil
}

func (p Padding) MarshalText() ([]byte, error) {
	return []byte(string(p)), nil
}

func (p Padding) Pad(data []byte) ([]byte, error) {
	switch p {
	case PKCS7:
		n := BlockSize - len(data)%BlockSize
		padded := make([]byte, 0, len(data)+n)
		padded = append(padded, data...)
		return append(padded, bytes.Repeat([]byte{byte(n)}, n)...), nil
	case NoPadding:
		if len(data)%BlockSize != 0 {
			return nil, errors.Wrapf(ErrUnaligned, "%d bytes", len(data))
		}
		padded := make([]byte, len(data))
		copy(padded, data)
		return padded, nil
	}

	return nil, errors.Errorf("unrecognised padding: %s", string(p))
}

// Encrypter is the boundary to the block cipher.
type Encrypter interface {
	EncryptCBC(key, iv, plaintext []byte) ([]byte, error)
}

// AESCBC is AES-128 in CBC mode from crypto/aes.
type AESCBC struct {
	Padding Padding
}

func (a AESCBC) EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, errors.Errorf("AES-128 key must be 16 bytes, got %d", len(key))
	}

	if len(iv) != BlockSize {
		return nil, errors.Errorf("IV must be %d bytes, got %d", BlockSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padding := a.Padding
	if padding == "" {
		padding = PKCS7
	}

	data, err := padding.Pad(plaintext)
	if err != nil {
		return nil, err
	}

	// CryptBlocks works in place
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(data, data)

	return data, nil
}

type Params struct {
	Key Block
	IV  Block
}

var DefaultParams = Params{
	Key: DefaultKey,
	IV:  ZeroIV,
}

// Compute encrypts the whole view and returns the final ciphertext block,
// along with the full ciphertext.
func Compute(enc Encrypter, p Params, view []byte) (Block, []byte, error) {
	var mac Block

	ciphertext, err := enc.EncryptCBC(p.Key[:], p.IV[:], view)
	if err != nil {
		return mac, nil, errors.Wrap(err, "encrypting signing view")
	}

	if len(ciphertext) < BlockSize || len(ciphertext)%BlockSize != 0 {
		return mac, nil, errors.Errorf("encrypter returned %d bytes, not whole blocks", len(ciphertext))
	}

	copy(mac[:], ciphertext[len(ciphertext)-BlockSize:])

	return mac, ciphertext, nil
}
