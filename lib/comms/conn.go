// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package comms

import (
	"context"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/usedbytes/log"
)

var (
	ErrNack             = errors.New("bootloader sent NACK")
	ErrTimeout          = errors.New("timed out waiting for packet")
	ErrUnexpectedPacket = errors.New("unexpected packet")
	closedErr           = errors.New("connection closed")
)

// Conn handles ACKs and retransmission, and queues every other valid
// packet for the caller.
type Conn struct {
	port io.ReadWriteCloser

	rx   chan []byte
	errs chan error
	done chan struct{}
	once sync.Once

	rxBuf   []byte
	packets []Packet
	last    Packet
}

func NewConn(port io.ReadWriteCloser) *Conn {
	c := &Conn{
		port: port,
		rx:   make(chan []byte, 16),
		errs: make(chan error, 1),
		done: make(chan struct{}),
		last: SingleBytePacket(padByte),
	}

	go c.readLoop()

	return c
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case c.rx <- data:
			case <-c.done:
				return
			}
		}

		if c.closed() {
			return
		}

		// Serial ports report a read timeout as EOF
		if err == io.EOF {
			continue
		} else if err != nil {
			c.errs <- err
			return
		}
	}
}

func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.port.Close()
	})
	return err
}

// WriteRaw sends bytes which aren't a packet, e.g. the sync sequence.
func (c *Conn) WriteRaw(data []byte) error {
	if c.closed() {
		return closedErr
	}

	n, err := c.port.Write(data)
	if err != nil {
		return err
	} else if n != len(data) {
		return errors.New("short write")
	}

	return nil
}

func (c *Conn) WritePacket(p Packet) error {
	log.Verbose("Write ", p, "\n")

	err := c.WriteRaw(p.Bytes())
	if err != nil {
		return err
	}
	c.last = p

	return nil
}

func (c *Conn) process() error {
	for len(c.rxBuf) >= PacketLength {
		raw := c.rxBuf[:PacketLength]
		c.rxBuf = c.rxBuf[PacketLength:]

		p, err := ParsePacket(raw)
		if err != nil {
			return err
		}

		if !p.Valid() {
			log.Verbosef("Bad CRC, requesting retransmit:\n%s", hex.Dump(raw))
			err = c.WritePacket(retxPacket)
			if err != nil {
				return err
			}
			continue
		}

		if p.IsRetx() {
			log.Verboseln("Retransmitting", c.last)
			err = c.WritePacket(c.last)
			if err != nil {
				return err
			}
			continue
		}

		if p.IsAck() {
			continue
		}

		log.Verbose("Read ", p, "\n")
		c.packets = append(c.packets, p)

		// The session is over after a NACK, it doesn't get acknowledged
		if p.IsSingleByte(NackData0) {
			continue
		}

		err = c.WritePacket(ackPacket)
		if err != nil {
			return err
		}
	}

	return nil
}

// WaitPacket returns the next queued packet, blocking until one arrives or
// ctx expires.
func (c *Conn) WaitPacket(ctx context.Context) (Packet, error) {
	for {
		if len(c.packets) > 0 {
			p := c.packets[0]
			c.packets = c.packets[1:]
			return p, nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				return Packet{}, ctx.Err()
			}
			return Packet{}, ErrTimeout
		case <-c.done:
			return Packet{}, closedErr
		case err := <-c.errs:
			return Packet{}, errors.Wrap(err, "reading port")
		case data := <-c.rx:
			c.rxBuf = append(c.rxBuf, data...)
			err := c.process()
			if err != nil {
				return Packet{}, err
			}
		}
	}
}

// Poll waits at most d for a packet. ok is false if none arrived.
func (c *Conn) Poll(ctx context.Context, d time.Duration) (p Packet, ok bool, err error) {
	pollCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	p, err = c.WaitPacket(pollCtx)
	if err == ErrTimeout && ctx.Err() == nil {
		return p, false, nil
	} else if err != nil {
		return p, false, err
	}

	return p, true, nil
}

// WaitSingleByte waits for a single-byte packet of type b. A NACK from the
// bootloader is reported as ErrNack.
func (c *Conn) WaitSingleByte(ctx context.Context, b byte) error {
	p, err := c.WaitPacket(ctx)
	if err != nil {
		return err
	}

	if p.IsSingleByte(NackData0) {
		return ErrNack
	}

	if p.Length != 1 || p.Data[0] != b {
		return errors.Wrapf(ErrUnexpectedPacket, "expected single byte 0x%02x, got %s", b, p)
	}

	return nil
}
