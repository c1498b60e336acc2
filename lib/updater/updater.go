// SPDX-License-Identifier: MIT
// Copyright (c) 2020 Brian Starkey <stark3y@gmail.com>
package updater

import (
	"context"
	"encoding/binary"
	"io"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
	"github.com/usedbytes/fwsign/lib/comms"
	"github.com/usedbytes/log"
)

// SyncSeq is sent repeatedly until the bootloader notices it.
var SyncSeq = []byte{0xc4, 0x55, 0x7e, 0x10}

type Options struct {
	// How long to wait for a response to each sync sequence
	SyncDelay time.Duration
	// Give up syncing after this long
	SyncTimeout time.Duration
	// Maximum wait for any single packet
	Timeout time.Duration
	// Time for the bootloader to erase the old application
	EraseDelay time.Duration
	Progress   bool
}

var DefaultOptions = Options{
	SyncDelay:   500 * time.Millisecond,
	SyncTimeout: 60 * time.Second,
	Timeout:     60 * time.Second,
	EraseDelay:  15 * time.Second,
}

func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	log.Verbosef("Opening %s at %d baud\n", port, baud)

	p, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "opening '%s'", port)
	}

	return p, nil
}

type Updater struct {
	conn *comms.Conn
	opts Options
}

func New(port io.ReadWriteCloser, opts Options) *Updater {
	return &Updater{
		conn: comms.NewConn(port),
		opts: opts,
	}
}

func (u *Updater) Close() error {
	return u.conn.Close()
}

func (u *Updater) wait(ctx context.Context, b byte) error {
	to, cancel := context.WithTimeout(ctx, u.opts.Timeout)
	defer cancel()

	return u.conn.WaitSingleByte(to, b)
}

func (u *Updater) sync(ctx context.Context) error {
	start := time.Now()
	for {
		log.Verboseln("Sending sync sequence")
		err := u.conn.WriteRaw(SyncSeq)
		if err != nil {
			return err
		}

		p, ok, err := u.conn.Poll(ctx, u.opts.SyncDelay)
		if err != nil {
			return err
		}

		if ok {
			if !p.IsSingleByte(comms.SyncObservedData0) {
				return errors.Wrapf(comms.ErrUnexpectedPacket, "during sync: %s", p)
			}
			return nil
		}

		if time.Since(start) >= u.opts.SyncTimeout {
			return comms.ErrTimeout
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Update sends a signed image to the bootloader. deviceID has to match
// the bootloader's, or it will refuse the update.
func (u *Updater) Update(ctx context.Context, fw []byte, deviceID byte) error {
	log.Println("Syncing with the bootloader...")
	err := u.sync(ctx)
	if err != nil {
		return errors.Wrap(err, "syncing")
	}
	log.Println("Synced")

	err = u.conn.WritePacket(comms.SingleBytePacket(comms.FWUpdateReqData0))
	if err != nil {
		return err
	}

	err = u.wait(ctx, comms.FWUpdateResData0)
	if err != nil {
		return errors.Wrap(err, "requesting update")
	}
	log.Println("Update request accepted")

	err = u.wait(ctx, comms.DeviceIDReqData0)
	if err != nil {
		return errors.Wrap(err, "waiting for device ID request")
	}

	p, err := comms.NewPacket(2, []byte{comms.DeviceIDResData0, deviceID})
	if err != nil {
		return err
	}
	err = u.conn.WritePacket(p)
	if err != nil {
		return err
	}
	log.Printf("Sent device ID 0x%02x\n", deviceID)

	err = u.wait(ctx, comms.FWLengthReqData0)
	if err != nil {
		return errors.Wrap(err, "waiting for length request")
	}

	lenPacket := make([]byte, 5)
	lenPacket[0] = comms.FWLengthResData0
	binary.LittleEndian.PutUint32(lenPacket[1:], uint32(len(fw)))
	p, err = comms.NewPacket(5, lenPacket)
	if err != nil {
		return err
	}
	err = u.conn.WritePacket(p)
	if err != nil {
		return err
	}
	log.Printf("Sent length %d\n", len(fw))

	log.Printf("Waiting %s for the application to be erased...\n", u.opts.EraseDelay)
	err = sleep(ctx, u.opts.EraseDelay)
	if err != nil {
		return err
	}

	var bar *pb.ProgressBar
	if u.opts.Progress {
		bar = pb.StartNew(len(fw))
		bar.Set(pb.Bytes, true)
	}

	for written := 0; written < len(fw); {
		err = u.wait(ctx, comms.ReadyForDataData0)
		if err != nil {
			return errors.Wrapf(err, "waiting to send data at offset 0x%x", written)
		}

		end := written + comms.DataLength
		if end > len(fw) {
			end = len(fw)
		}
		chunk := fw[written:end]

		// The bootloader wants length - 1, so 16 bytes fits in 4 bits
		p, err = comms.NewPacket(byte(len(chunk)-1), chunk)
		if err != nil {
			return err
		}
		err = u.conn.WritePacket(p)
		if err != nil {
			return err
		}

		written += len(chunk)
		if bar != nil {
			bar.Add(len(chunk))
		} else {
			log.Verbosef("Wrote %d bytes (%d/%d)\n", len(chunk), written, len(fw))
		}
	}

	if bar != nil {
		bar.Finish()
	}

	err = u.wait(ctx, comms.UpdateSuccessfulData0)
	if err != nil {
		return errors.Wrap(err, "waiting for completion")
	}

	log.Println("Firmware update complete!")

	return nil
}
