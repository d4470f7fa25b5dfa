// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package doorlink

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrLinkClosed is returned when the partner connection has gone away
var ErrLinkClosed = errors.New("link closed")

// Channel is the ordered, synchronous byte link between the two nodes.
// ReceiveByte blocks until a byte arrives; there is no timeout.
type Channel interface {
	SendByte(b byte) error
	ReceiveByte() (byte, error)
}

// Tap observes every byte crossing a Link, tagged with its direction
type Tap func(dir Direction, b byte)

// Link is a Channel over any byte stream (serial port, WebSocket, pipe)
type Link struct {
	rw       io.ReadWriter
	outgoing Direction
	tap      Tap
	rbuf     [1]byte
	wbuf     [1]byte
}

// NewLink wraps rw. outgoing is the direction of bytes this side sends:
// HMIToControl on the HMI node, ControlToHMI on the Control node.
func NewLink(rw io.ReadWriter, outgoing Direction) *Link {
	return &Link{rw: rw, outgoing: outgoing}
}

// SetTap installs an observer for all sent and received bytes
func (l *Link) SetTap(t Tap) {
	l.tap = t
}

func (l *Link) incoming() Direction {
	if l.outgoing == HMIToControl {
		return ControlToHMI
	}
	return HMIToControl
}

// SendByte writes a single byte to the partner
func (l *Link) SendByte(b byte) error {
	l.wbuf[0] = b
	for {
		n, err := l.rw.Write(l.wbuf[:])
		if n == 1 {
			if l.tap != nil {
				l.tap(l.outgoing, b)
			}
			return nil
		}
		if err != nil {
			return wrapLinkErr("send", err)
		}
	}
}

// ReceiveByte blocks until the partner sends a byte
func (l *Link) ReceiveByte() (byte, error) {
	for {
		n, err := l.rw.Read(l.rbuf[:])
		if n == 1 {
			b := l.rbuf[0]
			if l.tap != nil {
				l.tap(l.incoming(), b)
			}
			return b, nil
		}
		if err != nil {
			return 0, wrapLinkErr("receive", err)
		}
		// Zero-length read without error (serial read timeout): keep waiting
	}
}

func wrapLinkErr(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) || errors.Is(err, ErrLinkClosed) {
		return fmt.Errorf("%s: %w", op, ErrLinkClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SendPassword sends the digits of p in order
func SendPassword(ch Channel, p Password) error {
	for _, d := range p {
		if err := ch.SendByte(byte(d)); err != nil {
			return err
		}
	}
	return nil
}
