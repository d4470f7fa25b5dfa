// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package doorlink

import (
	"io"
	"sync"
)

// DefaultPipeBuffer matches a small UART receive FIFO plus driver buffer
const DefaultPipeBuffer = 64

// Pipe is an in-process, ordered, lossless byte link between an HMI end
// and a Control end. It is used by the sim command and by tests.
type Pipe struct {
	toControl chan byte
	toHMI     chan byte
	done      chan struct{}
	once      sync.Once

	hmi     *Link
	control *Link
}

// NewPipe creates a pipe whose directions each buffer up to buffer bytes
func NewPipe(buffer int) *Pipe {
	if buffer <= 0 {
		buffer = DefaultPipeBuffer
	}
	p := &Pipe{
		toControl: make(chan byte, buffer),
		toHMI:     make(chan byte, buffer),
		done:      make(chan struct{}),
	}
	p.hmi = NewLink(&pipeEnd{rx: p.toHMI, tx: p.toControl, done: p.done}, HMIToControl)
	p.control = NewLink(&pipeEnd{rx: p.toControl, tx: p.toHMI, done: p.done}, ControlToHMI)
	return p
}

// HMI returns the HMI node's end of the pipe
func (p *Pipe) HMI() *Link {
	return p.hmi
}

// Control returns the Control node's end of the pipe
func (p *Pipe) Control() *Link {
	return p.control
}

// Close unblocks all pending reads and writes with ErrLinkClosed
func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

type pipeEnd struct {
	rx   <-chan byte
	tx   chan<- byte
	done <-chan struct{}
}

func (e *pipeEnd) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var b byte
	select {
	case b = <-e.rx:
	default:
		// Drain bytes written before Close ahead of reporting EOF
		select {
		case b = <-e.rx:
		case <-e.done:
			select {
			case b = <-e.rx:
			default:
				return 0, io.EOF
			}
		}
	}
	buf[0] = b
	n := 1
	for n < len(buf) {
		select {
		case b = <-e.rx:
			buf[n] = b
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

func (e *pipeEnd) Write(buf []byte) (int, error) {
	for i, b := range buf {
		select {
		case e.tx <- b:
		case <-e.done:
			return i, io.ErrClosedPipe
		}
	}
	return len(buf), nil
}
