/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package signal implements the signalfd-backed signal connection
// (C9): one fd obtained by masking a single signal number, whose
// ProcessRead reads the pending signalfd_siginfo record and invokes a
// user callback.
package signal

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
)

// sigSetInfoSize is sizeof(struct signalfd_siginfo) on Linux.
const sigSetInfoSize = 128

// Handler receives the signal number read off the signalfd.
type Handler func(signum int) error

// Connection masks exactly one signal number at construction and
// exposes it as a pollable fd (§4.9). The signal is blocked from its
// default disposition via sigprocmask so delivery only happens through
// the returned fd.
type Connection struct {
	*connection.Base
	fd     int
	signum int
	onRead Handler
}

// New blocks signum and creates a non-blocking signalfd for it.
func New(name string, signum int, onRead Handler) (*Connection, error) {
	mask := maskFor(signum)

	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &mask, nil); err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "signal: sigprocmask failed")
	}

	fd, err := unix.Signalfd(-1, &mask, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "signal: signalfd failed")
	}

	return &Connection{
		Base:   connection.NewBase(name),
		fd:     fd,
		signum: signum,
		onRead: onRead,
	}, nil
}

func maskFor(signum int) unix.Sigset_t {
	var set unix.Sigset_t
	bit := uint(signum) - 1
	set.Val[bit/64] |= 1 << (bit % 64)
	return set
}

func (c *Connection) Socket() int    { return c.fd }
func (c *Connection) IsSignal() bool { return c.fd >= 0 }
func (c *Connection) IsReader() bool { return c.fd >= 0 }

// Signum is the masked signal number.
func (c *Connection) Signum() int { return c.signum }

// ProcessRead reads one signalfd_siginfo record and invokes the
// configured handler with the signal number it carries (§4.9).
func (c *Connection) ProcessRead() error {
	buf := make([]byte, sigSetInfoSize)
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return errs.Wrap(errs.RuntimeError, err, "signal: read failed")
	}
	if n < 4 {
		return errs.New(errs.UnexpectedData, "signal: short signalfd_siginfo record (%d bytes)", n)
	}

	signo := int(binary.LittleEndian.Uint32(buf[0:4]))
	if c.onRead == nil {
		return nil
	}
	return c.onRead(signo)
}

func (c *Connection) ProcessHup() error {
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	return c.Base.ProcessHup()
}
