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

// Package pipe implements the local pipe and inter-thread message
// connection kinds (C8). Local pipes model the source library's
// post-fork parent/child split over a process boundary; since this
// port spawns children with os/exec rather than a raw fork, "the end
// this process doesn't use" is the parent's copy of the fd handed to
// the child via exec.Cmd.ExtraFiles, closed by Forked once the child
// has started.
package pipe

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/linebuffer"
	"github.com/nabbar/eventdispatcher/message"
)

// Mode selects which ends a Pipe connects (§4.8).
type Mode uint8

const (
	// Bidirectional is a full-duplex socketpair.
	Bidirectional Mode = iota
	// ChildInput: the parent writes, the child reads.
	ChildInput
	// ChildOutput: the child writes, the parent reads.
	ChildOutput
)

// Pipe owns the parent-side fd and the fd destined for a child
// process.
type Pipe struct {
	mode      Mode
	parentEnd *os.File
	childEnd  *os.File
}

// New creates a Pipe in the given mode (§4.8).
func New(mode Mode) (*Pipe, error) {
	switch mode {
	case Bidirectional:
		fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		if err != nil {
			return nil, errs.Wrap(errs.InitializationError, err, "pipe: socketpair failed")
		}
		return &Pipe{
			mode:      mode,
			parentEnd: os.NewFile(uintptr(fds[0]), "pipe-parent"),
			childEnd:  os.NewFile(uintptr(fds[1]), "pipe-child"),
		}, nil
	case ChildInput:
		r, w, err := os.Pipe()
		if err != nil {
			return nil, errs.Wrap(errs.InitializationError, err, "pipe: pipe() failed")
		}
		return &Pipe{mode: mode, parentEnd: w, childEnd: r}, nil
	case ChildOutput:
		r, w, err := os.Pipe()
		if err != nil {
			return nil, errs.Wrap(errs.InitializationError, err, "pipe: pipe() failed")
		}
		return &Pipe{mode: mode, parentEnd: r, childEnd: w}, nil
	default:
		return nil, errs.New(errs.InvalidParameter, "pipe: unknown mode %d", mode)
	}
}

// ChildFile returns the *os.File to list in exec.Cmd.ExtraFiles so the
// spawned child inherits it.
func (p *Pipe) ChildFile() *os.File {
	return p.childEnd
}

// Forked closes this process's reference to the end it no longer
// needs once the child has been started (§4.8's "forked() hook").
// Idempotent.
func (p *Pipe) Forked() error {
	if p.childEnd == nil {
		return nil
	}
	err := p.childEnd.Close()
	p.childEnd = nil
	return err
}

// ParentConnection wraps the parent end as a reactor Connection, with
// the read/write roles implied by mode: a ChildInput parent can only
// write, a ChildOutput parent can only read, and a Bidirectional
// parent can do both.
func (p *Pipe) ParentConnection(name string) (*Connection, error) {
	fd := int(p.parentEnd.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "pipe: set nonblock failed")
	}

	canRead := p.mode == Bidirectional || p.mode == ChildOutput
	canWrite := p.mode == Bidirectional || p.mode == ChildInput

	c := &Connection{
		Base:     connection.NewBase(name),
		lb:       linebuffer.New(fd),
		fd:       fd,
		canRead:  canRead,
		canWrite: canWrite,
	}
	c.lb.SetLineHandler(c.handleLine)
	return c, nil
}

// Connection is one end of a local pipe (§4.8), framed with the same
// line-buffer mixin a stream connection uses.
type Connection struct {
	*connection.Base
	lb                 *linebuffer.Mixin
	fd                 int
	canRead, canWrite bool
}

func (c *Connection) handleLine(line []byte) error {
	m, err := message.Parse(string(line))
	if err != nil {
		return nil
	}
	if disp := c.Dispatcher(); disp != nil {
		disp.Dispatch(c, m)
	}
	return nil
}

func (c *Connection) Socket() int    { return c.fd }
func (c *Connection) IsReader() bool { return c.canRead && c.fd >= 0 }
func (c *Connection) IsWriter() bool { return c.canWrite && c.lb.IsWriter() }

// SendMessage satisfies connection.MessageSender; it fails with
// "bad file descriptor" on a read-only end (§4.8).
func (c *Connection) SendMessage(m *message.Message) error {
	if !c.canWrite {
		return errs.New(errs.RuntimeError, "pipe: write on a read-only end (bad file descriptor)")
	}
	text, err := m.Emit(message.FormatLine)
	if err != nil {
		return errs.Wrap(errs.InvalidMessage, err, "pipe: emit failed")
	}
	_, err = c.lb.Write([]byte(text + "\n"))
	return err
}

func (c *Connection) ProcessRead() error {
	if !c.canRead {
		return errs.New(errs.RuntimeError, "pipe: read on a write-only end (bad file descriptor)")
	}
	return c.lb.ProcessRead()
}

func (c *Connection) ProcessWrite() error {
	if !c.canWrite {
		return errs.New(errs.RuntimeError, "pipe: write on a read-only end (bad file descriptor)")
	}
	return c.lb.ProcessWrite()
}

func (c *Connection) ProcessHup() error {
	if err := c.lb.ProcessHup(); err != nil {
		return err
	}
	c.fd = -1
	return c.Base.ProcessHup()
}
