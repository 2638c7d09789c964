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

package stream

import (
	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
	"github.com/nabbar/eventdispatcher/linebuffer"
	"github.com/nabbar/eventdispatcher/message"
)

// Connection is a stream-oriented participant: a client that opened
// the fd by connecting, or a server-accepted client that was handed an
// fd by accept. It composes connection.Base (bookkeeping) with
// linebuffer.Mixin (framing), matching spec §4.6's "client and
// server-accepted variants on top of C4+C5".
type Connection struct {
	*connection.Base
	lb *linebuffer.Mixin
	fd int
}

func newConnection(name string, fd int) *Connection {
	c := &Connection{
		Base: connection.NewBase(name),
		lb:   linebuffer.New(fd),
		fd:   fd,
	}
	c.lb.SetLineHandler(c.handleLine)
	return c
}

func (c *Connection) handleLine(line []byte) error {
	m, err := message.Parse(string(line))
	if err != nil {
		logging.For(c.Name()).WithError(err).Warn("dropping malformed line")
		return nil
	}
	disp := c.Dispatcher()
	if disp == nil {
		logging.For(c.Name()).Warn("message received with no dispatcher bound; dropped")
		return nil
	}
	disp.Dispatch(c, m)
	return nil
}

// SendMessage emits m in line format and queues it for transmission,
// satisfying connection.MessageSender.
func (c *Connection) SendMessage(m *message.Message) error {
	text, err := m.Emit(message.FormatLine)
	if err != nil {
		return errs.Wrap(errs.InvalidMessage, err, "stream: emit failed")
	}
	_, err = c.lb.Write([]byte(text + "\n"))
	return err
}

func (c *Connection) Socket() int   { return c.fd }
func (c *Connection) IsReader() bool { return c.fd >= 0 }
func (c *Connection) IsWriter() bool { return c.lb.IsWriter() }

func (c *Connection) ProcessRead() error  { return c.lb.ProcessRead() }
func (c *Connection) ProcessWrite() error { return c.lb.ProcessWrite() }

func (c *Connection) ProcessHup() error {
	if err := c.lb.ProcessHup(); err != nil {
		return err
	}
	c.fd = -1
	return c.Base.ProcessHup()
}

func (c *Connection) ProcessInvalid() error {
	c.fd = -1
	return c.Base.ProcessInvalid()
}

// DialTCP opens a non-blocking TCP client connection (§4.6 "client
// (opens)"). A connect that returns EINPROGRESS is treated as success:
// the reactor observes completion (or failure, via a later read/write
// error) on the next readiness event, matching the non-blocking
// posture every connection kind in this package shares.
func DialTCP(name string, addr TCPAddr) (*Connection, error) {
	domain := unix.AF_INET
	if addr.V6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "stream: socket failed")
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: set nonblock failed")
	}
	if err = unix.Connect(fd, addr.sockaddr()); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: connect failed")
	}
	return newConnection(name, fd), nil
}

// DialUnix opens a non-blocking Unix-domain stream client connection.
func DialUnix(name string, addr UnixAddr) (*Connection, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "stream: socket failed")
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: set nonblock failed")
	}
	sa, err := addr.sockaddr()
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err = unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: connect failed")
	}
	return newConnection(name, fd), nil
}

// newAccepted wraps an fd handed back by accept (§4.6 "server-accepted
// client"). closeOnExec mirrors the spec's "accept optionally sets
// close-on-exec on the returned fd".
func newAccepted(name string, fd int, closeOnExec bool) (*Connection, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: set nonblock failed")
	}
	if closeOnExec {
		unix.CloseOnExec(fd)
	}
	return newConnection(name, fd), nil
}
