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

package datagram

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/internal/errs"
)

// NewUDPServer binds a non-blocking UDP socket and returns a
// Connection in the server role (no implicit peer; replies go through
// SendTo).
func NewUDPServer(name string, addr UDPAddr, secret string, onMessage MessageHandler) (*Connection, error) {
	fd, err := unix.Socket(addr.domain(), unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: socket failed")
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: set nonblock failed")
	}
	if err = unix.Bind(fd, addr.sockaddr()); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: bind failed")
	}
	return newConnection(name, fd, secret, onMessage, false), nil
}

// NewUDPClient creates a UDP socket connect()-ed to peer, so Send can
// write without specifying a destination each call.
func NewUDPClient(name string, peer UDPAddr, secret string, onMessage MessageHandler) (*Connection, error) {
	fd, err := unix.Socket(peer.domain(), unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: socket failed")
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: set nonblock failed")
	}
	if err = unix.Connect(fd, peer.sockaddr()); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: connect failed")
	}
	return newConnection(name, fd, secret, onMessage, true), nil
}

// NewUnixServer binds a non-blocking Unix datagram socket.
func NewUnixServer(name string, addr UnixAddr, secret string, onMessage MessageHandler) (*Connection, error) {
	if _, err := os.Lstat(addr.Path); err == nil {
		if err = os.Remove(addr.Path); err != nil {
			return nil, errs.Wrap(errs.InitializationError, err, "datagram: removing stale socket %q failed", addr.Path)
		}
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: socket failed")
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: set nonblock failed")
	}
	if err = unix.Bind(fd, addr.sockaddr()); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: bind failed")
	}
	return newConnection(name, fd, secret, onMessage, false), nil
}

// NewUnixClient creates a Unix datagram socket connect()-ed to peer.
func NewUnixClient(name string, peer UnixAddr, secret string, onMessage MessageHandler) (*Connection, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: socket failed")
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: set nonblock failed")
	}
	if err = unix.Connect(fd, peer.sockaddr()); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "datagram: connect failed")
	}
	return newConnection(name, fd, secret, onMessage, true), nil
}

// Close releases the fd.
func (c *Connection) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}
