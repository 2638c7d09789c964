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
	"os"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
)

const listenBacklog = 128

// AcceptHandler is invoked with every freshly-accepted client
// connection; typically it binds the dispatcher and registers the
// connection with the reactor.
type AcceptHandler func(c *Connection) error

// UnixServerOptions configures the path-based bind step of §4.6:
// reuse-probe-and-unlink, post-bind chown/chmod, and close-on-exec on
// accept.
type UnixServerOptions struct {
	ForceReuse  bool
	Group       int
	HasGroup    bool
	Mode        os.FileMode
	HasMode     bool
	CloseOnExec bool
}

// Server is a listening stream connection (§4.6 "server (binds +
// listens)"). It is a reader in the reactor's readiness sense only
// through IsListener; ProcessAccept hands each new fd to onAccept.
type Server struct {
	*connection.Base
	fd          int
	closeOnExec bool
	onAccept    AcceptHandler
	unixPath    string
}

func (s *Server) Socket() int     { return s.fd }
func (s *Server) IsListener() bool { return true }

// ProcessAccept implements the listener's sole readiness callback:
// accept as many pending connections as are ready, non-blocking.
func (s *Server) ProcessAccept() error {
	for {
		fd, _, err := unix.Accept(s.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			return errs.Wrap(errs.RuntimeError, err, "stream: accept failed")
		}
		c, err := newAccepted(s.Name()+"-accepted", fd, s.closeOnExec)
		if err != nil {
			logging.For(s.Name()).WithError(err).Error("failed to wrap accepted connection")
			continue
		}
		if s.onAccept != nil {
			if err = s.onAccept(c); err != nil {
				logging.For(s.Name()).WithError(err).Error("accept handler failed")
			}
		}
	}
}

func (s *Server) ProcessHup() error {
	if s.fd >= 0 {
		_ = unix.Close(s.fd)
		s.fd = -1
	}
	return s.Base.ProcessHup()
}

// ListenTCP binds and listens on a TCP address.
func ListenTCP(name string, addr TCPAddr, onAccept AcceptHandler) (*Server, error) {
	domain := unix.AF_INET
	if addr.V6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "stream: socket failed")
	}
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: setsockopt SO_REUSEADDR failed")
	}
	if err = unix.Bind(fd, addr.sockaddr()); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: bind failed")
	}
	return finishListen(name, fd, onAccept, false, "")
}

// ListenUnix binds and listens on a path-based Unix address, applying
// the §4.6 bind algorithm: reuse-probe-and-unlink if the path already
// exists, then chown/chmod per opts.
func ListenUnix(name string, addr UnixAddr, opts UnixServerOptions, onAccept AcceptHandler) (*Server, error) {
	if addr.Form == UnixPath {
		if err := bindPathReuse(addr.Path, opts.ForceReuse); err != nil {
			return nil, err
		}
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "stream: socket failed")
	}
	sa, err := addr.sockaddr()
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: bind failed")
	}

	if addr.Form == UnixPath {
		if opts.HasGroup {
			if err = os.Chown(addr.Path, -1, opts.Group); err != nil {
				_ = unix.Close(fd)
				return nil, errs.Wrap(errs.InitializationError, err, "stream: chown failed")
			}
		}
		if opts.HasMode {
			if err = os.Chmod(addr.Path, opts.Mode); err != nil {
				_ = unix.Close(fd)
				return nil, errs.Wrap(errs.InitializationError, err, "stream: chmod failed")
			}
		}
	}

	return finishListen(name, fd, onAccept, opts.CloseOnExec, addr.Path)
}

func finishListen(name string, fd int, onAccept AcceptHandler, closeOnExec bool, unixPath string) (*Server, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: set nonblock failed")
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return nil, errs.Wrap(errs.InitializationError, err, "stream: listen failed")
	}
	return &Server{
		Base:        connection.NewBase(name),
		fd:          fd,
		closeOnExec: closeOnExec,
		onAccept:    onAccept,
		unixPath:    unixPath,
	}, nil
}

// bindPathReuse implements §4.6 step (a)/(b): if the path exists and
// is not a socket, fail outright; if it exists and is a socket, either
// fail (no force_reuse) or probe-and-unlink (force_reuse set).
func bindPathReuse(path string, forceReuse bool) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.InitializationError, err, "stream: stat %q failed", path)
	}

	if info.Mode()&os.ModeSocket == 0 {
		return errs.New(errs.InitializationError, "stream: %q exists and is not a socket", path)
	}

	if !forceReuse {
		return errs.New(errs.InitializationError, "stream: %q already exists", path)
	}

	if probeInUse(path) {
		return errs.New(errs.InitializationError, "stream: %q is in use by another process", path)
	}

	if err = unix.Unlink(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.InitializationError, err, "stream: unlink %q failed", path)
	}
	return nil
}

// probeInUse attempts a one-shot connect to path: success means a peer
// is actively listening (address in use); any connect failure means
// the socket file is stale and safe to unlink (§4.6).
func probeInUse(path string) bool {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return false
	}
	defer func() { _ = unix.Close(fd) }()

	err = unix.Connect(fd, &unix.SockaddrUnix{Name: path})
	return err == nil
}
