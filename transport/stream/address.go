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

// Package stream implements the TCP and Unix stream connection kinds
// (C6): client, server, and server-accepted-client, each a thin
// role-specific wrapper over connection.Base and linebuffer.Mixin.
package stream

import (
	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/internal/errs"
)

// UnixForm selects how a Unix address binds into the filesystem
// namespace (§4.6).
type UnixForm uint8

const (
	// UnixPath is a regular socket file on disk.
	UnixPath UnixForm = iota
	// UnixAbstract lives in the abstract namespace: no filesystem inode,
	// name prefixed with a NUL byte at the syscall layer.
	UnixAbstract
	// UnixUnnamed is never bound; only valid for a client dialing a peer
	// that is itself bound, or for one end of a socketpair.
	UnixUnnamed
)

// UnixAddr names a Unix-domain endpoint.
type UnixAddr struct {
	Form UnixForm
	Path string
}

func (a UnixAddr) sockaddr() (*unix.SockaddrUnix, error) {
	switch a.Form {
	case UnixUnnamed:
		return &unix.SockaddrUnix{}, nil
	case UnixAbstract:
		return &unix.SockaddrUnix{Name: "\x00" + a.Path}, nil
	case UnixPath:
		if a.Path == "" {
			return nil, errs.New(errs.InvalidParameter, "stream: empty unix path address")
		}
		return &unix.SockaddrUnix{Name: a.Path}, nil
	default:
		return nil, errs.New(errs.InvalidParameter, "stream: unknown unix address form %d", a.Form)
	}
}

// TCPAddr names a TCP endpoint.
type TCPAddr struct {
	IP   [4]byte
	IPv6 [16]byte
	V6   bool
	Port int
}

func (a TCPAddr) sockaddr() unix.Sockaddr {
	if a.V6 {
		return &unix.SockaddrInet6{Port: a.Port, Addr: a.IPv6}
	}
	return &unix.SockaddrInet4{Port: a.Port, Addr: a.IP}
}
