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

// Package datagram implements the UDP and Unix-datagram connection
// kinds (C7): a fixed 1 KiB per-datagram cap, blocking/polling/timed
// receive primitives on the server side, and an optional shared-secret
// envelope carried as a "udp_secret" message parameter.
package datagram

import "golang.org/x/sys/unix"

// MaxDatagramSize is the fixed per-datagram byte cap (§4.7).
const MaxDatagramSize = 1024

// SecretParameter is the message parameter name carrying the optional
// shared secret (§4.7).
const SecretParameter = "udp_secret"

// UDPAddr names a UDP endpoint.
type UDPAddr struct {
	IP   [4]byte
	IPv6 [16]byte
	V6   bool
	Port int
}

func (a UDPAddr) sockaddr() unix.Sockaddr {
	if a.V6 {
		return &unix.SockaddrInet6{Port: a.Port, Addr: a.IPv6}
	}
	return &unix.SockaddrInet4{Port: a.Port, Addr: a.IP}
}

func (a UDPAddr) domain() int {
	if a.V6 {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// UnixAddr names a Unix-domain datagram endpoint; a socket file on
// disk, same as the stream package's path form.
type UnixAddr struct {
	Path string
}

func (a UnixAddr) sockaddr() *unix.SockaddrUnix {
	return &unix.SockaddrUnix{Name: a.Path}
}
