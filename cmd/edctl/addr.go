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

package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/nabbar/eventdispatcher/transport/stream"
)

// parseTCPAddr resolves a "host:port" string into a stream.TCPAddr,
// picking the first IPv4 address returned unless only IPv6 addresses
// are available.
func parseTCPAddr(hostport string) (stream.TCPAddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return stream.TCPAddr{}, fmt.Errorf("edctl: invalid address %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return stream.TCPAddr{}, fmt.Errorf("edctl: invalid port %q: %w", portStr, err)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return stream.TCPAddr{}, fmt.Errorf("edctl: cannot resolve %q: %w", host, err)
	}

	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			var b [4]byte
			copy(b[:], ip4)
			return stream.TCPAddr{IP: b, Port: port}, nil
		}
	}

	ip16 := ips[0].To16()
	if ip16 == nil {
		return stream.TCPAddr{}, fmt.Errorf("edctl: unresolvable address %q", hostport)
	}
	var b [16]byte
	copy(b[:], ip16)
	return stream.TCPAddr{V6: true, IPv6: b, Port: port}, nil
}
