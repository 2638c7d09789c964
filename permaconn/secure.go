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

package permaconn

import (
	"bufio"
	"crypto/tls"
	"encoding/binary"
	"net"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
	"github.com/nabbar/eventdispatcher/message"
	"github.com/nabbar/eventdispatcher/transport/stream"
)

// secureChild bridges a TLS-wrapped net.Conn to the reactor the same
// way transport/filewatch bridges fsnotify: once the (blocking)
// handshake completes, a pair of goroutines own the net.Conn and pump
// whole messages through an internal queue, signaling an
// EFD_SEMAPHORE eventfd the reactor polls instead of the raw socket —
// crypto/tls.Conn does not expose one.
type secureChild struct {
	*connection.Base

	conn net.Conn
	efd  int

	mu       sync.Mutex
	queue    []*message.Message
	finished bool
	werr     error

	writeCh   chan *message.Message
	closeOnce sync.Once
}

func dialSecure(name string, addr stream.TCPAddr, cfg *tls.Config) (*secureChild, error) {
	raw, err := net.Dial("tcp", hostPort(addr))
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "permaconn: tls dial failed")
	}

	tc := tls.Client(raw, cfg)
	if err := tc.Handshake(); err != nil {
		_ = raw.Close()
		return nil, errs.Wrap(errs.InitializationError, err, "permaconn: tls handshake failed")
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_SEMAPHORE)
	if err != nil {
		_ = tc.Close()
		return nil, errs.Wrap(errs.InitializationError, err, "permaconn: eventfd failed")
	}

	sc := &secureChild{
		Base:    connection.NewBase(name),
		conn:    tc,
		efd:     efd,
		writeCh: make(chan *message.Message, 64),
	}
	go sc.readPump()
	go sc.writePump()
	return sc, nil
}

func hostPort(addr stream.TCPAddr) string {
	var ip net.IP
	if addr.V6 {
		ip = net.IP(addr.IPv6[:])
	} else {
		ip = net.IP(addr.IP[:])
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(addr.Port))
}

func (sc *secureChild) readPump() {
	scanner := bufio.NewScanner(sc.conn)
	for scanner.Scan() {
		m, err := message.Parse(scanner.Text())
		if err != nil {
			logging.For(sc.Name()).WithError(err).Warn("dropping malformed line")
			continue
		}
		sc.enqueue(m)
	}

	sc.mu.Lock()
	sc.finished = true
	sc.mu.Unlock()
	sc.bump()
}

func (sc *secureChild) writePump() {
	for m := range sc.writeCh {
		text, err := m.Emit(message.FormatLine)
		if err != nil {
			continue
		}
		if _, err := sc.conn.Write([]byte(text + "\n")); err != nil {
			sc.mu.Lock()
			sc.werr = err
			sc.mu.Unlock()
			sc.bump()
			return
		}
	}
}

func (sc *secureChild) enqueue(m *message.Message) {
	sc.mu.Lock()
	sc.queue = append(sc.queue, m)
	sc.mu.Unlock()
	sc.bump()
}

func (sc *secureChild) bump() {
	one := make([]byte, 8)
	binary.LittleEndian.PutUint64(one, 1)
	_, _ = unix.Write(sc.efd, one)
}

func (sc *secureChild) Socket() int    { return sc.efd }
func (sc *secureChild) IsReader() bool { return true }

// SendMessage satisfies connection.MessageSender by handing m to the
// write-pump goroutine.
func (sc *secureChild) SendMessage(m *message.Message) error {
	select {
	case sc.writeCh <- m:
		return nil
	default:
		return errs.New(errs.RuntimeError, "permaconn: secure connection write queue full")
	}
}

// ProcessRead drains one eventfd tick. If it carried a queued message,
// that message is dispatched; otherwise the tick signaled end of
// stream (scanner exhausted, or a write failed), and ProcessRead
// reports that as an error so the reactor's dispatch loop tears this
// connection down exactly like a POLLHUP on a real socket would.
func (sc *secureChild) ProcessRead() error {
	buf := make([]byte, 8)
	_, err := unix.Read(sc.efd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return errs.Wrap(errs.RuntimeError, err, "permaconn: eventfd read failed")
	}

	sc.mu.Lock()
	var m *message.Message
	if len(sc.queue) > 0 {
		m = sc.queue[0]
		sc.queue = sc.queue[1:]
	}
	finished := sc.finished
	werr := sc.werr
	sc.mu.Unlock()

	if m != nil {
		if disp := sc.Dispatcher(); disp != nil {
			disp.Dispatch(sc, m)
		}
		return nil
	}

	if !finished && werr == nil {
		return nil
	}
	return sc.teardown(werr)
}

func (sc *secureChild) teardown(cause error) error {
	var err error
	sc.closeOnce.Do(func() {
		_ = sc.conn.Close()
		_ = unix.Close(sc.efd)
		if cause != nil {
			err = errs.Wrap(errs.RuntimeError, cause, "permaconn: secure connection closed with error")
		} else {
			err = errs.New(errs.RuntimeError, "permaconn: secure connection closed")
		}
	})
	return err
}

// ProcessHup lets childProxy's detach path close this connection the
// same way an error-triggered teardown does.
func (sc *secureChild) ProcessHup() error {
	_ = sc.teardown(nil)
	return sc.Base.ProcessHup()
}
