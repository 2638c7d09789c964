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
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
)

// threadDone is a one-shot eventfd-backed connection the worker
// goroutine signals on completion (§4.12's "thread-done" connection).
// Its ProcessRead runs on the reactor's own goroutine, so onReady may
// freely touch the owning Connection's state.
type threadDone struct {
	*connection.Base
	fd      int
	onReady func()
}

func newThreadDone(name string, onReady func()) (*threadDone, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_SEMAPHORE)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "permaconn: thread-done eventfd failed")
	}
	return &threadDone{Base: connection.NewBase(name), fd: fd, onReady: onReady}, nil
}

func (t *threadDone) Socket() int   { return t.fd }
func (t *threadDone) IsReader() bool { return true }

func (t *threadDone) signal() error {
	one := make([]byte, 8)
	binary.LittleEndian.PutUint64(one, 1)
	_, err := unix.Write(t.fd, one)
	if err != nil {
		return errs.Wrap(errs.RuntimeError, err, "permaconn: thread-done signal failed")
	}
	return nil
}

func (t *threadDone) ProcessRead() error {
	buf := make([]byte, 8)
	_, err := unix.Read(t.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return errs.Wrap(errs.RuntimeError, err, "permaconn: thread-done read failed")
	}
	if t.onReady != nil {
		t.onReady()
	}
	return nil
}

func (t *threadDone) close() {
	if t.fd >= 0 {
		_ = unix.Close(t.fd)
		t.fd = -1
	}
}

// startWorker launches a goroutine that performs one connect attempt
// and reports completion through a thread-done connection (§4.12's
// Connecting state). The timer is disabled for the duration.
//
// Thread safety: the goroutine only writes c.result, guarded by c.mu,
// and then signals the eventfd — it never touches reactor state. The
// happens-before edge from that write (under lock) to onThreadDone's
// read (under the same lock, after observing the eventfd tick) is
// this design's stand-in for "the parent joins the thread" (§4.12).
func (c *Connection) startWorker() error {
	done, err := newThreadDone(c.Name()+".done", c.onThreadDone)
	if err != nil {
		logging.For(c.Name()).WithError(err).Error("could not start connect worker")
		return c.rearm()
	}

	c.mu.Lock()
	c.state = Connecting
	c.done = done
	dialer := c.dialer
	c.mu.Unlock()

	c.SetEnabled(false)

	if c.r != nil {
		if err := c.r.AddConnection(done); err != nil {
			return err
		}
	}

	go func() {
		child, derr := dialer(c.Name())

		c.mu.Lock()
		c.result = connectResult{child: child, err: derr}
		c.mu.Unlock()

		_ = done.signal()
	}()

	return nil
}

func (c *Connection) onThreadDone() {
	c.mu.Lock()
	res := c.result
	c.result = connectResult{}
	done := c.done
	c.done = nil
	stillConnecting := c.state == Connecting
	c.mu.Unlock()

	if done != nil {
		if c.r != nil {
			c.r.RemoveConnection(done)
		}
		done.close()
	}

	if !stillConnecting {
		return
	}

	if res.err != nil {
		_ = c.rearm()
		return
	}
	_ = c.becomeConnected(res.child)
}
