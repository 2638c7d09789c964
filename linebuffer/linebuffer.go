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

// Package linebuffer implements the read-until-newline accumulator and
// write-cache mixin shared by every byte-stream connection (§4.5). The
// stream and pipe connection types hold it as a *Mixin field rather
// than use it through an interface: those types own the fd and forward
// process_read/process_write into the mixin.
package linebuffer

import (
	"bytes"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
)

// readChunk is the maximum number of bytes pulled from the fd per
// unix.Read call (§4.5).
const readChunk = 1024

// LineHandler processes one complete line, newline included.
type LineHandler func(line []byte) error

// EmptyHandler fires once the write cache fully drains.
type EmptyHandler func() error

// Mixin accumulates inbound bytes into newline-delimited lines and
// buffers outbound bytes that a non-blocking write could not transmit
// immediately. It holds no fd lifecycle of its own: SetFD is called by
// the embedding connection whenever its descriptor changes (open,
// accept, reconnect).
type Mixin struct {
	mu sync.Mutex

	fd int

	accumulator []byte
	cache       []byte
	cachePos    int

	eventLimit int
	tickBudget time.Duration

	onLine  LineHandler
	onEmpty EmptyHandler
}

// New returns a Mixin bound to fd, with the default fairness limits
// (connection.DefaultEventLimit ticks, connection.DefaultTickBudgetMicros).
func New(fd int) *Mixin {
	return &Mixin{
		fd:         fd,
		eventLimit: 20,
		tickBudget: 100 * time.Microsecond,
	}
}

// SetFD rebinds the mixin to a new descriptor, discarding no buffered
// state: a reconnect that preserves in-flight lines/cache calls this,
// a fresh connection calls it once after New.
func (m *Mixin) SetFD(fd int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fd = fd
}

// SetLineHandler installs the callback process_read invokes once per
// complete line.
func (m *Mixin) SetLineHandler(h LineHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLine = h
}

// SetEmptyHandler installs the callback process_write invokes when the
// cache fully drains (process_empty_buffer, §4.5).
func (m *Mixin) SetEmptyHandler(h EmptyHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEmpty = h
}

// SetEventLimit overrides the per-tick line-count fairness cap.
func (m *Mixin) SetEventLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > 0 {
		m.eventLimit = n
	}
}

// SetTickBudgetMicros overrides the per-tick wall-clock fairness cap.
func (m *Mixin) SetTickBudgetMicros(micros int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if micros > 0 {
		m.tickBudget = time.Duration(micros) * time.Microsecond
	}
}

// HasInput reports whether the line accumulator holds any bytes: an
// unterminated partial line, or complete lines left for the next tick
// by the fairness limit.
func (m *Mixin) HasInput() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accumulator) > 0
}

// HasOutput reports whether the write cache still holds undelivered
// bytes.
func (m *Mixin) HasOutput() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cachePos < len(m.cache)
}

// IsWriter is true iff the fd is valid and the cache is non-empty
// (§4.5): the reactor should request write readiness.
func (m *Mixin) IsWriter() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fd >= 0 && m.cachePos < len(m.cache)
}

// Write queues p for transmission. If the cache is currently empty, an
// immediate non-blocking write is attempted first; any unwritten
// residue (including all of p, on EAGAIN) is appended to the cache. A
// successful call always returns len(p), matching §4.5's "returns len,
// not the number actually transmitted".
func (m *Mixin) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fd < 0 {
		return 0, errs.New(errs.RuntimeError, "linebuffer: write on closed descriptor")
	}

	if len(p) == 0 {
		return 0, nil
	}

	if m.cachePos >= len(m.cache) {
		n, err := unix.Write(m.fd, p)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				n = 0
			} else {
				return 0, errs.Wrap(errs.RuntimeError, err, "linebuffer: write failed")
			}
		}
		if n < len(p) {
			m.cache = append(m.cache[:0:0], p[n:]...)
			m.cachePos = 0
		}
		return len(p), nil
	}

	m.cache = append(m.cache, p...)
	return len(p), nil
}

// ProcessRead implements the bounded read/split/dispatch loop of §4.5:
// it is driven by the embedding connection's ProcessRead override.
// Already-buffered complete lines are dispatched before any further
// read is attempted, so a tick that hits the event-count fairness
// limit mid-buffer leaves the remainder ready for the next tick with
// no additional syscall.
func (m *Mixin) ProcessRead() error {
	deadline := time.Now().Add(m.tickBudgetSnapshot())
	count := 0
	limit := m.eventLimitSnapshot()
	buf := make([]byte, readChunk)

	for {
		if line, ok := m.popLine(); ok {
			if err := m.dispatchLine(line); err != nil {
				return err
			}
			count++
			if count >= limit {
				return nil
			}
			continue
		}

		if time.Now().After(deadline) {
			return nil
		}

		n, err := m.read(buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			return errs.Wrap(errs.RuntimeError, err, "linebuffer: read failed")
		}
		if n == 0 {
			// EOF: stop this tick; the connection's process_hup handles
			// teardown once the reactor observes the hangup.
			return nil
		}

		m.mu.Lock()
		m.accumulator = append(m.accumulator, buf[:n]...)
		m.mu.Unlock()
	}
}

func (m *Mixin) read(buf []byte) (int, error) {
	m.mu.Lock()
	fd := m.fd
	m.mu.Unlock()
	if fd < 0 {
		return 0, errs.New(errs.RuntimeError, "linebuffer: read on closed descriptor")
	}
	return unix.Read(fd, buf)
}

func (m *Mixin) popLine() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := bytes.IndexByte(m.accumulator, '\n')
	if idx < 0 {
		return nil, false
	}
	line := make([]byte, idx+1)
	copy(line, m.accumulator[:idx+1])
	m.accumulator = m.accumulator[idx+1:]
	return line, true
}

func (m *Mixin) dispatchLine(line []byte) error {
	m.mu.Lock()
	h := m.onLine
	m.mu.Unlock()
	if h == nil {
		logging.For("linebuffer").Warn("process_line with no handler installed; line dropped")
		return nil
	}
	return h(line)
}

// ProcessWrite implements §4.5's cache drain: write from the cache
// starting at the saved position; a full drain clears the cache and
// fires the empty-buffer callback.
func (m *Mixin) ProcessWrite() error {
	m.mu.Lock()
	fd := m.fd
	if fd < 0 {
		m.mu.Unlock()
		return errs.New(errs.RuntimeError, "linebuffer: write on closed descriptor")
	}
	if m.cachePos >= len(m.cache) {
		m.mu.Unlock()
		return nil
	}
	pending := m.cache[m.cachePos:]
	m.mu.Unlock()

	n, err := unix.Write(fd, pending)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return errs.Wrap(errs.RuntimeError, err, "linebuffer: write failed")
	}

	m.mu.Lock()
	m.cachePos += n
	drained := m.cachePos >= len(m.cache)
	if drained {
		m.cache = nil
		m.cachePos = 0
	}
	onEmpty := m.onEmpty
	m.mu.Unlock()

	if drained && onEmpty != nil {
		return onEmpty()
	}
	return nil
}

// ProcessHup closes the fd; the embedding connection still runs its
// own base ProcessHup afterward to flip the enable flag (§4.5: "close
// the fd then delegate to the base").
func (m *Mixin) ProcessHup() error {
	m.mu.Lock()
	fd := m.fd
	m.fd = -1
	m.mu.Unlock()
	if fd >= 0 {
		_ = unix.Close(fd)
	}
	return nil
}

func (m *Mixin) eventLimitSnapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eventLimit
}

func (m *Mixin) tickBudgetSnapshot() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tickBudget
}
