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

package pipe

import (
	"encoding/binary"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
	"github.com/nabbar/eventdispatcher/message"
)

// InterThread is a pair of message queues bridged by two
// EFD_SEMAPHORE eventfds, one per side (§4.8). The side that calls New
// is "side A", identified by the OS thread id captured at
// construction; the other side (typically handed to a worker
// goroutine pinned to its own OS thread) is "side B". A send from one
// side pushes onto the other's FIFO and signals the other's eventfd;
// a read pops exactly one message per eventfd decrement.
type InterThread struct {
	creatorTid int

	efdA, efdB int

	mu       sync.Mutex
	toA, toB []*message.Message
}

// NewInterThread creates the pair. The calling goroutine's OS thread
// id is recorded as side A's, per §4.8.
func NewInterThread() (*InterThread, error) {
	efdA, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_SEMAPHORE)
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "pipe: eventfd (side A) failed")
	}
	efdB, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_SEMAPHORE)
	if err != nil {
		_ = unix.Close(efdA)
		return nil, errs.Wrap(errs.InitializationError, err, "pipe: eventfd (side B) failed")
	}
	return &InterThread{
		creatorTid: unix.Gettid(),
		efdA:       efdA,
		efdB:       efdB,
	}, nil
}

// CreatorThreadID returns the OS thread id that constructed the pair
// (side A's identity, §4.8).
func (it *InterThread) CreatorThreadID() int {
	return it.creatorTid
}

// SideA returns side A's reactor-facing Connection.
func (it *InterThread) SideA(name string) *Side {
	return &Side{Base: connection.NewBase(name), it: it, isA: true}
}

// SideB returns side B's reactor-facing Connection.
func (it *InterThread) SideB(name string) *Side {
	return &Side{Base: connection.NewBase(name), it: it, isA: false}
}

func (it *InterThread) push(toA bool, m *message.Message) error {
	it.mu.Lock()
	if toA {
		it.toA = append(it.toA, m)
	} else {
		it.toB = append(it.toB, m)
	}
	it.mu.Unlock()

	fd := it.efdB
	if toA {
		fd = it.efdA
	}
	one := make([]byte, 8)
	binary.LittleEndian.PutUint64(one, 1)
	if _, err := unix.Write(fd, one); err != nil {
		return errs.Wrap(errs.RuntimeError, err, "pipe: eventfd signal failed")
	}
	return nil
}

func (it *InterThread) pop(forA bool) (*message.Message, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if forA {
		if len(it.toA) == 0 {
			return nil, false
		}
		m := it.toA[0]
		it.toA = it.toA[1:]
		return m, true
	}
	if len(it.toB) == 0 {
		return nil, false
	}
	m := it.toB[0]
	it.toB = it.toB[1:]
	return m, true
}

// Side is one endpoint of an InterThread pair.
type Side struct {
	*connection.Base
	it   *InterThread
	isA  bool
}

func (s *Side) Socket() int {
	if s.isA {
		return s.it.efdA
	}
	return s.it.efdB
}

func (s *Side) IsReader() bool { return true }

// SendMessage pushes m onto the other side's FIFO and signals its
// eventfd, satisfying connection.MessageSender.
func (s *Side) SendMessage(m *message.Message) error {
	return s.it.push(!s.isA, m)
}

// ProcessRead consumes one eventfd tick and pops exactly one message
// from this side's FIFO (§4.8's FIFO/eventfd-counter invariant).
func (s *Side) ProcessRead() error {
	buf := make([]byte, 8)
	_, err := unix.Read(s.Socket(), buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return errs.Wrap(errs.RuntimeError, err, "pipe: eventfd read failed")
	}

	m, ok := s.it.pop(s.isA)
	if !ok {
		logging.For(s.Name()).Warn("eventfd signaled with no queued message; dropped tick")
		return nil
	}
	if disp := s.Dispatcher(); disp != nil {
		disp.Dispatch(s, m)
	}
	return nil
}
