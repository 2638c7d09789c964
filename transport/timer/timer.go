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

// Package timer implements the fd-less timer connection (C9): a
// connection that contributes no poll entry (Socket returns -1) and
// exists solely to receive ProcessTimeout once its delay/date facility
// (inherited from connection.Base) comes due.
package timer

import (
	"github.com/nabbar/eventdispatcher/connection"
)

// Handler is invoked every time the armed timer facility fires.
type Handler func() error

// Connection is a fd-less timer (§4.9). Arm it with SetTimeoutDelay
// for a periodic tick or SetTimeoutDate for a one-shot deadline (both
// inherited from connection.Base); the reactor calls ProcessTimeout
// when due.
type Connection struct {
	*connection.Base
	onTimeout Handler
}

// New creates a disarmed timer connection; arm it via
// SetTimeoutDelay/SetTimeoutDate before adding it to a reactor.
func New(name string, onTimeout Handler) *Connection {
	return &Connection{
		Base:      connection.NewBase(name),
		onTimeout: onTimeout,
	}
}

// Socket always returns -1: a timer connection owns no file
// descriptor (§4.9).
func (c *Connection) Socket() int { return -1 }

// ProcessTimeout invokes the configured handler, if any.
func (c *Connection) ProcessTimeout() error {
	if c.onTimeout == nil {
		return nil
	}
	return c.onTimeout()
}
