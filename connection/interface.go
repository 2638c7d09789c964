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

// Package connection defines the capability surface every reactor
// participant implements (§4.4 of the design). Rather than the source
// library's multiple-inheritance diamond (connection + dispatcher
// support + send-message + line-buffered + stream), capability is
// composed by ownership: Base gives any concrete connection type the
// bookkeeping (enable flag, priority, timer state, dispatcher
// binding); role predicates and the process* callbacks are overridden
// by embedding Base and redefining the methods that differ, not by
// virtual dispatch (§9 design note).
package connection

import "github.com/nabbar/eventdispatcher/message"

// MessageDispatcher is the narrow capability a message-carrying
// connection needs from its bound dispatcher: route one parsed
// message. Defined here (not importing package dispatcher) so that
// connection has no dependency on dispatcher — dispatcher.Dispatcher
// satisfies this interface structurally.
type MessageDispatcher interface {
	Dispatch(sender MessageSender, m *message.Message) bool
}

// MessageSender is the narrow capability the dispatcher's catch-all
// UNKNOWN handler needs: send a reply back out on the connection that
// received the unmatched command.
type MessageSender interface {
	SendMessage(m *message.Message) error
}

// Connection is the contract the reactor drives. Every concrete
// connection kind (timer, signal, stream, datagram, pipe, ...) embeds
// *Base and overrides the subset of methods its role requires.
type Connection interface {
	// Name is a diagnostic label, not used for routing.
	Name() string
	SetName(string)

	// Socket returns the OS file descriptor, or -1 if this connection
	// holds none (timer-only connections, or one not yet opened).
	Socket() int

	IsEnabled() bool
	SetEnabled(bool)

	Priority() int
	SetPriority(int)

	// Role predicates; default false on Base, overridden by kinds that
	// implement the role.
	IsListener() bool
	IsSignal() bool
	IsReader() bool
	IsWriter() bool

	// Timer semantics (§4.4): two independent facilities.
	TimeoutDelay() int64
	SetTimeoutDelay(int64)
	TimeoutDate() int64
	SetTimeoutDate(int64)
	NextTick() int64
	SetNextTick(int64)
	// CalculateNextTick advances the delay-based next tick by whole
	// multiples of TimeoutDelay so ticks stay aligned to the original
	// phase, given the current time now (µs).
	CalculateNextTick(now int64)
	// SavedTimeout is the per-iteration snapshot the reactor computes
	// at step 4 of §4.11: min(NextTick, TimeoutDate), or -1 if neither
	// is armed.
	SavedTimeout() int64
	SetSavedTimeout(int64)

	// Per-tick fairness limits consumed by the line buffer mixin
	// (§4.5); meaningless to connections that do not read a byte
	// stream, but kept on the base so every kind has a uniform budget
	// knob.
	EventLimit() int
	SetEventLimit(int)
	TickBudgetMicros() int64
	SetTickBudgetMicros(int64)

	// FdsPosition is reactor scratch space: the connection's index in
	// the current iteration's poll array, or -1 if it has none.
	FdsPosition() int
	SetFdsPosition(int)

	Dispatcher() MessageDispatcher
	SetDispatcher(MessageDispatcher)

	// Lifecycle callbacks (§4.4, §4.11 step 7). Returning an error is
	// this port's substitute for the source's "throw on unusable
	// connection" (§9): the reactor treats a returned error exactly
	// like the original's caught exception, at the loop boundary.
	ProcessRead() error
	ProcessWrite() error
	ProcessAccept() error
	ProcessTimeout() error
	ProcessError() error
	ProcessHup() error
	ProcessInvalid() error
	ProcessEmptyBuffer() error

	ConnectionAdded()
	ConnectionRemoved()
}
