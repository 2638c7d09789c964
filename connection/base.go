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

package connection

import (
	"github.com/nabbar/eventdispatcher/internal/logging"
)

// DefaultEventLimit is the per-tick fairness cap the line buffer mixin
// applies when a connection has not set its own (§4.5).
const DefaultEventLimit = 20

// DefaultTickBudgetMicros is the per-tick wall-clock fairness budget
// (§4.5), roughly 100 microseconds.
const DefaultTickBudgetMicros = 100

// NoTimeout is the sentinel meaning "this timer facility is disabled".
const NoTimeout int64 = -1

// Base implements Connection with the bookkeeping every concrete
// connection kind shares: enable flag, priority, the two independent
// timer facilities, fairness budget, dispatcher binding, and reactor
// scratch space. Role predicates default to false; lifecycle
// callbacks default to logging the event and returning nil, and the
// error/hup/invalid ones also disable the connection (ProcessError-style
// kinds are expected to be overridden by any connection that can
// actually produce that event).
type Base struct {
	name    string
	enabled bool
	prio    int

	timeoutDelay int64
	timeoutDate  int64
	nextTick     int64
	savedTimeout int64

	eventLimit int
	tickBudget int64

	fdsPosition int

	disp MessageDispatcher
}

// NewBase returns a Base ready to embed into a concrete connection
// type. Connections start enabled, at priority 0, with both timer
// facilities disabled.
func NewBase(name string) *Base {
	return &Base{
		name:         name,
		enabled:      true,
		timeoutDelay: NoTimeout,
		timeoutDate:  NoTimeout,
		nextTick:     NoTimeout,
		savedTimeout: NoTimeout,
		eventLimit:   DefaultEventLimit,
		tickBudget:   DefaultTickBudgetMicros,
		fdsPosition:  -1,
	}
}

func (b *Base) Name() string     { return b.name }
func (b *Base) SetName(n string) { b.name = n }

// Socket is overridden by any connection kind that owns a real file
// descriptor; the base itself holds none.
func (b *Base) Socket() int { return -1 }

func (b *Base) IsEnabled() bool    { return b.enabled }
func (b *Base) SetEnabled(e bool)  { b.enabled = e }
func (b *Base) Priority() int      { return b.prio }
func (b *Base) SetPriority(p int)  { b.prio = p }

func (b *Base) IsListener() bool { return false }
func (b *Base) IsSignal() bool   { return false }
func (b *Base) IsReader() bool   { return false }
func (b *Base) IsWriter() bool   { return false }

func (b *Base) TimeoutDelay() int64     { return b.timeoutDelay }
func (b *Base) TimeoutDate() int64      { return b.timeoutDate }
func (b *Base) NextTick() int64         { return b.nextTick }
func (b *Base) SetNextTick(t int64)     { b.nextTick = t }
func (b *Base) SavedTimeout() int64     { return b.savedTimeout }
func (b *Base) SetSavedTimeout(t int64) { b.savedTimeout = t }

// SetTimeoutDelay arms the periodic tick facility: the first tick
// fires delayMicros after the reactor's next iteration picks it up, or
// after an explicit CalculateNextTick (§4.4). A negative value
// disables it.
func (b *Base) SetTimeoutDelay(delayMicros int64) {
	b.timeoutDelay = delayMicros
	if delayMicros < 0 {
		b.nextTick = NoTimeout
		return
	}
	// nextTick is recomputed relative to "now" by CalculateNextTick on
	// the next reactor iteration if left at NoTimeout; callers that
	// need it armed immediately should also call CalculateNextTick.
	b.nextTick = NoTimeout
}

// SetTimeoutDate arms the one-shot deadline facility.
func (b *Base) SetTimeoutDate(deadlineMicros int64) {
	b.timeoutDate = deadlineMicros
}

// CalculateNextTick advances the delay-based next tick by whole
// multiples of TimeoutDelay so ticks stay aligned to the original
// phase, per §4.4.
func (b *Base) CalculateNextTick(now int64) {
	if b.timeoutDelay < 0 {
		b.nextTick = NoTimeout
		return
	}
	if b.nextTick < 0 {
		b.nextTick = now + b.timeoutDelay
		return
	}
	for b.nextTick <= now {
		b.nextTick += b.timeoutDelay
	}
}

func (b *Base) EventLimit() int        { return b.eventLimit }
func (b *Base) SetEventLimit(n int)    { b.eventLimit = n }
func (b *Base) TickBudgetMicros() int64     { return b.tickBudget }
func (b *Base) SetTickBudgetMicros(n int64) { b.tickBudget = n }

func (b *Base) FdsPosition() int     { return b.fdsPosition }
func (b *Base) SetFdsPosition(p int) { b.fdsPosition = p }

func (b *Base) Dispatcher() MessageDispatcher    { return b.disp }
func (b *Base) SetDispatcher(d MessageDispatcher) { b.disp = d }

// The following default lifecycle callbacks write a structured log
// entry (§4.4). ProcessError, ProcessHup and ProcessInvalid also
// disable the connection; they do not remove it from the reactor, so it
// stays registered until RemoveConnection is called for it. A
// connection kind that can legitimately produce one of these events
// overrides the method on its own embedding type.

func (b *Base) ProcessRead() error {
	logging.For(b.name).Warn("process_read called on a connection with no read behavior")
	return nil
}

func (b *Base) ProcessWrite() error {
	logging.For(b.name).Warn("process_write called on a connection with no write behavior")
	return nil
}

func (b *Base) ProcessAccept() error {
	logging.For(b.name).Warn("process_accept called on a non-listener connection")
	return nil
}

func (b *Base) ProcessTimeout() error {
	return nil
}

func (b *Base) ProcessError() error {
	logging.For(b.name).Error("connection reported an error; disabling")
	b.enabled = false
	return nil
}

func (b *Base) ProcessHup() error {
	logging.For(b.name).Info("connection hung up; disabling")
	b.enabled = false
	return nil
}

func (b *Base) ProcessInvalid() error {
	logging.For(b.name).Error("connection reported an invalid descriptor; disabling")
	b.enabled = false
	return nil
}

func (b *Base) ProcessEmptyBuffer() error {
	return nil
}

func (b *Base) ConnectionAdded() {
	logging.For(b.name).Debug("connection added to reactor")
}

func (b *Base) ConnectionRemoved() {
	logging.For(b.name).Debug("connection removed from reactor")
}
