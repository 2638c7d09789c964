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

// Package dispatcher routes an incoming Message to a user callback by
// command name, with first-match semantics and a catch-all UNKNOWN
// reply (§4.10).
package dispatcher

import (
	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/logging"
	"github.com/nabbar/eventdispatcher/message"
)

// MatchMode selects how an entry's name field is interpreted.
type MatchMode uint8

const (
	// MatchExact matches the message command name exactly.
	MatchExact MatchMode = iota
	// MatchPredicate calls a caller-supplied predicate with the
	// command name.
	MatchPredicate
	// MatchAlways matches any command; used for the catch-all entry.
	MatchAlways
)

// Handler processes a matched message. sender lets a handler reply
// without depending on the concrete connection type.
type Handler func(sender connection.MessageSender, m *message.Message) error

// Predicate decides whether an entry matches a command name, for
// MatchPredicate entries.
type Predicate func(command string) bool

type entry struct {
	name      string
	predicate Predicate
	mode      MatchMode
	handler   Handler
}

// Dispatcher is an ordered, immutable-after-install list of match
// entries. Dispatch walks the list in declaration order and invokes
// the first entry whose match predicate accepts the command.
type Dispatcher struct {
	entries   []entry
	installed bool
}

// New returns an empty, not-yet-installed Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// On registers an exact-match entry. Panics if the dispatcher has
// already been installed (§4.10: "dispatch tables are immutable after
// installation").
func (d *Dispatcher) On(command string, h Handler) *Dispatcher {
	d.mustBeEditable()
	d.entries = append(d.entries, entry{name: command, mode: MatchExact, handler: h})
	return d
}

// OnMatch registers a predicate-match entry.
func (d *Dispatcher) OnMatch(p Predicate, h Handler) *Dispatcher {
	d.mustBeEditable()
	d.entries = append(d.entries, entry{predicate: p, mode: MatchPredicate, handler: h})
	return d
}

// OnAny registers a catch-all entry. Conventionally installed last; an
// earlier OnAny makes every later entry unreachable, which Dispatch
// will simply honor (first match wins, as documented).
func (d *Dispatcher) OnAny(h Handler) *Dispatcher {
	d.mustBeEditable()
	d.entries = append(d.entries, entry{mode: MatchAlways, handler: h})
	return d
}

// Install freezes the dispatch table. Dispatch works before Install
// too (tests commonly skip it), but On/OnMatch/OnAny panic afterward.
func (d *Dispatcher) Install() *Dispatcher {
	d.installed = true
	return d
}

func (d *Dispatcher) mustBeEditable() {
	if d.installed {
		panic("dispatcher: cannot register a handler after Install")
	}
}

func (e entry) matches(command string) bool {
	switch e.mode {
	case MatchExact:
		return e.name == command
	case MatchPredicate:
		return e.predicate != nil && e.predicate(command)
	case MatchAlways:
		return true
	default:
		return false
	}
}

// Dispatch routes m to the first matching entry's handler. If no entry
// matches, it sends an UNKNOWN reply back via sender carrying the
// original command in a "command" parameter (§4.10, §6) and reports
// the message as unhandled.
func (d *Dispatcher) Dispatch(sender connection.MessageSender, m *message.Message) bool {
	for _, e := range d.entries {
		if e.matches(m.Command()) {
			if err := e.handler(sender, m); err != nil {
				logging.For("dispatcher").WithError(err).Errorf("handler for %q failed", m.Command())
			}
			return true
		}
	}

	reply := message.New("UNKNOWN")
	reply.ReplyTo(m)
	if err := reply.AddParameter("command", m.Command()); err != nil {
		logging.For("dispatcher").WithError(err).Error("failed to build UNKNOWN reply")
		return false
	}
	if err := sender.SendMessage(reply); err != nil {
		logging.For("dispatcher").WithError(err).Warn("failed to send UNKNOWN reply")
	}
	return false
}

// GetCommands collects the literal command names of every exact-match
// entry, for a COMMANDS introspection reply (§4.10).
func (d *Dispatcher) GetCommands() []string {
	out := make([]string, 0, len(d.entries))
	for _, e := range d.entries {
		if e.mode == MatchExact {
			out = append(out, e.name)
		}
	}
	return out
}
