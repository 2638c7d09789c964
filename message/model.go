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

// Package message implements the structured wire record shared by every
// message-carrying connection (§3, §4.2, §6 of the design): the
// routing tuple, command, and parameter map, with line and JSON
// encodings that round-trip losslessly.
package message

// MessageVersion is the wire-protocol version carried in the optional
// "version" parameter; see CheckVersionParameter.
const MessageVersion = 1

// Format selects which of the two on-the-wire encodings Emit produces.
type Format uint8

const (
	// FormatLine is the compact, semicolon-delimited encoding (§6).
	FormatLine Format = iota
	// FormatJSON is the structured object encoding (§6).
	FormatJSON
)

type paramKind uint8

const (
	kindString paramKind = iota
	kindNumber
	kindBool
	kindNull
)

type paramValue struct {
	raw  string
	kind paramKind
}

// Message is a structured record with an optional routing tuple, a
// mandatory command, and a parameter map. Zero value is a usable empty
// message with no command (Emit fails until one is set).
type Message struct {
	sentFromServer  string
	sentFromService string
	server          string
	service         string
	command         string
	parameters      map[string]paramValue

	cacheLine *string
	cacheJSON *string
}

// New creates a message with the given command set. Panics are never
// used here: an invalid command is only rejected when the message is
// actually serialized, matching the design's "leave object unchanged
// on structural error" parse contract — New simply stores what it is
// given and lets Emit surface the error.
func New(command string) *Message {
	return &Message{
		command:    command,
		parameters: make(map[string]paramValue),
	}
}

// WithParameter is a fluent helper chaining AddParameter, grounded on
// the builder idiom used across the teacher corpus (context, logger
// entries). It panics on an invalid parameter name since it is meant
// for call sites constructing literal, known-good messages; dynamic
// input should use AddParameter and check the error.
func (m *Message) WithParameter(name, value string) *Message {
	if err := m.AddParameter(name, value); err != nil {
		panic(err)
	}
	return m
}

func (m *Message) invalidateCache() {
	m.cacheLine = nil
	m.cacheJSON = nil
}

// Command returns the message's command name.
func (m *Message) Command() string { return m.command }

// SetCommand sets the command name, invalidating cached serializations.
func (m *Message) SetCommand(command string) {
	m.command = command
	m.invalidateCache()
}

// SentFromServer / SentFromService / Server / Service are the routing
// tuple accessors (§3).
func (m *Message) SentFromServer() string  { return m.sentFromServer }
func (m *Message) SentFromService() string { return m.sentFromService }
func (m *Message) Server() string          { return m.server }
func (m *Message) Service() string         { return m.service }

func (m *Message) SetSentFromServer(v string) {
	m.sentFromServer = v
	m.invalidateCache()
}
func (m *Message) SetSentFromService(v string) {
	m.sentFromService = v
	m.invalidateCache()
}
func (m *Message) SetServer(v string) {
	m.server = v
	m.invalidateCache()
}
func (m *Message) SetService(v string) {
	m.service = v
	m.invalidateCache()
}

// ReplyTo copies the sent-from fields of other into this message's
// routing target, per §4.2 reply_to: a handler replying to an incoming
// message addresses the reply back at the peer that sent it.
func (m *Message) ReplyTo(other *Message) {
	m.SetServer(other.SentFromServer())
	m.SetService(other.SentFromService())
}

// ParameterNames returns the parameter names in unspecified order
// (§4.2: "tests must treat ordering as unspecified").
func (m *Message) ParameterNames() []string {
	out := make([]string, 0, len(m.parameters))
	for k := range m.parameters {
		out = append(out, k)
	}
	return out
}

// Equal compares the four routing fields, command, and parameter map
// (as strings) of two messages — the equality invariant 1 in §8
// requires, explicitly excluding cached serialization and parameter
// order.
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.sentFromServer != o.sentFromServer ||
		m.sentFromService != o.sentFromService ||
		m.server != o.server ||
		m.service != o.service ||
		m.command != o.command {
		return false
	}
	if len(m.parameters) != len(o.parameters) {
		return false
	}
	for k, v := range m.parameters {
		ov, ok := o.parameters[k]
		if !ok || ov.raw != v.raw {
			return false
		}
	}
	return true
}
