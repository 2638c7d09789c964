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

// Package errs defines the error kinds shared by every component of the
// event-dispatch core: invalid wire data, missing accessors, bad API
// arguments, OS resource setup failures, runtime I/O failures, and
// mid-stream protocol violations.
package errs

import (
	"fmt"
	"runtime"
)

// Kind is the closed set of error categories the core ever raises.
type Kind uint8

const (
	// UnknownKind is never produced by this package; it is the zero value.
	UnknownKind Kind = iota
	// InvalidMessage covers malformed wire text, invalid names, and a
	// missing required field at emit time.
	InvalidMessage
	// MissingParameter covers a typed accessor called for an absent
	// parameter.
	MissingParameter
	// InvalidParameter covers an out-of-range argument at an API boundary.
	InvalidParameter
	// InitializationError covers an OS resource that could not be
	// created or configured (socket, bind, listen, eventfd, inotify,
	// signalfd).
	InitializationError
	// RuntimeError covers an unexpected OS error during I/O.
	RuntimeError
	// UnexpectedData covers a wire invariant violated mid-stream.
	UnexpectedData
)

//nolint:exhaustive
func (k Kind) String() string {
	switch k {
	case InvalidMessage:
		return "invalid message"
	case MissingParameter:
		return "missing parameter"
	case InvalidParameter:
		return "invalid parameter"
	case InitializationError:
		return "initialization error"
	case RuntimeError:
		return "runtime error"
	case UnexpectedData:
		return "unexpected data"
	}
	return "unknown error"
}

// Error is the concrete error type returned by every package in this
// module. It carries a Kind for programmatic matching (errors.Is against
// a Sentinel of that Kind, see below), a human message, an optional
// wrapped cause, and the frame where it was raised.
type Error struct {
	kind  Kind
	msg   string
	cause error
	frame runtime.Frame
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return wrap(kind, nil, format, args...)
}

// Wrap creates an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return wrap(kind, cause, format, args...)
}

func wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	var frame runtime.Frame

	if pc, file, line, ok := runtime.Caller(2); ok {
		frame = runtime.Frame{PC: pc, File: file, Line: line}
	}

	return &Error{
		kind:  kind,
		msg:   fmt.Sprintf(format, args...),
		cause: cause,
		frame: frame,
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Kind returns the error category.
func (e *Error) Kind() Kind {
	if e == nil {
		return UnknownKind
	}
	return e.kind
}

// Frame returns the call site that raised the error, for diagnostics.
func (e *Error) Frame() runtime.Frame {
	if e == nil {
		return runtime.Frame{}
	}
	return e.frame
}

// Is allows errors.Is(err, errs.Sentinel(errs.InvalidMessage)) style
// matching: any *Error target of the same kind matches, whatever its
// message or cause.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.kind == e.kind
}

// Sentinel returns a zero-message *Error of the given kind, suitable as
// an errors.Is comparison target: `errors.Is(err, errs.Sentinel(errs.InvalidMessage))`.
func Sentinel(kind Kind) *Error {
	return &Error{kind: kind}
}
