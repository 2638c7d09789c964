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

package message

import (
	"net"
	"strconv"

	"github.com/nabbar/eventdispatcher/internal/errs"
)

// HasParameter reports whether name is present.
func (m *Message) HasParameter(name string) bool {
	_, ok := m.parameters[name]
	return ok
}

// GetParameter returns the raw string value of name.
func (m *Message) GetParameter(name string) (string, error) {
	v, ok := m.parameters[name]
	if !ok {
		return "", errs.New(errs.MissingParameter, "parameter %q is not set", name)
	}
	return v.raw, nil
}

// AddParameter sets name to a string value. The name must pass §4.3
// validation (mixed case allowed).
func (m *Message) AddParameter(name, value string) error {
	if err := ValidateParameterName(name); err != nil {
		return err
	}
	m.parameters[name] = paramValue{raw: value, kind: kindString}
	m.invalidateCache()
	return nil
}

// AddParameterInt32 / AddParameterInt64 / AddParameterUint32 /
// AddParameterUint64 store a numeric parameter, emitted as a JSON
// number (without a fractional part) and as its decimal string on the
// line form.
func (m *Message) AddParameterInt32(name string, value int32) error {
	return m.addNumber(name, strconv.FormatInt(int64(value), 10))
}

func (m *Message) AddParameterInt64(name string, value int64) error {
	return m.addNumber(name, strconv.FormatInt(value, 10))
}

func (m *Message) AddParameterUint32(name string, value uint32) error {
	return m.addNumber(name, strconv.FormatUint(uint64(value), 10))
}

func (m *Message) AddParameterUint64(name string, value uint64) error {
	return m.addNumber(name, strconv.FormatUint(value, 10))
}

func (m *Message) addNumber(name, raw string) error {
	if err := ValidateParameterName(name); err != nil {
		return err
	}
	m.parameters[name] = paramValue{raw: raw, kind: kindNumber}
	m.invalidateCache()
	return nil
}

// GetParameterInt32 parses the stored string as a signed 32-bit
// integer, failing with MissingParameter semantics extended to a
// parse failure (the design groups both under "accessors raise a
// separate missing-parameter kind").
func (m *Message) GetParameterInt32(name string) (int32, error) {
	raw, err := m.GetParameter(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, errs.Wrap(errs.MissingParameter, err, "parameter %q is not a valid int32", name)
	}
	return int32(v), nil
}

func (m *Message) GetParameterInt64(name string) (int64, error) {
	raw, err := m.GetParameter(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.MissingParameter, err, "parameter %q is not a valid int64", name)
	}
	return v, nil
}

func (m *Message) GetParameterUint32(name string) (uint32, error) {
	raw, err := m.GetParameter(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, errs.Wrap(errs.MissingParameter, err, "parameter %q is not a valid uint32", name)
	}
	return uint32(v), nil
}

func (m *Message) GetParameterUint64(name string) (uint64, error) {
	raw, err := m.GetParameter(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.MissingParameter, err, "parameter %q is not a valid uint64", name)
	}
	return v, nil
}

// AddParameterAddr stores an IP:port pair as "ip:port".
func (m *Message) AddParameterAddr(name string, ip net.IP, port uint16) error {
	return m.AddParameter(name, net.JoinHostPort(ip.String(), strconv.Itoa(int(port))))
}

// GetParameterAddr parses an "ip:port" parameter back into its parts.
func (m *Message) GetParameterAddr(name string) (net.IP, uint16, error) {
	raw, err := m.GetParameter(name)
	if err != nil {
		return nil, 0, err
	}
	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		return nil, 0, errs.Wrap(errs.MissingParameter, err, "parameter %q is not a valid address", name)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, errs.New(errs.MissingParameter, "parameter %q has an invalid IP %q", name, host)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, 0, errs.Wrap(errs.MissingParameter, err, "parameter %q has an invalid port %q", name, portStr)
	}
	return ip, uint16(port), nil
}

// CheckVersionParameter requires the "version" parameter to equal
// MessageVersion exactly (§6).
func (m *Message) CheckVersionParameter() error {
	v, err := m.GetParameterInt64("version")
	if err != nil {
		return err
	}
	if v != MessageVersion {
		return errs.New(errs.InvalidParameter, "version mismatch: got %d, want %d", v, MessageVersion)
	}
	return nil
}
