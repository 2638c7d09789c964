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
	"strings"

	"github.com/nabbar/eventdispatcher/internal/errs"
)

func isASCIISpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// parseLine implements the line-format grammar of §4.2/§6:
//
//	['<' SERVER ':' SERVICE ' '] [[SERVER ':'] SERVICE '/'] COMMAND [' ' NAME '=' VALUE (';' NAME '=' VALUE)*]
func parseLine(text string) (*Message, error) {
	text = strings.TrimFunc(text, isASCIISpace)
	if text == "" {
		return nil, errs.New(errs.InvalidMessage, "empty message")
	}

	rest := text
	var sentServer, sentService string

	if strings.HasPrefix(rest, "<") {
		rest = rest[1:]
		idx := strings.IndexByte(rest, ':')
		if idx < 0 {
			return nil, errs.New(errs.InvalidMessage, "malformed sent-from prefix in %q", text)
		}
		sentServer = rest[:idx]
		rest = rest[idx+1:]

		idx = strings.IndexByte(rest, ' ')
		if idx < 0 {
			return nil, errs.New(errs.InvalidMessage, "malformed sent-from prefix in %q", text)
		}
		sentService = rest[:idx]
		rest = rest[idx+1:]
	}

	var head, params string
	if idx := strings.IndexByte(rest, ' '); idx >= 0 {
		head, params = rest[:idx], rest[idx+1:]
	} else {
		head = rest
	}
	if head == "" {
		return nil, errs.New(errs.InvalidMessage, "missing command in %q", text)
	}

	var server, service, command string
	if idx := strings.IndexByte(head, '/'); idx >= 0 {
		prefix := head[:idx]
		command = head[idx+1:]
		if idx2 := strings.IndexByte(prefix, ':'); idx2 >= 0 {
			server, service = prefix[:idx2], prefix[idx2+1:]
		} else {
			service = prefix
		}
	} else {
		command = head
	}

	if err := ValidateCommand(command); err != nil {
		return nil, err
	}

	m := &Message{
		sentFromServer:  sentServer,
		sentFromService: sentService,
		server:          server,
		service:         service,
		command:         command,
		parameters:      make(map[string]paramValue),
	}

	if params != "" {
		if err := parseLineParams(params, m); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func parseLineParams(params string, m *Message) error {
	i := 0
	for i < len(params) {
		eq := strings.IndexByte(params[i:], '=')
		if eq < 0 {
			return errs.New(errs.InvalidMessage, "missing '=' in parameter list %q", params)
		}
		name := params[i : i+eq]
		if err := ValidateParameterName(name); err != nil {
			return err
		}
		i += eq + 1

		var value string
		if i < len(params) && params[i] == '"' {
			j := i + 1
			var sb strings.Builder
			closed := false
			for j < len(params) {
				c := params[j]
				if c == '\\' && j+1 < len(params) {
					switch params[j+1] {
					case '"':
						sb.WriteByte('"')
						j += 2
						continue
					case '\\':
						sb.WriteByte('\\')
						j += 2
						continue
					case 'n':
						sb.WriteByte('\n')
						j += 2
						continue
					case 'r':
						sb.WriteByte('\r')
						j += 2
						continue
					default:
						sb.WriteByte(c)
						j++
						continue
					}
				}
				if c == '"' {
					j++
					closed = true
					break
				}
				sb.WriteByte(c)
				j++
			}
			if !closed {
				return errs.New(errs.InvalidMessage, "unterminated quoted value in %q", params)
			}
			value = sb.String()
			i = j
			if i < len(params) {
				if params[i] != ';' {
					return errs.New(errs.InvalidMessage, "expected ';' after quoted value in %q", params)
				}
				i++
			}
		} else {
			semi := strings.IndexByte(params[i:], ';')
			if semi < 0 {
				value = reDecodeBackslashes(params[i:])
				i = len(params)
			} else {
				value = reDecodeBackslashes(params[i : i+semi])
				i += semi + 1
			}
		}

		m.parameters[name] = paramValue{raw: value, kind: kindString}
	}
	return nil
}

func reDecodeBackslashes(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '\\':
				sb.WriteByte('\\')
				i += 2
				continue
			case 'n':
				sb.WriteByte('\n')
				i += 2
				continue
			case 'r':
				sb.WriteByte('\r')
				i += 2
				continue
			}
		}
		sb.WriteByte(s[i])
		i++
	}
	return sb.String()
}

// escapeValue implements the emit-side escaping of §6: backslash,
// newline, and carriage return are always escaped; a value containing
// a semicolon, or starting with a double quote, is wrapped in quotes
// with the quote character itself escaped.
func escapeValue(v string) string {
	needsQuote := strings.ContainsRune(v, ';') || strings.HasPrefix(v, "\"")

	var sb strings.Builder
	for i := 0; i < len(v); i++ {
		switch c := v[i]; c {
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '"':
			if needsQuote {
				sb.WriteString(`\"`)
			} else {
				sb.WriteByte('"')
			}
		default:
			sb.WriteByte(c)
		}
	}

	if needsQuote {
		return `"` + sb.String() + `"`
	}
	return sb.String()
}

func emitLine(m *Message) (string, error) {
	if err := ValidateCommand(m.command); err != nil {
		return "", err
	}

	var sb strings.Builder

	if m.sentFromServer != "" || m.sentFromService != "" {
		sb.WriteByte('<')
		sb.WriteString(m.sentFromServer)
		sb.WriteByte(':')
		sb.WriteString(m.sentFromService)
		sb.WriteByte(' ')
	}

	if m.server != "" || m.service != "" {
		if m.server != "" {
			sb.WriteString(m.server)
			sb.WriteByte(':')
		}
		sb.WriteString(m.service)
		sb.WriteByte('/')
	}

	sb.WriteString(m.command)

	first := true
	for name, val := range m.parameters {
		if err := ValidateParameterName(name); err != nil {
			return "", err
		}
		if first {
			sb.WriteByte(' ')
			first = false
		} else {
			sb.WriteByte(';')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(escapeValue(val.raw))
	}

	return sb.String(), nil
}
