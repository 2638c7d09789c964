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

import "strings"

// Parse parses text into a new Message. Leading/trailing ASCII
// whitespace is trimmed first; if the first remaining character is
// '{' the JSON format is used, otherwise the line format (§4.2).
func Parse(text string) (*Message, error) {
	trimmed := strings.TrimFunc(text, isASCIISpace)
	if strings.HasPrefix(trimmed, "{") {
		return parseJSON(trimmed)
	}
	return parseLine(trimmed)
}

// ParseInto parses text and, only on success, replaces the receiver's
// content with the parsed result — on any structural error the
// receiver is left unchanged, per §4.2.
func (m *Message) ParseInto(text string) error {
	parsed, err := Parse(text)
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

// Emit serializes the message in the requested format. The result is
// cached per-format and invalidated on any mutating call (SetCommand,
// SetServer, AddParameter, ...).
func (m *Message) Emit(format Format) (string, error) {
	switch format {
	case FormatJSON:
		if m.cacheJSON != nil {
			return *m.cacheJSON, nil
		}
		s, err := emitJSON(m)
		if err != nil {
			return "", err
		}
		m.cacheJSON = &s
		return s, nil
	default:
		if m.cacheLine != nil {
			return *m.cacheLine, nil
		}
		s, err := emitLine(m)
		if err != nil {
			return "", err
		}
		m.cacheLine = &s
		return s, nil
	}
}
