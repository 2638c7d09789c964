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

import "github.com/nabbar/eventdispatcher/internal/errs"

// ValidateName enforces the identifier rules of §4.3: non-empty
// (unless allowEmpty), ASCII letters/digits/underscore only, not
// starting with a digit, and — when commandCase is true — uppercase
// only (used for command names; parameter names allow mixed case).
func ValidateName(name string, allowEmpty, commandCase bool) error {
	if name == "" {
		if allowEmpty {
			return nil
		}
		return errs.New(errs.InvalidMessage, "name must not be empty")
	}

	for i, r := range name {
		switch {
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return errs.New(errs.InvalidMessage, "name %q must not start with a digit", name)
			}
		case r >= 'a' && r <= 'z':
			if commandCase {
				return errs.New(errs.InvalidMessage, "command name %q must be uppercase", name)
			}
		case r >= 'A' && r <= 'Z':
			// always allowed
		default:
			return errs.New(errs.InvalidMessage, "name %q contains an invalid character %q", name, r)
		}
	}

	return nil
}

// ValidateCommand validates a command name: non-empty, uppercase only.
func ValidateCommand(name string) error {
	return ValidateName(name, false, true)
}

// ValidateParameterName validates a parameter name: non-empty, mixed
// case allowed.
func ValidateParameterName(name string) error {
	return ValidateName(name, false, false)
}
