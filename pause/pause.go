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

// Package pause parses the permanent connection's reconnect schedule
// (C13): a comma-separated list of durations producing an ordered
// sequence of delays, handed out one at a time until exhausted.
package pause

import (
	"strconv"
	"strings"
	"time"

	"github.com/nabbar/eventdispatcher/internal/errs"
)

const (
	// DefaultDelayMicros is the single entry used when the input
	// string is empty: 60 seconds.
	DefaultDelayMicros = 60 * 1000 * 1000
	// MaxEntries caps how many delays a single schedule may hold.
	MaxEntries = 255
)

// Schedule is an ordered, repeatable sequence of delays in
// microseconds, optionally flagged as "start delayed" when its first
// entry was written with a leading '-' in the input string.
type Schedule struct {
	delays       []int64
	startDelayed bool
	next         int
}

// Parse builds a Schedule from a comma-separated list of durations.
// Each entry is parsed by the shared duration grammar; a bare number
// with no unit is accepted as a count of seconds. A negative first
// entry's absolute value becomes the initial timer value and is kept
// in the sequence as a positive delay. An empty string defaults to a
// single 60s entry. More than MaxEntries entries is an error.
func Parse(s string) (*Schedule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return &Schedule{delays: []int64{DefaultDelayMicros}}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) > MaxEntries {
		return nil, errs.New(errs.InvalidParameter, "pause: schedule has %d entries, max is %d", len(parts), MaxEntries)
	}

	delays := make([]int64, 0, len(parts))
	startDelayed := false

	for i, p := range parts {
		p = strings.TrimSpace(p)
		negative := strings.HasPrefix(p, "-")
		if negative {
			p = strings.TrimPrefix(p, "-")
		}

		micros, err := parseOneMicros(p)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidParameter, err, "pause: invalid entry %q", parts[i])
		}

		if i == 0 && negative {
			startDelayed = true
		}
		delays = append(delays, micros)
	}

	return &Schedule{delays: delays, startDelayed: startDelayed}, nil
}

func parseOneMicros(p string) (int64, error) {
	if p == "" {
		return 0, errs.New(errs.InvalidParameter, "empty duration entry")
	}
	if f, err := strconv.ParseFloat(p, 64); err == nil {
		if f < 0 {
			return 0, errs.New(errs.InvalidParameter, "negative duration %q", p)
		}
		return int64(f * 1000 * 1000), nil
	}
	d, err := parseUnitDuration(p)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errs.New(errs.InvalidParameter, "negative duration %q", p)
	}
	return d.Microseconds(), nil
}

// parseUnitDuration parses a duration written with Go's standard unit
// suffixes ("2h", "3m30s", ...), tolerating the quoting a hand-edited
// schedule string sometimes carries.
func parseUnitDuration(p string) (time.Duration, error) {
	p = strings.ReplaceAll(p, "\"", "")
	p = strings.ReplaceAll(p, "'", "")
	return time.ParseDuration(p)
}

// StartDelayed reports whether the first entry was written negative,
// meaning the permanent connection should wait before its first
// connect attempt rather than trying immediately.
func (s *Schedule) StartDelayed() bool {
	return s.startDelayed
}

// Len reports the total number of entries in the sequence, however
// many of them NextDelay has already returned.
func (s *Schedule) Len() int {
	return len(s.delays)
}

// NextDelay returns the next delay in microseconds and advances the
// cursor, or -1 once the sequence is exhausted — meaning "no more
// attempts" to the permanent connection, which then gives up.
func (s *Schedule) NextDelay() int64 {
	if s.next >= len(s.delays) {
		return -1
	}
	d := s.delays[s.next]
	s.next++
	return d
}

// Restart resets the cursor to the beginning of the sequence. If the
// first entry was negative (start-delayed), restart skips past it so
// a reconnect cycle after a successful connection doesn't re-impose
// the initial startup delay.
func (s *Schedule) Restart() {
	if s.startDelayed {
		s.next = 1
	} else {
		s.next = 0
	}
}
