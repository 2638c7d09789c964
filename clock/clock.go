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

// Package clock is the single monotonic/wall time source permitted in
// the core (§4.1 of the design). No other package reads the OS clock
// directly; everything that needs "now" calls NowMicros or NowNanos.
package clock

import (
	"time"

	"github.com/nabbar/eventdispatcher/internal/errs"
)

// NowMicros returns the current wall-clock time in microseconds since
// the Unix epoch. The only failure mode is an unusable OS clock, which
// is fatal to the caller.
func NowMicros() (int64, error) {
	n := time.Now()
	if n.IsZero() {
		return 0, errs.New(errs.RuntimeError, "system clock unavailable")
	}
	return n.UnixMicro(), nil
}

// NowNanos returns the current wall-clock time in nanoseconds since the
// Unix epoch.
func NowNanos() (int64, error) {
	n := time.Now()
	if n.IsZero() {
		return 0, errs.New(errs.RuntimeError, "system clock unavailable")
	}
	return n.UnixNano(), nil
}

// MustNowMicros panics on clock failure; used only at points where the
// design (§4.1) calls a clock failure fatal to the whole process (the
// reactor's per-iteration "now" snapshot).
func MustNowMicros() int64 {
	n, err := NowMicros()
	if err != nil {
		panic(err)
	}
	return n
}
