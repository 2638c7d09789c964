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

// Package reactor implements the single-threaded, readiness-polling
// event loop (C11): one instance multiplexes every connection kind in
// this module onto a single unix.Poll call per iteration.
package reactor

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/clock"
	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
)

// Reactor owns a set of connections and drives their readiness events
// and timers from a single poll loop (§4.11). Per the design's
// "one reactor per process" non-goal, production code should reach it
// through Default(); New() remains available so isolated instances can
// be built and torn down independently (tests, embedding scenarios).
type Reactor struct {
	mu      sync.Mutex
	conns   []connection.Connection
	dirty   bool
	metrics *Metrics
}

// New returns an independent Reactor instance.
func New() *Reactor {
	return &Reactor{}
}

var (
	defaultOnce sync.Once
	defaultInst *Reactor
)

// Default returns the process-wide reactor instance, constructing it
// on first use (§4.11's "singleton per process").
func Default() *Reactor {
	defaultOnce.Do(func() {
		defaultInst = New()
	})
	return defaultInst
}

// WithMetrics attaches a Prometheus-backed Metrics recorder; nil
// disables metrics recording (the default).
func (r *Reactor) WithMetrics(m *Metrics) *Reactor {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
	return r
}

// AddConnection rejects a nil connection, a connection reporting
// neither a valid socket nor an armed timer, and duplicates (§4.11).
func (r *Reactor) AddConnection(c connection.Connection) error {
	if c == nil {
		return errs.New(errs.InvalidParameter, "reactor: nil connection")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Socket() < 0 && c.TimeoutDelay() < 0 && c.TimeoutDate() < 0 {
		return errs.New(errs.InvalidParameter, "reactor: connection %q has no socket and no timer", c.Name())
	}
	for _, existing := range r.conns {
		if existing == c {
			return errs.New(errs.InvalidParameter, "reactor: connection %q already added", c.Name())
		}
	}

	r.conns = append(r.conns, c)
	r.dirty = true
	c.ConnectionAdded()
	if r.metrics != nil {
		r.metrics.observeAdd()
	}
	return nil
}

// RemoveConnection is idempotent: removing an absent connection
// returns false rather than erroring (§4.11).
func (r *Reactor) RemoveConnection(c connection.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.conns {
		if existing == c {
			r.conns = append(r.conns[:i:i], r.conns[i+1:]...)
			r.dirty = true
			existing.ConnectionRemoved()
			if r.metrics != nil {
				r.metrics.observeRemove()
			}
			return true
		}
	}
	return false
}

// MarkDirty requests a re-sort on the next iteration. Call it after
// changing a connection's priority in place; the reactor has no way
// to observe that mutation itself (§4.11's "sorting is requested
// whenever priority changes").
func (r *Reactor) MarkDirty() {
	r.mu.Lock()
	r.dirty = true
	r.mu.Unlock()
}

// Count reports how many connections are currently registered.
func (r *Reactor) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Run drives RunOnce until it reports normal exit, a fatal error, or
// ctx is cancelled.
func (r *Reactor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cont, err := r.RunOnce()
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

type snapshotEntry struct {
	conn         connection.Connection
	enabled      bool
	savedTimeout int64
	pollIdx      int
}

// RunOnce executes exactly one iteration of the run loop (§4.11's
// numbered steps). It returns (true, nil) when the caller should keep
// looping, (false, nil) on the empty-set normal exit, and (false, err)
// on any fatal condition.
func (r *Reactor) RunOnce() (bool, error) {
	r.mu.Lock()
	if len(r.conns) == 0 {
		r.mu.Unlock()
		return false, nil
	}
	if r.dirty {
		sort.SliceStable(r.conns, func(i, j int) bool {
			return r.conns[i].Priority() < r.conns[j].Priority()
		})
		r.dirty = false
	}
	snapshot := make([]connection.Connection, len(r.conns))
	copy(snapshot, r.conns)
	r.mu.Unlock()

	now := clock.MustNowMicros()

	entries := make([]snapshotEntry, len(snapshot))
	var pollFds []unix.PollFd
	earliest := int64(-1)

	for i, c := range snapshot {
		e := snapshotEntry{conn: c, enabled: c.IsEnabled(), pollIdx: -1}
		if e.enabled {
			if c.TimeoutDelay() >= 0 && c.NextTick() < 0 {
				c.CalculateNextTick(now)
			}
			e.savedTimeout = savedTimeoutFor(c)
			c.SetSavedTimeout(e.savedTimeout)
			if e.savedTimeout >= 0 && (earliest < 0 || e.savedTimeout < earliest) {
				earliest = e.savedTimeout
			}

			flags := readinessFlags(c)
			if c.Socket() >= 0 && flags != 0 {
				e.pollIdx = len(pollFds)
				pollFds = append(pollFds, unix.PollFd{Fd: int32(c.Socket()), Events: flags})
			}
		} else {
			e.savedTimeout = -1
		}
		entries[i] = e
	}

	timeoutMs, fatal := computeTimeoutMs(earliest, now, len(pollFds) > 0)
	if fatal {
		logging.For("reactor").Error("nothing to wait for: no poll entries and no armed timer")
		return false, errs.New(errs.RuntimeError, "reactor: no poll entries and no timer armed")
	}

	n, err := unix.Poll(pollFds, timeoutMs)
	if err != nil {
		return false, r.fatalPollError(err)
	}
	_ = n

	now = clock.MustNowMicros()

	for _, e := range entries {
		if !e.enabled {
			continue
		}
		if e.pollIdx >= 0 {
			revents := pollFds[e.pollIdx].Revents
			if revents != 0 {
				if err := r.dispatchReadiness(e.conn, revents); err != nil {
					logging.For(e.conn.Name()).WithError(err).Error("connection callback returned an error")
				}
			}
		}
		if e.savedTimeout >= 0 && e.savedTimeout <= now {
			e.conn.CalculateNextTick(now)
			if d := e.conn.TimeoutDate(); d >= 0 && d <= now {
				e.conn.SetTimeoutDate(-1)
			}
			if err := e.conn.ProcessTimeout(); err != nil {
				logging.For(e.conn.Name()).WithError(err).Error("process_timeout returned an error")
			}
			if r.metrics != nil {
				r.metrics.observeTimeout()
			}
		}
	}

	if r.metrics != nil {
		r.metrics.observeIteration(len(snapshot), len(pollFds))
	}
	return true, nil
}

func savedTimeoutFor(c connection.Connection) int64 {
	nt, td := c.NextTick(), c.TimeoutDate()
	switch {
	case nt < 0 && td < 0:
		return -1
	case nt < 0:
		return td
	case td < 0:
		return nt
	case nt < td:
		return nt
	default:
		return td
	}
}

func readinessFlags(c connection.Connection) int16 {
	var flags int16
	if c.IsListener() || c.IsSignal() || c.IsReader() {
		flags |= unix.POLLIN
	}
	if c.IsWriter() {
		flags |= unix.POLLOUT
	}
	return flags
}

// computeTimeoutMs converts the earliest saved timeout (µs, -1 if
// none) relative to now into a poll() timeout in ms (§4.11 step 5).
// fatal is true iff there is nothing to wait on at all.
func computeTimeoutMs(earliest, now int64, havePollEntries bool) (int, bool) {
	if earliest < 0 {
		if !havePollEntries {
			return 0, true
		}
		return -1, false
	}
	remain := earliest - now
	if remain < 0 {
		remain = 0
	}
	ms := remain / 1000
	if ms == 0 && remain > 0 {
		ms = 1
	}
	return int(ms), false
}

// dispatchReadiness fires the fixed per-connection callback order for
// one iteration's revents (§4.11 step 7): signal/accept/read, then
// write, then error, then hup, then invalid. More than one may fire.
func (r *Reactor) dispatchReadiness(c connection.Connection, revents int16) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if revents&(unix.POLLIN|unix.POLLPRI) != 0 {
		switch {
		case c.IsSignal():
			record(c.ProcessRead())
		case c.IsListener():
			record(c.ProcessAccept())
		default:
			record(c.ProcessRead())
		}
	}
	if revents&unix.POLLOUT != 0 {
		record(c.ProcessWrite())
	}
	if revents&unix.POLLERR != 0 {
		record(c.ProcessError())
	}
	if revents&(unix.POLLHUP|unix.POLLRDHUP) != 0 {
		record(c.ProcessHup())
	}
	if revents&unix.POLLNVAL != 0 {
		record(c.ProcessInvalid())
	}
	return firstErr
}

// fatalPollError classifies a poll() errno per §4.11 step 8. Every
// branch in this design is fatal; the distinction is only in what
// diagnostic gets logged.
func (r *Reactor) fatalPollError(err error) error {
	switch err {
	case unix.EINTR:
		logging.For("reactor").WithError(err).Error("poll interrupted by a signal; signals must be handled via a signal connection")
		return errs.Wrap(errs.RuntimeError, err, "reactor: poll interrupted (EINTR)")
	case unix.EFAULT, unix.EINVAL, unix.ENOMEM:
		soft, hard, ferr := currentFDLimit()
		entry := logging.For("reactor").WithError(err)
		if ferr == nil {
			entry = entry.WithField("fd_limit_soft", soft).WithField("fd_limit_hard", hard)
		}
		entry.Error("poll failed with a resource error")
		return errs.Wrap(errs.RuntimeError, err, "reactor: poll failed (resource error)")
	default:
		logging.For("reactor").WithError(err).Error("poll failed")
		return errs.Wrap(errs.RuntimeError, err, "reactor: poll failed")
	}
}
