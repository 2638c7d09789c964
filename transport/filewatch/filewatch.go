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

// Package filewatch implements the inotify-style file-changed
// connection (C9). fsnotify.Watcher does not expose the raw inotify fd
// its backend owns, so instead of polling that fd directly this
// connection runs a background goroutine draining fsnotify's Events/
// Errors channels into an internal queue, and signals each arrival on
// an eventfd the reactor can register exactly the way it registers any
// other connection's Socket().
package filewatch

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
)

// Mask is the high-level event mask (§4.9), independent of the
// backing OS primitive.
type Mask uint32

const (
	Attributes Mask = 1 << iota
	Read
	Write
	Created
	Deleted
	Access
	Updated

	// Output-only flags, set on delivered Event but never accepted as
	// input to Watch*.
	Directory
	Gone
	Unmounted
	LostSync
	Error
)

// Event is one delivered file-change notification. WatchID identifies
// which registered watch produced it, stable across merges (§4.9).
type Event struct {
	Path    string
	Mask    Mask
	WatchID string
}

// Handler receives one delivered Event.
type Handler func(Event)

type watch struct {
	id       string
	mask     Mask
	patterns []string // empty means match-all
	noFollow bool
	onlyDir  bool
}

func (w *watch) merge(mask Mask, patterns []string, noFollow, onlyDir bool) {
	w.mask |= mask
	if len(w.patterns) == 0 || len(patterns) == 0 {
		w.patterns = nil // union with match-all is match-all
	} else {
		w.patterns = append(w.patterns, patterns...)
	}
	w.noFollow = w.noFollow || noFollow
	w.onlyDir = w.onlyDir || onlyDir
}

func (w *watch) matches(base string) bool {
	if len(w.patterns) == 0 {
		return true
	}
	for _, p := range w.patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Connection is the file-changed connection (§4.9).
type Connection struct {
	*connection.Base

	watcher *fsnotify.Watcher
	efd     int
	onEvent Handler

	mu      sync.Mutex
	watches map[string]*watch
	queue   []Event

	closeOnce sync.Once
	done      chan struct{}
}

// New creates the connection and starts its background event-draining
// goroutine. The caller must still call one of Watch* to register
// paths.
func New(name string, onEvent Handler) (*Connection, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(errs.InitializationError, err, "filewatch: fsnotify.NewWatcher failed")
	}

	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_SEMAPHORE)
	if err != nil {
		_ = w.Close()
		return nil, errs.Wrap(errs.InitializationError, err, "filewatch: eventfd failed")
	}

	c := &Connection{
		Base:    connection.NewBase(name),
		watcher: w,
		efd:     efd,
		onEvent: onEvent,
		watches: make(map[string]*watch),
		done:    make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

func (c *Connection) pump() {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.onFsnotifyEvent(ev)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			logging.For(c.Name()).WithError(err).Warn("filewatch: queue overflow or backend error")
			c.enqueue(Event{Path: "", Mask: LostSync, WatchID: ""})
		}
	}
}

func (c *Connection) onFsnotifyEvent(ev fsnotify.Event) {
	dir := filepath.Dir(ev.Name)
	base := filepath.Base(ev.Name)

	c.mu.Lock()
	w, ok := c.watches[dir]
	c.mu.Unlock()
	if !ok {
		return
	}

	m := fromFsnotifyOp(ev.Op)
	if m&w.mask == 0 {
		return
	}
	if !w.matches(base) {
		return
	}

	out := m & w.mask
	if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
		out |= Directory
	}
	if ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0 {
		out |= Gone
	}

	c.enqueue(Event{Path: ev.Name, Mask: out, WatchID: w.id})
}

func fromFsnotifyOp(op fsnotify.Op) Mask {
	var m Mask
	if op&fsnotify.Create != 0 {
		m |= Created
	}
	if op&fsnotify.Write != 0 {
		m |= Write | Updated
	}
	if op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		m |= Deleted
	}
	if op&fsnotify.Chmod != 0 {
		m |= Attributes
	}
	return m
}

func (c *Connection) enqueue(e Event) {
	c.mu.Lock()
	c.queue = append(c.queue, e)
	c.mu.Unlock()

	one := make([]byte, 8)
	binary.LittleEndian.PutUint64(one, 1)
	_, _ = unix.Write(c.efd, one)
}

// Socket is the eventfd the reactor polls for readiness (§4.9's
// "single inotify-style fd", adapted per the package doc comment).
func (c *Connection) Socket() int    { return c.efd }
func (c *Connection) IsReader() bool { return c.efd >= 0 }

func watchKey(path string) string { return filepath.Clean(path) }

func (c *Connection) register(path string, mask Mask, patterns []string, noFollow, onlyDir bool) (string, error) {
	key := watchKey(path)

	c.mu.Lock()
	w, ok := c.watches[key]
	if !ok {
		w = &watch{id: uuid.NewString(), mask: mask, patterns: patterns, noFollow: noFollow, onlyDir: onlyDir}
		c.watches[key] = w
	} else {
		w.merge(mask, patterns, noFollow, onlyDir)
	}
	id := w.id
	c.mu.Unlock()

	// Replace the OS watch atomically: remove then re-add. There is a
	// documented loss window between the two calls (§4.9).
	_ = c.watcher.Remove(path)
	if err := c.watcher.Add(path); err != nil {
		return "", errs.Wrap(errs.InitializationError, err, "filewatch: watch add failed for %s", path)
	}
	return id, nil
}

// WatchFiles watches path for the given mask, restricted to basenames
// matching any of patterns (no patterns means match-all). It returns
// the watch's correlation id, stable across subsequent merges for the
// same path.
func (c *Connection) WatchFiles(path string, mask Mask, patterns ...string) (string, error) {
	return c.register(path, mask, patterns, false, false)
}

// WatchSymlinks is WatchFiles plus a don't-follow flag (§4.9).
func (c *Connection) WatchSymlinks(path string, mask Mask, patterns ...string) (string, error) {
	return c.register(path, mask, patterns, true, false)
}

// WatchDirectories is WatchFiles plus an only-directories flag
// (§4.9); matching is still applied to entries seen under path, not to
// path itself.
func (c *Connection) WatchDirectories(path string, mask Mask, patterns ...string) (string, error) {
	return c.register(path, mask, patterns, false, true)
}

// ProcessRead drains exactly one queued Event per eventfd tick,
// dispatching it to the configured handler.
func (c *Connection) ProcessRead() error {
	buf := make([]byte, 8)
	_, err := unix.Read(c.efd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil
		}
		return errs.Wrap(errs.RuntimeError, err, "filewatch: eventfd read failed")
	}

	c.mu.Lock()
	var e Event
	ok := len(c.queue) > 0
	if ok {
		e = c.queue[0]
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if c.onEvent != nil {
		c.onEvent(e)
	}
	return nil
}

// ProcessHup stops the pump goroutine and releases both the fsnotify
// watcher and the eventfd.
func (c *Connection) ProcessHup() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.watcher.Close()
		if c.efd >= 0 {
			_ = unix.Close(c.efd)
			c.efd = -1
		}
	})
	return c.Base.ProcessHup()
}
