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

// Package sighandler implements the process-level signal handler
// (C14): a singleton installed before any reactor use that separates
// "terminal" signals (default: log, optionally dump goroutine stacks,
// then terminate) from "ignored" signals, with per-signal callbacks
// that can suppress the default terminal behavior by reporting they
// handled the signal themselves.
package sighandler

import (
	"os"
	"os/signal"
	"runtime"
	"sync"

	"github.com/nabbar/eventdispatcher/internal/logging"
)

// Callback observes one delivery of a registered signal. Returning
// true suppresses the default terminal behavior for that delivery.
type Callback func(sig os.Signal) bool

type registration struct {
	id string
	cb Callback
}

// Handler is the process-wide signal dispatcher. The zero value is
// not usable; obtain one via Install or the package-level Default.
type Handler struct {
	mu        sync.Mutex
	terminal  map[os.Signal]struct{}
	ignored   map[os.Signal]struct{}
	stackDump map[os.Signal]struct{}
	callbacks map[os.Signal][]registration

	ch      chan os.Signal
	stop    chan struct{}
	started bool
}

// New builds a Handler watching the given terminal and ignored signal
// sets; stackDump names the signals that also dump every goroutine's
// stack before the terminal-signal default log. The dump happens only
// on that path: a terminal signal that no callback handled.
// Callbacks are registered after construction via On; the watch loop
// itself only starts once Start is called.
func New(terminal, ignored, stackDump []os.Signal) *Handler {
	h := &Handler{
		terminal:  toSet(terminal),
		ignored:   toSet(ignored),
		stackDump: toSet(stackDump),
		callbacks: make(map[os.Signal][]registration),
	}
	return h
}

func toSet(sigs []os.Signal) map[os.Signal]struct{} {
	set := make(map[os.Signal]struct{}, len(sigs))
	for _, s := range sigs {
		set[s] = struct{}{}
	}
	return set
}

// On registers cb under id for sig. Multiple callbacks may be
// registered for the same signal; all run, in registration order,
// every time the signal is delivered.
func (h *Handler) On(id string, sig os.Signal, cb Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks[sig] = append(h.callbacks[sig], registration{id: id, cb: cb})
}

// Off removes every callback registered under id, for every signal.
func (h *Handler) Off(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sig, regs := range h.callbacks {
		kept := regs[:0]
		for _, r := range regs {
			if r.id != id {
				kept = append(kept, r)
			}
		}
		h.callbacks[sig] = kept
	}
}

// Start installs the OS signal watch and begins dispatching deliveries
// on a background goroutine. Calling Start more than once is a no-op.
func (h *Handler) Start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	all := make([]os.Signal, 0, len(h.terminal)+len(h.ignored))
	for s := range h.terminal {
		all = append(all, s)
	}
	for s := range h.ignored {
		all = append(all, s)
	}
	h.ch = make(chan os.Signal, 8)
	h.stop = make(chan struct{})
	h.mu.Unlock()

	signal.Notify(h.ch, all...)
	go h.run()
}

// Stop tears down the OS signal watch. The Handler may be Start-ed
// again afterward.
func (h *Handler) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	ch, stop := h.ch, h.stop
	h.mu.Unlock()

	signal.Stop(ch)
	close(stop)
}

func (h *Handler) run() {
	for {
		select {
		case sig, ok := <-h.ch:
			if !ok {
				return
			}
			h.deliver(sig)
		case <-h.stop:
			return
		}
	}
}

func (h *Handler) deliver(sig os.Signal) {
	h.mu.Lock()
	regs := append([]registration(nil), h.callbacks[sig]...)
	_, isTerminal := h.terminal[sig]
	_, dump := h.stackDump[sig]
	h.mu.Unlock()

	handled := false
	for _, r := range regs {
		if r.cb == nil {
			continue
		}
		if r.cb(sig) {
			handled = true
		}
	}

	if handled || !isTerminal {
		return
	}

	if dump {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		logging.For("sighandler").Warnf("signal %v: goroutine dump follows\n%s", sig, buf[:n])
	}
	logging.For("sighandler").Errorf("signal %v: no callback handled it; terminating", sig)
	os.Exit(1)
}

var (
	defaultOnce sync.Once
	defaultInst *Handler
)

// Install builds the process-wide Handler on first call (subsequent
// calls return the instance already built, ignoring their arguments)
// and starts its watch loop immediately, per §4.14's "installed before
// any reactor use".
func Install(terminal, ignored, stackDump []os.Signal) *Handler {
	defaultOnce.Do(func() {
		defaultInst = New(terminal, ignored, stackDump)
		defaultInst.Start()
	})
	return defaultInst
}

// Default returns the process-wide Handler, or nil if Install has not
// been called yet.
func Default() *Handler {
	return defaultInst
}
