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

package sighandler_test

import (
	"os"
	"sync"
	"syscall"

	"github.com/nabbar/eventdispatcher/sighandler"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// raise delivers sig to the current process. Every test that raises a
// terminal signal must register a callback reporting it handled —
// sighandler's own unhandled-terminal path calls os.Exit, which a unit
// test must never exercise.
func raise(sig os.Signal) {
	Expect(syscall.Kill(os.Getpid(), sig.(syscall.Signal))).To(Succeed())
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) record(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

var _ = Describe("process-level signal handler (§4.14)", func() {
	It("invokes a registered callback for an ignored signal without terminating", func() {
		h := sighandler.New(nil, []os.Signal{syscall.SIGUSR1}, nil)
		h.Start()
		defer h.Stop()

		rec := &recorder{}
		h.On("probe", syscall.SIGUSR1, func(os.Signal) bool {
			rec.record("probe")
			return false
		})

		raise(syscall.SIGUSR1)
		Eventually(rec.snapshot).Should(Equal([]string{"probe"}))
	})

	It("suppresses the terminal default when a callback reports the signal handled", func() {
		h := sighandler.New([]os.Signal{syscall.SIGUSR2}, nil, nil)
		h.Start()
		defer h.Stop()

		rec := &recorder{}
		h.On("handler", syscall.SIGUSR2, func(os.Signal) bool {
			rec.record("handled")
			return true
		})

		raise(syscall.SIGUSR2)
		Eventually(rec.snapshot).Should(Equal([]string{"handled"}))
		// Process is still alive to make this assertion at all, which
		// is the behavior under test: an unhandled terminal signal
		// would have called os.Exit instead.
	})

	It("runs every callback registered for a signal, in registration order", func() {
		h := sighandler.New(nil, []os.Signal{syscall.SIGUSR1}, nil)
		h.Start()
		defer h.Stop()

		rec := &recorder{}
		h.On("first", syscall.SIGUSR1, func(os.Signal) bool {
			rec.record("first")
			return false
		})
		h.On("second", syscall.SIGUSR1, func(os.Signal) bool {
			rec.record("second")
			return false
		})

		raise(syscall.SIGUSR1)
		Eventually(rec.snapshot).Should(Equal([]string{"first", "second"}))
	})

	It("Off removes only the callbacks registered under that id", func() {
		h := sighandler.New(nil, []os.Signal{syscall.SIGUSR1}, nil)
		h.Start()
		defer h.Stop()

		rec := &recorder{}
		h.On("keep", syscall.SIGUSR1, func(os.Signal) bool {
			rec.record("keep")
			return false
		})
		h.On("drop", syscall.SIGUSR1, func(os.Signal) bool {
			rec.record("drop")
			return false
		})
		h.Off("drop")

		raise(syscall.SIGUSR1)
		Eventually(rec.snapshot).Should(Equal([]string{"keep"}))
		Consistently(rec.snapshot).Should(Equal([]string{"keep"}))
	})

	It("Install builds a process-wide singleton on first call only", func() {
		h1 := sighandler.Install([]os.Signal{syscall.SIGUSR2}, nil, nil)
		h2 := sighandler.Install(nil, []os.Signal{syscall.SIGUSR1}, nil)
		Expect(h1).To(BeIdenticalTo(h2))
		Expect(sighandler.Default()).To(BeIdenticalTo(h1))
	})
})
