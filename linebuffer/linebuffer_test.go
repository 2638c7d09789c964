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

package linebuffer_test

import (
	"bytes"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/linebuffer"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// socketpair returns two connected, non-blocking Unix stream fds, closed
// automatically at the end of the spec.
func socketpair() (a, b int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	Expect(err).ToNot(HaveOccurred())
	Expect(unix.SetNonblock(fds[0], true)).To(Succeed())
	Expect(unix.SetNonblock(fds[1], true)).To(Succeed())
	DeferCleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

var _ = Describe("S5: fair read", func() {
	It("caps process_line calls at the event limit and drains the rest over later ticks", func() {
		clientFD, serverFD := socketpair()

		var payload bytes.Buffer
		for i := 0; i < 200; i++ {
			payload.WriteByte('X')
			payload.WriteByte('\n')
		}
		n, err := unix.Write(clientFD, payload.Bytes())
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(payload.Len()))

		var lines []string
		m := linebuffer.New(serverFD)
		m.SetEventLimit(10)
		m.SetLineHandler(func(line []byte) error {
			lines = append(lines, strings.TrimRight(string(line), "\n"))
			return nil
		})

		Expect(m.ProcessRead()).To(Succeed())
		Expect(lines).To(HaveLen(10))

		iterations := 1
		for len(lines) < 200 && iterations < 25 {
			Expect(m.ProcessRead()).To(Succeed())
			iterations++
		}

		Expect(lines).To(HaveLen(200))
		Expect(iterations).To(BeNumerically("<=", 20))
		for _, l := range lines {
			Expect(l).To(Equal("X"))
		}
	})
})

var _ = Describe("write cache", func() {
	It("returns len immediately and defers residue that exceeds the socket buffer", func() {
		clientFD, serverFD := socketpair()
		_ = clientFD

		m := linebuffer.New(serverFD)
		big := bytes.Repeat([]byte("a"), 8*1024*1024)

		n, err := m.Write(big)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(big)))
	})

	It("fires the empty-buffer callback once the cache fully drains", func() {
		clientFD, serverFD := socketpair()

		drained := false
		m := linebuffer.New(serverFD)
		m.SetEmptyHandler(func() error {
			drained = true
			return nil
		})

		// Large enough that the immediate write in Write() cannot fully
		// transmit over the socketpair's buffer, guaranteeing residue
		// lands in the cache for ProcessWrite to drain below.
		big := bytes.Repeat([]byte("a"), 8*1024*1024)
		n, err := m.Write(big)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(big)))
		Expect(m.HasOutput()).To(BeTrue())

		buf := make([]byte, 64*1024)
		for i := 0; i < 4096 && !drained; i++ {
			Expect(m.ProcessWrite()).To(Succeed())
			_, _ = unix.Read(clientFD, buf)
		}

		Expect(drained).To(BeTrue())
		Expect(m.HasOutput()).To(BeFalse())
	})
})
