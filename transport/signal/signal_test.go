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

package signal_test

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/transport/signal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("signal connection (§4.9)", func() {
	It("reports itself as a signal-role reader with a valid fd", func() {
		c, err := signal.New("sig", int(unix.SIGUSR1), nil)
		Expect(err).ToNot(HaveOccurred())
		defer c.ProcessHup()

		Expect(c.Socket()).To(BeNumerically(">=", 0))
		Expect(c.IsSignal()).To(BeTrue())
		Expect(c.IsReader()).To(BeTrue())
		Expect(c.Signum()).To(Equal(int(unix.SIGUSR1)))
	})

	It("delivers a raised signal to the handler via the signalfd", func() {
		var got int
		c, err := signal.New("sig", int(unix.SIGUSR2), func(signum int) error {
			got = signum
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		defer c.ProcessHup()

		Expect(unix.Kill(os.Getpid(), unix.SIGUSR2)).To(Succeed())
		Expect(waitReadable(c.Socket(), time.Second)).To(BeTrue())

		Expect(c.ProcessRead()).To(Succeed())
		Expect(got).To(Equal(int(unix.SIGUSR2)))
	})

	It("closes the fd and disables itself on ProcessHup", func() {
		c, err := signal.New("sig", int(unix.SIGUSR1), nil)
		Expect(err).ToNot(HaveOccurred())

		Expect(c.ProcessHup()).To(Succeed())
		Expect(c.Socket()).To(Equal(-1))
		Expect(c.IsEnabled()).To(BeFalse())
	})
})
