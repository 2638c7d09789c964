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

package timer_test

import (
	"github.com/nabbar/eventdispatcher/transport/timer"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("timer connection (§4.9)", func() {
	It("reports no file descriptor", func() {
		c := timer.New("t", nil)
		Expect(c.Socket()).To(Equal(-1))
	})

	It("invokes the configured handler on ProcessTimeout", func() {
		fired := 0
		c := timer.New("t", func() error {
			fired++
			return nil
		})
		Expect(c.ProcessTimeout()).To(Succeed())
		Expect(c.ProcessTimeout()).To(Succeed())
		Expect(fired).To(Equal(2))
	})

	It("is a no-op with no handler configured", func() {
		c := timer.New("t", nil)
		Expect(c.ProcessTimeout()).To(Succeed())
	})

	It("arms a periodic delay and advances next-tick in aligned whole multiples", func() {
		c := timer.New("t", nil)
		c.SetTimeoutDelay(1000)
		c.CalculateNextTick(0)
		Expect(c.NextTick()).To(Equal(int64(1000)))

		// Jumping far past several periods still lands on a tick
		// boundary that is a whole multiple ahead of the original phase.
		c.CalculateNextTick(3500)
		Expect(c.NextTick()).To(Equal(int64(4000)))
	})

	It("arms a one-shot date independent of the delay facility", func() {
		c := timer.New("t", nil)
		c.SetTimeoutDate(5000)
		Expect(c.TimeoutDate()).To(Equal(int64(5000)))
		Expect(c.TimeoutDelay()).To(Equal(int64(-1)))
	})
})
