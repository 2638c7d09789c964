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

package message_test

import (
	"github.com/nabbar/eventdispatcher/message"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("line format", func() {
	Context("S1: full routing prefix round trip", func() {
		It("parses the routing tuple, command and parameters", func() {
			m, err := message.Parse("<hostA:svcA myserver:myservice/LOCK param1=value1;timeout=30\n")
			Expect(err).ToNot(HaveOccurred())

			Expect(m.SentFromServer()).To(Equal("hostA"))
			Expect(m.SentFromService()).To(Equal("svcA"))
			Expect(m.Server()).To(Equal("myserver"))
			Expect(m.Service()).To(Equal("myservice"))
			Expect(m.Command()).To(Equal("LOCK"))

			v1, err := m.GetParameter("param1")
			Expect(err).ToNot(HaveOccurred())
			Expect(v1).To(Equal("value1"))

			v2, err := m.GetParameter("timeout")
			Expect(err).ToNot(HaveOccurred())
			Expect(v2).To(Equal("30"))
		})

		It("re-emits to an equivalent message", func() {
			m, err := message.Parse("<hostA:svcA myserver:myservice/LOCK param1=value1;timeout=30\n")
			Expect(err).ToNot(HaveOccurred())

			text, err := m.Emit(message.FormatLine)
			Expect(err).ToNot(HaveOccurred())

			again, err := message.Parse(text)
			Expect(err).ToNot(HaveOccurred())
			Expect(again.Equal(m)).To(BeTrue())
		})
	})

	Context("bare command with no routing prefix", func() {
		It("parses a minimal PING", func() {
			m, err := message.Parse("PING")
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Command()).To(Equal("PING"))
			Expect(m.Server()).To(Equal(""))
			Expect(m.Service()).To(Equal(""))
		})
	})

	Context("service-only prefix", func() {
		It("parses SERVICE/COMMAND without a server", func() {
			m, err := message.Parse("myservice/READY")
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Service()).To(Equal("myservice"))
			Expect(m.Server()).To(Equal(""))
			Expect(m.Command()).To(Equal("READY"))
		})
	})

	Context("invariant 2: name validation", func() {
		It("rejects a command starting with a digit", func() {
			_, err := message.Parse("1BAD")
			Expect(err).To(HaveOccurred())
		})

		It("rejects a lowercase command", func() {
			_, err := message.Parse("lowercase")
			Expect(err).To(HaveOccurred())
		})

		It("rejects add_parameter with an invalid name", func() {
			m := message.New("PING")
			err := m.AddParameter("1bad", "x")
			Expect(err).To(HaveOccurred())
		})

		It("accepts mixed-case parameter names", func() {
			m := message.New("PING")
			Expect(m.AddParameter("MixedCase", "x")).ToNot(HaveOccurred())
		})
	})

	Context("quoted values containing a semicolon", func() {
		It("round trips a value with an embedded semicolon", func() {
			m := message.New("SAY")
			Expect(m.AddParameter("text", "a;b")).ToNot(HaveOccurred())

			text, err := m.Emit(message.FormatLine)
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(ContainSubstring(`text="a;b"`))

			again, err := message.Parse(text)
			Expect(err).ToNot(HaveOccurred())
			v, err := again.GetParameter("text")
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal("a;b"))
		})
	})

	Context("reply_to", func() {
		It("addresses the reply back at the sender", func() {
			in, err := message.Parse("<hostA:svcA myserver:myservice/LOCK")
			Expect(err).ToNot(HaveOccurred())

			out := message.New("UNKNOWN")
			out.ReplyTo(in)

			Expect(out.Server()).To(Equal("hostA"))
			Expect(out.Service()).To(Equal("svcA"))
		})
	})
})
