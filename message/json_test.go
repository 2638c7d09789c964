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

var _ = Describe("JSON format", func() {
	Context("S2: round trip with escapes", func() {
		It("parses the nested escape sequences", func() {
			m, err := message.Parse(`{"command":"SAY","parameters":{"text":"hello\nworld;\"end\""}}`)
			Expect(err).ToNot(HaveOccurred())
			Expect(m.Command()).To(Equal("SAY"))

			v, err := m.GetParameter("text")
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal("hello\nworld;\"end\""))
		})

		It("re-emits the value quoted with its escapes on the line form", func() {
			m, err := message.Parse(`{"command":"SAY","parameters":{"text":"hello\nworld;\"end\""}}`)
			Expect(err).ToNot(HaveOccurred())

			line, err := m.Emit(message.FormatLine)
			Expect(err).ToNot(HaveOccurred())

			again, err := message.Parse(line)
			Expect(err).ToNot(HaveOccurred())

			v, err := again.GetParameter("text")
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal("hello\nworld;\"end\""))
		})
	})

	Context("routing fields", func() {
		It("parses the optional routing tuple", func() {
			m, err := message.Parse(`{"sent-from-server":"hostA","sent-from-service":"svcA","server":"myserver","service":"myservice","command":"LOCK"}`)
			Expect(err).ToNot(HaveOccurred())
			Expect(m.SentFromServer()).To(Equal("hostA"))
			Expect(m.Server()).To(Equal("myserver"))
		})

		It("requires command", func() {
			_, err := message.Parse(`{"server":"x"}`)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("numbers and booleans", func() {
		It("round trips an integer without a fractional part", func() {
			m := message.New("PING")
			Expect(m.AddParameterInt64("timeout", 30)).ToNot(HaveOccurred())

			text, err := m.Emit(message.FormatJSON)
			Expect(err).ToNot(HaveOccurred())
			Expect(text).To(ContainSubstring(`"timeout":30`))
			Expect(text).ToNot(ContainSubstring(`"timeout":30.`))
		})

		It("round trips booleans as true/false strings on the line form", func() {
			m, err := message.Parse(`{"command":"PING","parameters":{"ok":true}}`)
			Expect(err).ToNot(HaveOccurred())

			line, err := m.Emit(message.FormatLine)
			Expect(err).ToNot(HaveOccurred())
			Expect(line).To(ContainSubstring("ok=true"))
		})
	})

	Context("unknown top-level keys", func() {
		It("ignores but does not fail on an unrecognized key", func() {
			_, err := message.Parse(`{"command":"PING","extra-stuff":true}`)
			Expect(err).ToNot(HaveOccurred())
		})
	})
})
