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

package dispatcher_test

import (
	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/dispatcher"
	"github.com/nabbar/eventdispatcher/message"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("S3: dispatcher fall-through", func() {
	It("routes PING to its handler and never touches the catch-all", func() {
		var pingCalled, unknownCalled bool

		d := dispatcher.New().
			On("PING", func(sender connection.MessageSender, m *message.Message) error {
				pingCalled = true
				return nil
			}).
			OnAny(func(sender connection.MessageSender, m *message.Message) error {
				unknownCalled = true
				return nil
			}).
			Install()

		sender := &fakeSender{}
		handled := d.Dispatch(sender, message.New("PING"))

		Expect(handled).To(BeTrue())
		Expect(pingCalled).To(BeTrue())
		Expect(unknownCalled).To(BeFalse())
		Expect(sender.sent).To(BeEmpty())
	})

	It("falls through PONG to the catch-all and replies UNKNOWN", func() {
		d := dispatcher.New().
			On("PING", func(sender connection.MessageSender, m *message.Message) error {
				return nil
			}).
			Install()

		sender := &fakeSender{}
		handled := d.Dispatch(sender, message.New("PONG"))

		Expect(handled).To(BeFalse())
		Expect(sender.sent).To(HaveLen(1))
		Expect(sender.sent[0].Command()).To(Equal("UNKNOWN"))

		cmd, err := sender.sent[0].GetParameter("command")
		Expect(err).ToNot(HaveOccurred())
		Expect(cmd).To(Equal("PONG"))
	})

	It("collects exact-match command names for COMMANDS introspection", func() {
		d := dispatcher.New().
			On("PING", func(sender connection.MessageSender, m *message.Message) error {
				return nil
			}).
			On("STOP", func(sender connection.MessageSender, m *message.Message) error {
				return nil
			}).
			OnAny(func(sender connection.MessageSender, m *message.Message) error {
				return nil
			})

		Expect(d.GetCommands()).To(ConsistOf("PING", "STOP"))
	})
})
