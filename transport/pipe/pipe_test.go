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

package pipe_test

import (
	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/dispatcher"
	"github.com/nabbar/eventdispatcher/message"
	"github.com/nabbar/eventdispatcher/transport/pipe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("local pipe roles (§4.8)", func() {
	It("rejects a write on a child-output parent end (read-only)", func() {
		p, err := pipe.New(pipe.ChildOutput)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = p.Forked() })

		c, err := p.ParentConnection("parent")
		Expect(err).ToNot(HaveOccurred())

		Expect(c.IsReader()).To(BeTrue())
		Expect(c.SendMessage(message.New("PING"))).To(HaveOccurred())
	})

	It("rejects a read on a child-input parent end (write-only)", func() {
		p, err := pipe.New(pipe.ChildInput)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = p.Forked() })

		c, err := p.ParentConnection("parent")
		Expect(err).ToNot(HaveOccurred())

		Expect(c.IsReader()).To(BeFalse())
		Expect(c.ProcessRead()).To(HaveOccurred())
	})

	It("Forked closes the child fd exactly once, idempotently", func() {
		p, err := pipe.New(pipe.Bidirectional)
		Expect(err).ToNot(HaveOccurred())

		Expect(p.Forked()).To(Succeed())
		Expect(p.Forked()).To(Succeed())
	})
})

var _ = Describe("inter-thread message connection (§4.8)", func() {
	It("delivers messages sent from A to B in FIFO order, one per eventfd tick", func() {
		it, err := pipe.NewInterThread()
		Expect(err).ToNot(HaveOccurred())

		a := it.SideA("a")
		b := it.SideB("b")

		var received []string
		d := dispatcher.New()
		d.OnAny(func(sender connection.MessageSender, m *message.Message) error {
			received = append(received, m.Command())
			return nil
		})
		d.Install()
		b.SetDispatcher(d)

		Expect(a.SendMessage(message.New("ONE"))).To(Succeed())
		Expect(a.SendMessage(message.New("TWO"))).To(Succeed())
		Expect(a.SendMessage(message.New("THREE"))).To(Succeed())

		Expect(b.ProcessRead()).To(Succeed())
		Expect(b.ProcessRead()).To(Succeed())
		Expect(b.ProcessRead()).To(Succeed())

		Expect(received).To(Equal([]string{"ONE", "TWO", "THREE"}))
	})

	It("reports the creator's OS thread id as side A's identity", func() {
		it, err := pipe.NewInterThread()
		Expect(err).ToNot(HaveOccurred())
		Expect(it.CreatorThreadID()).To(BeNumerically(">", 0))
	})
})
