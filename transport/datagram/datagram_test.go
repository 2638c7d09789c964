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

package datagram_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nabbar/eventdispatcher/message"
	"github.com/nabbar/eventdispatcher/transport/datagram"

	"golang.org/x/sys/unix"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Unix datagram secret envelope (§4.7)", func() {
	var dir, serverPath, clientPath string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "edctl-datagram-*")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(dir) })
		serverPath = filepath.Join(dir, "srv.sock")
		clientPath = filepath.Join(dir, "cli.sock")
	})

	It("accepts a datagram whose secret matches", func() {
		var got *message.Message
		srv, err := datagram.NewUnixServer("srv", datagram.UnixAddr{Path: serverPath}, "s3cr3t", func(sender *datagram.Connection, peer unix.Sockaddr, m *message.Message) error {
			got = m
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = srv.Close() })

		cli, err := datagram.NewUnixClient("cli", datagram.UnixAddr{Path: serverPath}, "s3cr3t", nil)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = cli.Close() })
		Expect(unix.Bind(cli.Socket(), &unix.SockaddrUnix{Name: clientPath})).To(Succeed())

		Expect(cli.Send(message.New("PING"))).To(Succeed())
		Eventually(func() error { return srv.ProcessRead() }, time.Second, 10*time.Millisecond).Should(Succeed())
		Eventually(func() *message.Message { return got }, time.Second).ShouldNot(BeNil())
		Expect(got.Command()).To(Equal("PING"))
	})

	It("drops a datagram with a missing secret when one is configured", func() {
		called := false
		srv, err := datagram.NewUnixServer("srv", datagram.UnixAddr{Path: serverPath}, "s3cr3t", func(sender *datagram.Connection, peer unix.Sockaddr, m *message.Message) error {
			called = true
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = srv.Close() })

		cli, err := datagram.NewUnixClient("cli", datagram.UnixAddr{Path: serverPath}, "", nil)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = cli.Close() })
		Expect(unix.Bind(cli.Socket(), &unix.SockaddrUnix{Name: clientPath})).To(Succeed())

		Expect(cli.Send(message.New("PING"))).To(Succeed())
		time.Sleep(50 * time.Millisecond)
		Expect(srv.ProcessRead()).To(Succeed())
		Expect(called).To(BeFalse())
	})

	It("accepts a datagram carrying an unexpected secret when the server has none configured", func() {
		var got *message.Message
		srv, err := datagram.NewUnixServer("srv", datagram.UnixAddr{Path: serverPath}, "", func(sender *datagram.Connection, peer unix.Sockaddr, m *message.Message) error {
			got = m
			return nil
		})
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = srv.Close() })

		cli, err := datagram.NewUnixClient("cli", datagram.UnixAddr{Path: serverPath}, "whatever", nil)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = cli.Close() })
		Expect(unix.Bind(cli.Socket(), &unix.SockaddrUnix{Name: clientPath})).To(Succeed())

		Expect(cli.Send(message.New("PING"))).To(Succeed())
		Eventually(func() error { return srv.ProcessRead() }, time.Second, 10*time.Millisecond).Should(Succeed())
		Eventually(func() *message.Message { return got }, time.Second).ShouldNot(BeNil())
	})
})

var _ = Describe("polling and timed receive primitives", func() {
	It("ReceivePolling reports ok=false when nothing is pending", func() {
		dir, err := os.MkdirTemp("", "edctl-datagram-poll-*")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(dir) })

		srv, err := datagram.NewUnixServer("srv", datagram.UnixAddr{Path: filepath.Join(dir, "srv.sock")}, "", nil)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = srv.Close() })

		_, _, ok, err := srv.ReceivePolling()
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("ReceiveTimed returns ok=true once a datagram arrives within the deadline", func() {
		dir, err := os.MkdirTemp("", "edctl-datagram-timed-*")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = os.RemoveAll(dir) })
		serverPath := filepath.Join(dir, "srv.sock")
		clientPath := filepath.Join(dir, "cli.sock")

		srv, err := datagram.NewUnixServer("srv", datagram.UnixAddr{Path: serverPath}, "", nil)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = srv.Close() })

		cli, err := datagram.NewUnixClient("cli", datagram.UnixAddr{Path: serverPath}, "", nil)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() { _ = cli.Close() })
		Expect(unix.Bind(cli.Socket(), &unix.SockaddrUnix{Name: clientPath})).To(Succeed())

		Expect(cli.Send(message.New("HELLO"))).To(Succeed())

		data, _, ok, err := srv.ReceiveTimed(500 * time.Millisecond)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(string(data)).To(ContainSubstring("HELLO"))
	})
})
