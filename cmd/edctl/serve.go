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

package main

import (
	"context"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/dispatcher"
	"github.com/nabbar/eventdispatcher/internal/logging"
	"github.com/nabbar/eventdispatcher/message"
	"github.com/nabbar/eventdispatcher/reactor"
	"github.com/nabbar/eventdispatcher/sighandler"
	"github.com/nabbar/eventdispatcher/transport/stream"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "listen for line-protocol message connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7600", "listen address")
	return cmd
}

func runServe(ctx context.Context, addrStr string) error {
	tcpAddr, err := parseTCPAddr(addrStr)
	if err != nil {
		return err
	}

	d := dispatcher.New().
		On("PING", func(sender connection.MessageSender, m *message.Message) error {
			reply := message.New("PONG")
			reply.ReplyTo(m)
			return sender.SendMessage(reply)
		}).
		Install()

	r := reactor.Default()

	srv, err := stream.ListenTCP("edctl.server", tcpAddr, func(c *stream.Connection) error {
		c.SetDispatcher(d)
		return r.AddConnection(c)
	})
	if err != nil {
		return err
	}
	if err := r.AddConnection(srv); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := sighandler.Install([]os.Signal{syscall.SIGINT, syscall.SIGTERM}, nil, nil)
	stopOnSignal := func(os.Signal) bool {
		cancel()
		return true
	}
	h.On("edctl.serve.int", syscall.SIGINT, stopOnSignal)
	h.On("edctl.serve.term", syscall.SIGTERM, stopOnSignal)
	defer h.Off("edctl.serve.int")
	defer h.Off("edctl.serve.term")

	logging.For("edctl").Infof("serving on %s", addrStr)
	return r.Run(runCtx)
}
