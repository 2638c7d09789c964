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
	"time"

	"github.com/spf13/cobra"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/dispatcher"
	"github.com/nabbar/eventdispatcher/internal/logging"
	"github.com/nabbar/eventdispatcher/message"
	"github.com/nabbar/eventdispatcher/permaconn"
	"github.com/nabbar/eventdispatcher/reactor"
	"github.com/nabbar/eventdispatcher/sighandler"
	"github.com/nabbar/eventdispatcher/transport/timer"
)

func newClientCommand() *cobra.Command {
	var (
		addr      string
		schedule  string
		useThread bool
		pingEvery time.Duration
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "maintain a self-reconnecting connection to a message server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), addr, schedule, useThread, pingEvery)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:7600", "server address")
	cmd.Flags().StringVar(&schedule, "schedule", "1,2,4,8,16,30", "reconnect pause schedule")
	cmd.Flags().BoolVar(&useThread, "use-thread", false, "dial on a worker goroutine instead of inline")
	cmd.Flags().DurationVar(&pingEvery, "ping-every", 5*time.Second, "PING interval once connected")
	return cmd
}

func runClient(ctx context.Context, addrStr, schedule string, useThread bool, pingEvery time.Duration) error {
	tcpAddr, err := parseTCPAddr(addrStr)
	if err != nil {
		return err
	}

	d := dispatcher.New().
		On("PONG", func(sender connection.MessageSender, m *message.Message) error {
			logging.For("edctl.client").Debug("received PONG")
			return nil
		}).
		Install()

	r := reactor.Default()

	conn, err := permaconn.New("edctl.client", r, permaconn.Config{
		Addr:     tcpAddr,
		Schedule: schedule,
		UseThread: useThread,
	})
	if err != nil {
		return err
	}
	conn.SetDispatcher(d)
	if err := r.AddConnection(conn); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := sighandler.Install([]os.Signal{syscall.SIGINT, syscall.SIGTERM}, nil, nil)
	stopOnSignal := func(os.Signal) bool {
		cancel()
		return true
	}
	h.On("edctl.client.int", syscall.SIGINT, stopOnSignal)
	h.On("edctl.client.term", syscall.SIGTERM, stopOnSignal)
	defer h.Off("edctl.client.int")
	defer h.Off("edctl.client.term")

	ping := timer.New("edctl.client.ping", func() error {
		_, err := conn.SendMessage(message.New("PING"), true)
		return err
	})
	ping.SetTimeoutDelay(pingEvery.Microseconds())
	if err := r.AddConnection(ping); err != nil {
		return err
	}

	logging.For("edctl.client").Infof("connecting to %s", addrStr)
	return r.Run(runCtx)
}
