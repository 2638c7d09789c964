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

package datagram

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
	"github.com/nabbar/eventdispatcher/message"
)

// MessageHandler receives one parsed, secret-validated datagram.
type MessageHandler func(sender *Connection, peer unix.Sockaddr, m *message.Message) error

// Connection is a datagram endpoint — UDP or Unix — shared by server
// and client roles (§4.7). It has no write cache: datagram sends are
// atomic syscalls, not subject to C5's framing/backpressure.
type Connection struct {
	*connection.Base
	fd        int
	secret    string
	onMessage MessageHandler
	connected bool
}

func newConnection(name string, fd int, secret string, onMessage MessageHandler, connected bool) *Connection {
	return &Connection{
		Base:      connection.NewBase(name),
		fd:        fd,
		secret:    secret,
		onMessage: onMessage,
		connected: connected,
	}
}

func (c *Connection) Socket() int    { return c.fd }
func (c *Connection) IsReader() bool { return c.fd >= 0 }

func (c *Connection) ProcessHup() error {
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	return c.Base.ProcessHup()
}

// ProcessRead drains every pending datagram in one readiness event
// (§4.7: "reads all pending datagrams per readiness event"), parsing
// each as a Message and validating the optional secret envelope.
func (c *Connection) ProcessRead() error {
	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			return errs.Wrap(errs.RuntimeError, err, "datagram: recvfrom failed")
		}
		c.handleDatagram(buf[:n], from)
	}
}

func (c *Connection) handleDatagram(data []byte, from unix.Sockaddr) {
	m, err := message.Parse(string(data))
	if err != nil {
		logging.For(c.Name()).WithError(err).Warn("dropping malformed datagram")
		return
	}

	code, hasCode := "", m.HasParameter(SecretParameter)
	if hasCode {
		code, _ = m.GetParameter(SecretParameter)
	}

	switch {
	case c.secret != "" && (!hasCode || code != c.secret):
		logging.For(c.Name()).Warn("dropping datagram with missing or wrong secret code")
		return
	case c.secret == "" && hasCode:
		logging.For(c.Name()).Warn("accepting datagram with an unexpected secret code; server has none configured")
	}

	if c.onMessage == nil {
		logging.For(c.Name()).Warn("datagram received with no handler installed; dropped")
		return
	}
	if err = c.onMessage(c, from, m); err != nil {
		logging.For(c.Name()).WithError(err).Error("datagram handler failed")
	}
}

// envelope stamps the shared secret onto m (mutating it, like
// ReplyTo) before emitting it in line format.
func (c *Connection) envelope(m *message.Message) (string, error) {
	if c.secret != "" && !m.HasParameter(SecretParameter) {
		if err := m.AddParameter(SecretParameter, c.secret); err != nil {
			return "", errs.Wrap(errs.InvalidMessage, err, "datagram: failed to stamp secret")
		}
	}
	text, err := m.Emit(message.FormatLine)
	if err != nil {
		return "", errs.Wrap(errs.InvalidMessage, err, "datagram: emit failed")
	}
	return text, nil
}

// SendTo transmits m to an explicit peer (the server role's usage:
// unicast a reply to whichever peer last sent a datagram).
func (c *Connection) SendTo(to unix.Sockaddr, m *message.Message) error {
	text, err := c.envelope(m)
	if err != nil {
		return err
	}
	if err = unix.Sendto(c.fd, []byte(text), 0, to); err != nil {
		return errs.Wrap(errs.RuntimeError, err, "datagram: sendto failed")
	}
	return nil
}

// Send transmits m to the connection's fixed peer (the client role's
// usage, after the fd was connect()-ed at construction).
func (c *Connection) Send(m *message.Message) error {
	if !c.connected {
		return errs.New(errs.InvalidParameter, "datagram: Send requires a connected (client) connection; use SendTo")
	}
	text, err := c.envelope(m)
	if err != nil {
		return err
	}
	if _, err = unix.Write(c.fd, []byte(text)); err != nil {
		return errs.Wrap(errs.RuntimeError, err, "datagram: write failed")
	}
	return nil
}

// SendMessage satisfies connection.MessageSender for a connected
// client; it is the reactor-facing counterpart of Send.
func (c *Connection) SendMessage(m *message.Message) error {
	return c.Send(m)
}

// receiveOnce polls fd for readability within timeoutMs (-1 blocks
// indefinitely, 0 polls once without waiting) then issues a single
// recvfrom. ok is false when nothing became readable within timeoutMs
// or the recvfrom found nothing pending.
func (c *Connection) receiveOnce(timeoutMs int) (data []byte, from unix.Sockaddr, ok bool, err error) {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, perr := unix.Poll(fds, timeoutMs)
	if perr != nil {
		return nil, nil, false, errs.Wrap(errs.RuntimeError, perr, "datagram: poll failed")
	}
	if n == 0 {
		return nil, nil, false, nil
	}

	buf := make([]byte, MaxDatagramSize)
	rn, rfrom, rerr := unix.Recvfrom(c.fd, buf, 0)
	if rerr != nil {
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
			return nil, nil, false, nil
		}
		return nil, nil, false, errs.Wrap(errs.RuntimeError, rerr, "datagram: recvfrom failed")
	}
	return buf[:rn], rfrom, true, nil
}

// ReceiveBlocking blocks until one datagram arrives (§4.7 "blocking
// ... receive primitive").
func (c *Connection) ReceiveBlocking() ([]byte, unix.Sockaddr, error) {
	data, from, _, err := c.receiveOnce(-1)
	return data, from, err
}

// ReceivePolling makes a single non-blocking attempt; ok is false if
// nothing was pending (§4.7 "polling ... receive primitive").
func (c *Connection) ReceivePolling() (data []byte, from unix.Sockaddr, ok bool, err error) {
	return c.receiveOnce(0)
}

// ReceiveTimed waits up to d for one datagram; ok is false on timeout
// (§4.7 "timed ... receive primitive").
func (c *Connection) ReceiveTimed(d time.Duration) (data []byte, from unix.Sockaddr, ok bool, err error) {
	ms := int(d.Milliseconds())
	if ms < 0 {
		ms = 0
	}
	return c.receiveOnce(ms)
}
