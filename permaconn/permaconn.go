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

// Package permaconn implements the self-reconnecting message
// connection (C12): a timer-driven state machine that (re)creates a
// child stream connection on demand, optionally through a worker
// goroutine, and caches sends made while disconnected.
package permaconn

import (
	"crypto/tls"
	"sync"

	"github.com/nabbar/eventdispatcher/connection"
	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
	"github.com/nabbar/eventdispatcher/message"
	"github.com/nabbar/eventdispatcher/pause"
	"github.com/nabbar/eventdispatcher/reactor"
	"github.com/nabbar/eventdispatcher/transport/stream"
)

// Mode selects how the child connection is dialed.
type Mode int

const (
	Plain Mode = iota
	Secure
)

// State is one of the permanent connection's four states (§4.12).
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Done
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// SendResult reports how SendMessage handled a send.
type SendResult int

const (
	SendSent SendResult = iota
	SendCached
)

// DialFunc opens one child connection for a single connect attempt.
// The default, installed by New, dials a real TCP (or TLS) socket;
// tests substitute a fake via WithDialer.
type DialFunc func(name string) (connection.Connection, error)

// Config groups everything a permanent connection needs beyond its
// name: the target address, transport mode, TLS parameters (used only
// when Mode is Secure), the comma-separated pause schedule (§4.13),
// and whether connect attempts run on a worker goroutine.
type Config struct {
	Addr       stream.TCPAddr
	Mode       Mode
	ServerName string
	TLSConfig  *tls.Config
	Schedule   string
	UseThread  bool
}

// Connection is the permanent message connection (C12). It inherits
// the timer contract directly from connection.Base — its own Socket
// is always -1; I/O happens on whichever child it currently owns.
type Connection struct {
	*connection.Base

	mu sync.Mutex

	r        *reactor.Reactor
	mode     Mode
	dialer   DialFunc
	schedule *pause.Schedule

	useThread bool
	state     State

	child   connection.Connection
	done    *threadDone
	result  connectResult

	markDoneRequested bool
	cache             []*message.Message

	metrics *Metrics
}

type connectResult struct {
	child connection.Connection
	err   error
}

// New builds a permanent connection bound to reactor r and arms its
// first timer tick per cfg.Schedule.
func New(name string, r *reactor.Reactor, cfg Config) (*Connection, error) {
	sched, err := pause.Parse(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		Base:      connection.NewBase(name),
		r:         r,
		mode:      cfg.Mode,
		schedule:  sched,
		useThread: cfg.UseThread,
		state:     Disconnected,
	}
	c.dialer = defaultDialer(name, cfg)
	c.armInitial()
	return c, nil
}

// WithDialer overrides how child connect attempts are performed.
func (c *Connection) WithDialer(fn DialFunc) *Connection {
	c.mu.Lock()
	c.dialer = fn
	c.mu.Unlock()
	return c
}

// WithMetrics attaches a Prometheus-backed recorder; nil disables it.
func (c *Connection) WithMetrics(m *Metrics) *Connection {
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
	return c
}

func defaultDialer(name string, cfg Config) DialFunc {
	childName := name + ".child"
	switch cfg.Mode {
	case Secure:
		tcfg := cfg.TLSConfig
		if tcfg == nil {
			tcfg = &tls.Config{ServerName: cfg.ServerName}
		}
		return func(_ string) (connection.Connection, error) {
			return dialSecure(childName, cfg.Addr, tcfg)
		}
	default:
		return func(_ string) (connection.Connection, error) {
			return stream.DialTCP(childName, cfg.Addr)
		}
	}
}

// State reports the current state of the machine.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// MarkDone requests that the next detach (process_error / process_hup
// / process_invalid on the child) transitions to Done instead of
// re-arming the timer for another attempt (§4.12).
func (c *Connection) MarkDone() {
	c.mu.Lock()
	c.markDoneRequested = true
	c.mu.Unlock()
}

func (c *Connection) armInitial() {
	d := c.schedule.NextDelay()
	if d < 0 {
		c.state = Done
		return
	}
	c.SetTimeoutDelay(d)
	c.SetEnabled(true)
}

func (c *Connection) rearm() error {
	d := c.schedule.NextDelay()

	c.mu.Lock()
	if d < 0 {
		c.state = Done
		c.cache = nil
		c.mu.Unlock()
		return nil
	}
	c.state = Disconnected
	c.mu.Unlock()

	c.SetTimeoutDelay(d)
	c.SetEnabled(true)
	if c.r != nil {
		c.r.MarkDirty()
	}
	return nil
}

// Disconnect atomically detaches the current child (without marking
// Done) and re-arms the timer (§4.12).
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return nil
	}
	child := c.child
	c.child = nil
	c.mu.Unlock()

	if child != nil && c.r != nil {
		c.r.RemoveConnection(child)
	}
	return c.rearm()
}

// ProcessTimeout fires on every scheduled tick while Disconnected
// (§4.12's base timer contract). Ticks observed in any other state
// are ignored — the timer is disabled for the duration of Connecting
// and Connected.
func (c *Connection) ProcessTimeout() error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	useThread := c.useThread
	c.mu.Unlock()

	if useThread {
		return c.startWorker()
	}
	return c.connectInline()
}

func (c *Connection) connectInline() error {
	child, err := c.dialer(c.Name())
	if err != nil {
		logging.For(c.Name()).WithError(err).Warn("connect attempt failed")
		return c.rearm()
	}
	return c.becomeConnected(child)
}

func (c *Connection) becomeConnected(child connection.Connection) error {
	if disp := c.Dispatcher(); disp != nil {
		child.SetDispatcher(disp)
	}

	proxy := &childProxy{Connection: child, onDown: c.onChildDown}
	if c.r != nil {
		if err := c.r.AddConnection(proxy); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.state = Connected
	c.child = proxy
	cached := c.cache
	c.cache = nil
	c.mu.Unlock()

	c.SetEnabled(false)
	c.schedule.Restart()

	for _, m := range cached {
		if err := proxy.SendMessage(m); err != nil {
			logging.For(c.Name()).WithError(err).Warn("failed flushing cached message on connect")
		}
	}

	if c.metrics != nil {
		c.metrics.observeConnected()
	}
	return nil
}

func (c *Connection) onChildDown() {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	child := c.child
	c.child = nil
	markDone := c.markDoneRequested
	c.markDoneRequested = false
	c.mu.Unlock()

	if child != nil && c.r != nil {
		c.r.RemoveConnection(child)
	}

	if c.metrics != nil {
		c.metrics.observeDisconnect()
	}

	if markDone {
		c.mu.Lock()
		c.state = Done
		c.cache = nil
		c.mu.Unlock()
		return
	}

	if err := c.rearm(); err != nil {
		logging.For(c.Name()).WithError(err).Error("failed to re-arm after child detach")
	}
}

// SendMessage sends m immediately if Connected. Otherwise, if cache is
// true and the connection is not Done, m is appended to an in-order
// FIFO and drained the moment the connection next becomes Connected
// (§4.12 invariant 4); SendCached is returned rather than an error.
func (c *Connection) SendMessage(m *message.Message, cache bool) (SendResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Connected:
		sender, ok := c.child.(connection.MessageSender)
		if !ok {
			return 0, errs.New(errs.InvalidParameter, "permaconn: child does not accept messages")
		}
		if err := sender.SendMessage(m); err != nil {
			return 0, err
		}
		return SendSent, nil
	case Done:
		return 0, errs.New(errs.InvalidParameter, "permaconn: connection is done")
	default:
		if !cache {
			return 0, errs.New(errs.InvalidParameter, "permaconn: not connected")
		}
		c.cache = append(c.cache, m)
		return SendCached, nil
	}
}

// childProxy wraps a connected child so that detach events (error,
// hup, invalid fd) notify the permanent connection's state machine
// after delegating to the child's own teardown, exactly once even if
// more than one of the three fires in the same reactor iteration.
type childProxy struct {
	connection.Connection
	onDown   func()
	downOnce sync.Once
}

func (p *childProxy) down() {
	p.downOnce.Do(func() {
		if p.onDown != nil {
			p.onDown()
		}
	})
}

// ProcessRead treats any error from the wrapped child's own ProcessRead
// as a detach trigger too. A plain socket's read errors normally show
// up as a POLLHUP on the next iteration anyway, but the eventfd-bridged
// secure child (secure.go) has no such native HUP path — its only
// end-of-stream signal is an error returned from ProcessRead — so this
// extends the spec's three-signal detach model uniformly to both.
func (p *childProxy) ProcessRead() error {
	err := p.Connection.ProcessRead()
	if err != nil {
		p.down()
	}
	return err
}

func (p *childProxy) ProcessError() error {
	err := p.Connection.ProcessError()
	p.down()
	return err
}

func (p *childProxy) ProcessHup() error {
	err := p.Connection.ProcessHup()
	p.down()
	return err
}

func (p *childProxy) ProcessInvalid() error {
	err := p.Connection.ProcessInvalid()
	p.down()
	return err
}

// SendMessage forwards to the wrapped child when it supports sending.
func (p *childProxy) SendMessage(m *message.Message) error {
	if s, ok := p.Connection.(connection.MessageSender); ok {
		return s.SendMessage(m)
	}
	return errs.New(errs.InvalidParameter, "permaconn: child does not accept messages")
}
