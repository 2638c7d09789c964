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

package permaconn

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional Prometheus recorder a Connection can be
// wired to via WithMetrics; every call site tolerates a nil *Metrics.
type Metrics struct {
	connects    prometheus.Counter
	disconnects prometheus.Counter
}

// NewMetrics builds and registers the permanent connection's counters
// on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permaconn",
			Name:      "connects_total",
			Help:      "Total successful connects.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "permaconn",
			Name:      "disconnects_total",
			Help:      "Total child detach events (error, hup, or invalid fd).",
		}),
	}
	reg.MustRegister(m.connects, m.disconnects)
	return m
}

func (m *Metrics) observeConnected() {
	m.connects.Inc()
}

func (m *Metrics) observeDisconnect() {
	m.disconnects.Inc()
}
