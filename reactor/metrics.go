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

package reactor

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional Prometheus recorder a Reactor can be wired
// to via WithMetrics; the run loop itself has no dependency on it
// (every call site tolerates a nil *Metrics).
type Metrics struct {
	connections  prometheus.Gauge
	added        prometheus.Counter
	removed      prometheus.Counter
	iterations   prometheus.Counter
	pollEntries  prometheus.Gauge
	timeoutsFired prometheus.Counter
}

// NewMetrics builds and registers the reactor's gauges/counters on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "connections",
			Help:      "Number of connections currently registered with the reactor.",
		}),
		added: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "connections_added_total",
			Help:      "Total connections added to the reactor.",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "connections_removed_total",
			Help:      "Total connections removed from the reactor.",
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "iterations_total",
			Help:      "Total run loop iterations completed.",
		}),
		pollEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "poll_entries",
			Help:      "Poll array size in the most recent iteration.",
		}),
		timeoutsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactor",
			Name:      "timeouts_fired_total",
			Help:      "Total process_timeout invocations across all connections.",
		}),
	}
	reg.MustRegister(m.connections, m.added, m.removed, m.iterations, m.pollEntries, m.timeoutsFired)
	return m
}

func (m *Metrics) observeAdd() {
	m.added.Inc()
	m.connections.Inc()
}

func (m *Metrics) observeRemove() {
	m.removed.Inc()
	m.connections.Dec()
}

func (m *Metrics) observeTimeout() {
	m.timeoutsFired.Inc()
}

func (m *Metrics) observeIteration(_ int, pollEntries int) {
	m.iterations.Inc()
	m.pollEntries.Set(float64(pollEntries))
}
