// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgstream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Stream's counters as a prometheus.Collector,
// grounded on cmd/tcgdiskstat/metric.go's metricCollector: a fixed set of
// *prometheus.Desc built once and populated from live state on every
// Collect call via prometheus.MustNewConstMetric, rather than
// pre-registered Counter/Gauge objects that would need mutation from
// inside Stream itself.
type Collector struct {
	s    *Stream
	role string

	sent      *prometheus.Desc
	received  *prometheus.Desc
	reconnect *prometheus.Desc
	state     *prometheus.Desc
}

// NewCollector returns a Collector reporting s's counters, labeled with
// s's role.
func NewCollector(s *Stream) *Collector {
	return &Collector{
		s:    s,
		role: s.role.String(),
		sent: prometheus.NewDesc(
			"qubesgui_messages_sent_total",
			"Number of messages successfully queued for send on this stream",
			[]string{"role"}, nil,
		),
		received: prometheus.NewDesc(
			"qubesgui_messages_received_total",
			"Number of messages successfully read from this stream",
			[]string{"role"}, nil,
		),
		reconnect: prometheus.NewDesc(
			"qubesgui_reconnects_total",
			"Number of times this stream has reconnected its transport",
			[]string{"role"}, nil,
		),
		state: prometheus.NewDesc(
			"qubesgui_stream_state",
			"1 for the message-stream's current state, 0 for all others",
			[]string{"role", "state"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.sent
	ch <- c.received
	ch <- c.reconnect
	ch <- c.state
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(c.s.sentCount), c.role)
	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(c.s.recvCount), c.role)
	ch <- prometheus.MustNewConstMetric(c.reconnect, prometheus.CounterValue, float64(c.s.reconnectCount), c.role)
	for st := Connecting; st <= Error; st++ {
		v := 0.0
		if st == c.s.state {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, c.role, st.String())
	}
}

var _ prometheus.Collector = (*Collector)(nil)
