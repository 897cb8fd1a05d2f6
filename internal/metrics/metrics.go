// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus instrumentation for the peer registry
// and the alert relay.
package metrics

import (
	"net/http"

	"github.com/anoncoin/anond/internal/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace prefixes every metric name.
const namespace = "anond"

// TrafficSource reports the cumulative bytes received and sent.
type TrafficSource interface {
	NetTotals() (recv, sent uint64)
}

// Metrics holds the collectors of the node.  The zero value is not usable;
// create instances with New.
type Metrics struct {
	registry *prometheus.Registry

	peers           *prometheus.GaugeVec
	activeAlerts    prometheus.Gauge
	alertsProcessed *prometheus.CounterVec
	alertsRelayed   prometheus.Counter
	peersBanned     prometheus.Counter
}

// New creates the collectors and registers them on a private registry.
// Traffic totals are read from src on every scrape when it is not nil.
func New(src TrafficSource) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of connected peers by direction.",
		}, []string{"direction"}),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_active",
			Help:      "Number of active alerts.",
		}),
		alertsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_processed_total",
			Help:      "Alerts processed by outcome.",
		}, []string{"outcome"}),
		alertsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_relayed_total",
			Help:      "Alert transmissions handed to peers.",
		}),
		peersBanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_banned_total",
			Help:      "Peers disconnected and banned for misbehavior.",
		}),
	}
	m.registry.MustRegister(m.peers, m.activeAlerts, m.alertsProcessed,
		m.alertsRelayed, m.peersBanned)

	// Pre-populate the label values so every series is exported from the
	// start.
	for _, o := range relay.Outcomes() {
		m.alertsProcessed.WithLabelValues(o.String())
	}
	m.peers.WithLabelValues("inbound")
	m.peers.WithLabelValues("outbound")

	if src != nil {
		m.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_received_total",
				Help:      "Bytes received from all peers.",
			}, func() float64 {
				recv, _ := src.NetTotals()
				return float64(recv)
			}),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_sent_total",
				Help:      "Bytes sent to all peers.",
			}, func() float64 {
				_, sent := src.NetTotals()
				return float64(sent)
			}),
		)
	}
	return m
}

// AlertProcessed records the outcome of processing an alert.
func (m *Metrics) AlertProcessed(o relay.Outcome) {
	m.alertsProcessed.WithLabelValues(o.String()).Inc()
}

// AlertRelayed records n alert transmissions.
func (m *Metrics) AlertRelayed(n int) {
	m.alertsRelayed.Add(float64(n))
}

// PeerBanned records a peer ban.
func (m *Metrics) PeerBanned() {
	m.peersBanned.Inc()
}

// SetPeers records the number of connected peers by direction.
func (m *Metrics) SetPeers(inbound, outbound int) {
	m.peers.WithLabelValues("inbound").Set(float64(inbound))
	m.peers.WithLabelValues("outbound").Set(float64(outbound))
}

// SetActiveAlerts records the number of active alerts.
func (m *Metrics) SetActiveAlerts(n int) {
	m.activeAlerts.Set(float64(n))
}

// Handler returns an HTTP handler serving the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
