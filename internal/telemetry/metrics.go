/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package telemetry provides the Prometheus metrics shared by the server
// components. Every method is safe to call on a nil *Metrics.
package telemetry

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	FeedPublished   *prometheus.CounterVec
	FeedDropped     *prometheus.CounterVec
	FeedSubscribers prometheus.Gauge
	StoreWrites     *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	MirrorPublished prometheus.Counter
	MirrorErrors    prometheus.Counter
	MirrorDropped   prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates the metrics and registers them on registry.
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		return nil, fmt.Errorf("prometheus registry is required")
	}

	m := &Metrics{
		FeedPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yardbox_feed_events_published_total",
			Help: "Row change events delivered to subscribers, by table",
		}, []string{"table"}),
		FeedDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yardbox_feed_subscribers_dropped_total",
			Help: "Subscribers disconnected because their buffer was full, by table",
		}, []string{"table"}),
		FeedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "yardbox_feed_subscribers",
			Help: "Currently open change feed subscriptions",
		}),
		StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yardbox_store_writes_total",
			Help: "Store writes by table and outcome",
		}, []string{"table", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "yardbox_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
		MirrorPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yardbox_mqtt_messages_published_total",
			Help: "Change events mirrored to the MQTT broker",
		}),
		MirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yardbox_mqtt_errors_total",
			Help: "Change events that failed to reach the MQTT broker",
		}),
		MirrorDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "yardbox_mqtt_events_dropped_total",
			Help: "Change events discarded because the mirror queue was full",
		}),
		registry: registry,
	}

	for _, c := range []prometheus.Collector{
		m.FeedPublished,
		m.FeedDropped,
		m.FeedSubscribers,
		m.StoreWrites,
		m.HTTPRequests,
		m.MirrorPublished,
		m.MirrorErrors,
		m.MirrorDropped,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EventPublished(table string) {
	if m == nil {
		return
	}
	m.FeedPublished.WithLabelValues(table).Inc()
}

func (m *Metrics) SubscriberDropped(table string) {
	if m == nil {
		return
	}
	m.FeedDropped.WithLabelValues(table).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.FeedSubscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.FeedSubscribers.Dec()
}

// Write records one store write. outcome is "ok", "conflict", "not_found" or
// "error".
func (m *Metrics) Write(table, outcome string) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(table, outcome).Inc()
}

func (m *Metrics) Request(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) Mirrored(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.MirrorErrors.Inc()
		return
	}
	m.MirrorPublished.Inc()
}

// MirrorOverflow records an event discarded because the mirror queue was full.
func (m *Metrics) MirrorOverflow() {
	if m == nil {
		return
	}
	m.MirrorDropped.Inc()
}
