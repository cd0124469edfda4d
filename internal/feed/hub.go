/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package feed fans committed row changes out to the readers watching an
// investigation. Delivery is at-least-once from the reader's point of view
// and carries no ordering guarantee across tables.
package feed

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/Seednode/yardbox/internal/telemetry"
)

const (
	// DefaultBuffer is the number of events a subscriber may fall behind
	// before it is dropped.
	DefaultBuffer = 32

	// DefaultMirrorBuffer is the number of events queued for the sinks before
	// new ones are discarded.
	DefaultMirrorBuffer = 256
)

var ErrClosed = errors.New("feed: hub closed")

// Sink receives a copy of every published event, after local delivery. Sinks
// run on a single background goroutine, one event at a time.
type Sink interface {
	Publish(Event) error
}

type key struct {
	code  string
	table Table
}

type Hub struct {
	mu     sync.Mutex
	subs   map[key]map[*Subscriber]bool
	closed bool

	buffer  int
	sinks   []Sink
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mirrorBuffer int
	mirror       chan Event
	mirrorDone   chan struct{}
}

type Option func(*Hub)

func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func WithMirrorBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.mirrorBuffer = n
		}
	}
}

func WithSink(s Sink) Option {
	return func(h *Hub) {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:         make(map[key]map[*Subscriber]bool),
		buffer:       DefaultBuffer,
		mirrorBuffer: DefaultMirrorBuffer,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	if len(h.sinks) > 0 {
		h.mirror = make(chan Event, h.mirrorBuffer)
		h.mirrorDone = make(chan struct{})
		go h.runSinks()
	}

	return h
}

// runSinks hands queued events to the sinks until the queue is closed and
// drained.
func (h *Hub) runSinks() {
	defer close(h.mirrorDone)

	for ev := range h.mirror {
		for _, sink := range h.sinks {
			if err := sink.Publish(ev); err != nil {
				h.logger.Error("mirroring event", "code", ev.Code, "table", ev.Table, "error", err)
			}
		}
	}
}

// Subscriber is one reader of a (code, table) channel. Its Events channel is
// closed when the subscriber is closed, dropped, or the hub shuts down.
type Subscriber struct {
	hub    *Hub
	key    key
	types  []EventType
	events chan Event
}

func (s *Subscriber) Events() <-chan Event {
	return s.events
}

func (s *Subscriber) Table() Table {
	return s.key.table
}

func (s *Subscriber) Code() string {
	return s.key.code
}

// Close detaches s from the hub. It is safe to call more than once.
func (s *Subscriber) Close() error {
	s.hub.remove(s)
	return nil
}

func (s *Subscriber) wants(t EventType) bool {
	return slices.Contains(s.types, t)
}

// Subscribe opens a channel for the changes to table within the investigation
// code. With no types given, DefaultTypes(table) is used.
func (h *Hub) Subscribe(code string, table Table, types ...EventType) (*Subscriber, error) {
	if len(types) == 0 {
		types = DefaultTypes(table)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	s := &Subscriber{
		hub:    h,
		key:    key{code: code, table: table},
		types:  slices.Clone(types),
		events: make(chan Event, h.buffer),
	}

	set, ok := h.subs[s.key]
	if !ok {
		set = make(map[*Subscriber]bool)
		h.subs[s.key] = set
	}
	set[s] = true

	h.metrics.SubscriberAdded()

	return s, nil
}

// Publish delivers ev to every matching subscriber and queues it for the sinks
// without blocking. A subscriber whose buffer is full is dropped and its
// channel closed. When the sink queue is full the event is not mirrored.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}

	for s := range h.subs[key{code: ev.Code, table: ev.Table}] {
		if !s.wants(ev.Type) {
			continue
		}

		select {
		case s.events <- ev:
			h.metrics.EventPublished(string(ev.Table))
		default:
			h.logger.Warn("dropping slow subscriber", "code", ev.Code, "table", ev.Table)
			h.metrics.SubscriberDropped(string(ev.Table))
			h.removeLocked(s)
		}
	}

	if h.mirror != nil {
		select {
		case h.mirror <- ev:
		default:
			h.logger.Warn("mirror queue full, dropping event", "code", ev.Code, "table", ev.Table)
			h.metrics.MirrorOverflow()
		}
	}
	h.mu.Unlock()
}

// Subscribers returns the number of open subscriptions for (code, table).
func (h *Hub) Subscribers(code string, table Table) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs[key{code: code, table: table}])
}

// Close disconnects every subscriber and waits for queued events to reach the
// sinks. Later calls to Subscribe fail with ErrClosed and Publish becomes a
// no-op.
func (h *Hub) Close() {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true

	for _, set := range h.subs {
		for s := range set {
			h.removeLocked(s)
		}
	}
	if h.mirror != nil {
		close(h.mirror)
	}
	h.mu.Unlock()

	if h.mirrorDone != nil {
		<-h.mirrorDone
	}
}

func (h *Hub) remove(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscriber) {
	set, ok := h.subs[s.key]
	if !ok || !set[s] {
		return
	}

	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.key)
	}
	close(s.events)

	h.metrics.SubscriberRemoved()
}
