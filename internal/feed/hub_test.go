/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package feed

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Seednode/yardbox/internal/investigation"
	"github.com/Seednode/yardbox/internal/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func player(code, id string, version int64) investigation.Player {
	return investigation.Player{ID: id, InvestigationCode: code, PlayerID: "p-" + id, Version: version}
}

func TestParseTable(t *testing.T) {
	for _, table := range Tables {
		got, err := ParseTable(string(table))
		require.NoError(t, err)
		assert.Equal(t, table, got)
	}

	_, err := ParseTable("investigations")
	assert.Error(t, err)
}

func TestPublishDeliversOnlyMatchingCodeAndTable(t *testing.T) {
	h := NewHub()
	defer h.Close()

	mine, err := h.Subscribe("ABCDE", TablePlayers)
	require.NoError(t, err)
	other, err := h.Subscribe("ZZZZZ", TablePlayers)
	require.NoError(t, err)
	cases, err := h.Subscribe("ABCDE", TableCaseFiles)
	require.NoError(t, err)

	h.Publish(PlayerEvent(Insert, player("ABCDE", "1", 1)))

	select {
	case ev := <-mine.Events():
		require.NotNil(t, ev.Player)
		assert.Equal(t, "1", ev.Player.ID)
		assert.Equal(t, int64(1), ev.Version)
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}

	assert.Empty(t, other.Events())
	assert.Empty(t, cases.Events())
}

func TestAccusationSubscribersIgnoreUpdates(t *testing.T) {
	h := NewHub()
	defer h.Close()

	s, err := h.Subscribe("ABCDE", TableAccusations)
	require.NoError(t, err)

	a := investigation.Accusation{ID: "a1", InvestigationCode: "ABCDE"}
	upd := AccusationEvent(a)
	upd.Type = Update
	h.Publish(upd)
	assert.Empty(t, s.Events())

	h.Publish(AccusationEvent(a))
	assert.Len(t, s.Events(), 1)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	h := NewHub(WithBuffer(1), WithMetrics(metrics))
	defer h.Close()

	s, err := h.Subscribe("ABCDE", TablePlayers)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Subscribers("ABCDE", TablePlayers))

	h.Publish(PlayerEvent(Update, player("ABCDE", "1", 2)))
	h.Publish(PlayerEvent(Update, player("ABCDE", "1", 3)))

	assert.Equal(t, 0, h.Subscribers("ABCDE", TablePlayers))

	ev, ok := <-s.Events()
	require.True(t, ok)
	assert.Equal(t, int64(2), ev.Version)

	_, ok = <-s.Events()
	assert.False(t, ok, "channel should be closed after drop")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeedDropped.WithLabelValues(string(TablePlayers))))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.FeedSubscribers))
}

func TestSubscriberCloseIsIdempotent(t *testing.T) {
	h := NewHub()
	defer h.Close()

	s, err := h.Subscribe("ABCDE", TablePlayers)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestClosedHubRejectsSubscribers(t *testing.T) {
	h := NewHub()

	s, err := h.Subscribe("ABCDE", TablePlayers)
	require.NoError(t, err)

	h.Close()
	h.Close()

	_, ok := <-s.Events()
	assert.False(t, ok)

	_, err = h.Subscribe("ABCDE", TablePlayers)
	assert.ErrorIs(t, err, ErrClosed)

	h.Publish(PlayerEvent(Insert, player("ABCDE", "1", 1)))
}

func TestConcurrentPublishAndClose(t *testing.T) {
	h := NewHub(WithBuffer(4))
	defer h.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		s, err := h.Subscribe("ABCDE", TablePlayers)
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for range s.Events() {
			}
		}()

		go func() {
			time.Sleep(time.Millisecond)
			_ = s.Close()
		}()
	}

	for i := 0; i < 100; i++ {
		h.Publish(PlayerEvent(Update, player("ABCDE", "1", int64(i))))
	}

	h.Close()
	wg.Wait()
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	err       error
	messages  []published
}

func (c *fakeClient) IsConnected() bool {
	return c.connected
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, published{topic: topic, payload: payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]published(nil), c.messages...)
}

func (c *fakeClient) Disconnect(uint) {
	c.connected = false
}

func TestMQTTSinkMirrorsEvents(t *testing.T) {
	client := &fakeClient{connected: true}
	sink := NewMQTTSink(client, "/yardbox/", nil)

	h := NewHub(WithSink(sink))

	h.Publish(CaseFileEvent(Insert, investigation.CaseFile{
		InvestigationCode: "ABCDE",
		MurdererAlias:     "Captain Gold",
		Weapon:            "Revolver",
		Version:           1,
	}))
	h.Close()

	messages := client.sent()
	require.Len(t, messages, 1)
	assert.Equal(t, "yardbox/ABCDE/investigation_case_files", messages[0].topic)

	var ev Event
	require.NoError(t, json.Unmarshal(messages[0].payload, &ev))
	assert.Equal(t, TableCaseFiles, ev.Table)
	assert.Equal(t, Insert, ev.Type)
	assert.Equal(t, "ABCDE", ev.Code)
	require.NotNil(t, ev.CaseFile)
	assert.Equal(t, "Captain Gold", ev.CaseFile.MurdererAlias)
}

func TestMQTTSinkErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	client := &fakeClient{}
	sink := NewMQTTSink(client, "", metrics)

	ev := AccusationEvent(investigation.Accusation{ID: "a1", InvestigationCode: "ABCDE"})
	assert.Equal(t, "ABCDE/investigation_accusations", sink.Topic(ev))

	assert.Error(t, sink.Publish(ev))

	client.connected = true
	client.err = errors.New("broker unavailable")
	assert.EqualError(t, sink.Publish(ev), "broker unavailable")

	client.err = nil
	assert.NoError(t, sink.Publish(ev))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MirrorErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MirrorPublished))

	sink.Close()
	assert.False(t, client.connected)
}

// stuckSink blocks every delivery until release is closed.
type stuckSink struct {
	release chan struct{}

	mu  sync.Mutex
	got []Event
}

func (s *stuckSink) Publish(ev Event) error {
	<-s.release

	s.mu.Lock()
	defer s.mu.Unlock()

	s.got = append(s.got, ev)
	return nil
}

func (s *stuckSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.got)
}

func TestSlowSinkDoesNotBlockPublish(t *testing.T) {
	sink := &stuckSink{release: make(chan struct{})}
	h := NewHub(WithSink(sink), WithMirrorBuffer(4))

	sub, err := h.Subscribe("ABCDE", TablePlayers)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 3 {
			h.Publish(PlayerEvent(Update, player("ABCDE", "1", int64(i+1))))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish waited on the sink")
	}

	for range 3 {
		<-sub.Events()
	}
	assert.Zero(t, sink.count())

	close(sink.release)
	h.Close()
	assert.Equal(t, 3, sink.count())
}

func TestFullMirrorQueueDropsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	sink := &stuckSink{release: make(chan struct{})}
	h := NewHub(WithSink(sink), WithMirrorBuffer(2), WithMetrics(metrics))

	// One event is held by the stuck sink, two wait in the queue.
	h.Publish(PlayerEvent(Update, player("ABCDE", "1", 1)))
	require.Eventually(t, func() bool {
		return len(h.mirror) == 0
	}, 5*time.Second, time.Millisecond)

	for i := range 5 {
		h.Publish(PlayerEvent(Update, player("ABCDE", "1", int64(i+2))))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.MirrorDropped))

	close(sink.release)
	h.Close()
	assert.Equal(t, 3, sink.count())
}
