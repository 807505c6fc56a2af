package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

type fakeBus struct {
	mu     sync.Mutex
	subs   map[string]chan []byte
	stream []domain.StreamMessage
	ready  chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]chan []byte), ready: make(chan struct{}, len(Channels))}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch := b.subs[channel]
	b.mu.Unlock()
	if ch != nil {
		ch <- payload
	}
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 8)
	b.mu.Lock()
	b.subs[channel] = ch
	b.mu.Unlock()
	b.ready <- struct{}{}
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, domain.StreamMessage{ID: "1-0", Payload: payload})
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, _ string, _ string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if count > len(b.stream) {
		count = len(b.stream)
	}
	return append([]domain.StreamMessage(nil), b.stream[:count]...), nil
}

func startHub(t *testing.T, bus *fakeBus, replay int) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger, Config{Mode: "Server", Replay: replay})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	for range Channels {
		select {
		case <-bus.ready:
		case <-time.After(2 * time.Second):
			t.Fatal("hub did not subscribe")
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestHubSendsHelloThenEvents(t *testing.T) {
	bus := newFakeBus()
	srv := startHub(t, bus, 0)
	conn := dial(t, srv, "")

	hello := readJSON(t, conn)
	assert.Equal(t, "hello", hello["type"])
	payload := hello["payload"].(map[string]any)
	assert.Equal(t, "server", payload["mode"])

	// The hello frame is queued after registration, so the client is
	// already receiving broadcasts.
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelSettlement,
		[]byte(`{"type":"fixture.settled","fixture_id":7}`)))
	ev := readJSON(t, conn)
	assert.Equal(t, "fixture.settled", ev["type"])
	assert.EqualValues(t, 7, ev["fixture_id"])
}

func TestHubReplaysStream(t *testing.T) {
	bus := newFakeBus()
	require.NoError(t, bus.StreamAppend(context.Background(), domain.StreamEvents, []byte(`{"type":"consensus.produced","fixture_id":1}`)))
	require.NoError(t, bus.StreamAppend(context.Background(), domain.StreamEvents, []byte(`{"type":"consensus.produced","fixture_id":2}`)))
	srv := startHub(t, bus, 10)

	conn := dial(t, srv, "?fixture=2")
	assert.Equal(t, "hello", readJSON(t, conn)["type"])

	replayed := readJSON(t, conn)
	assert.EqualValues(t, 2, replayed["fixture_id"])
}

func TestClientFilters(t *testing.T) {
	c := &client{
		subs:     map[string]bool{"ch:*": true},
		fixtures: map[int64]bool{},
	}
	assert.True(t, c.wants(domain.ChannelPrize, 0))
	assert.True(t, c.wants(domain.ChannelConsensus, 9))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Fixtures: []int64{5}})
	assert.True(t, c.wants(domain.ChannelConsensus, 5))
	assert.False(t, c.wants(domain.ChannelConsensus, 9))
	assert.True(t, c.wants(domain.ChannelPrize, 0), "events without a fixture always pass")

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:*"}})
	assert.False(t, c.wants(domain.ChannelConsensus, 5))
}

func TestEventFixture(t *testing.T) {
	assert.Equal(t, int64(12), eventFixture([]byte(`{"fixture_id":12}`)))
	assert.Equal(t, int64(0), eventFixture([]byte(`not json`)))
	assert.Equal(t, int64(0), eventFixture([]byte(`{"type":"prize.awarded"}`)))
}
