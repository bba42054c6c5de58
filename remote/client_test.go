package remote

import (
	"context"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progrium/tapedeck/player"
	"github.com/progrium/tapedeck/server"
	"github.com/progrium/tapedeck/tape"
)

func newTestDeck(t *testing.T) (*player.Engine, *httptest.Server) {
	t.Helper()
	e := player.NewEngine(player.WithClock(clock.NewMock()))
	require.NoError(t, e.AddSource(tape.NewMemSource("lidar",
		&tape.Record{Timestamp: 1_000_000},
		&tape.Record{Timestamp: 61_000_000},
	)))
	ts := httptest.NewServer(server.New(e, server.WithGatherer(prometheus.NewRegistry())))
	t.Cleanup(ts.Close)
	return e, ts
}

func dialTest(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := Dial(serverURL)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		given string
		want  string
	}{
		{"http://localhost:8081/anything", "ws://localhost:8081"},
		{"https://deck.example.com", "wss://deck.example.com"},
		{"ws://10.0.0.2:9000", "ws://10.0.0.2:9000"},
		{"localhost:8081", "ws://localhost:8081"},
	}
	for _, test := range tests {
		u, err := NormalizeURL(test.given)
		require.NoError(t, err, test.given)
		assert.Equal(t, test.want, u.String(), test.given)
	}

	_, err := NormalizeURL("ftp://deck")
	assert.Error(t, err)
}

func TestClient_StatusAndCommand(t *testing.T) {
	e, ts := newTestDeck(t)
	c := dialTest(t, ts.URL)
	ctx := context.Background()

	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, player.StateStopped, status.State)
	assert.Equal(t, int64(1_000_000), status.Min)
	assert.Equal(t, int64(61_000_000), status.Max)

	status, err = c.Command(ctx, "/seek", "00:30")
	require.NoError(t, err)
	assert.Equal(t, int64(31_000_000), status.Position)

	status, err = c.Command(ctx, "/play")
	require.NoError(t, err)
	assert.Equal(t, player.StatePlaying, status.State)
	assert.True(t, e.IsPlaying())

	_, err = c.Command(ctx, "/eject")
	assert.Error(t, err)
}

func TestClient_Watch(t *testing.T) {
	e, ts := newTestDeck(t)
	c := dialTest(t, ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []server.Event
	go c.Watch(ctx, func(ev server.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		return nil
	})
	kinds := func() []string {
		mu.Lock()
		defer mu.Unlock()
		var out []string
		for _, ev := range events {
			out = append(out, ev.Kind)
		}
		return out
	}

	// initial snapshot
	require.Eventually(t, func() bool { return len(kinds()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Play())
	e.Stop()

	require.Eventually(t, func() bool { return len(kinds()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{server.EventState, server.EventState, server.EventState, server.EventStop}, kinds())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, player.StateStopped, events[0].State)
	assert.Equal(t, player.StatePlaying, events[1].State)
	assert.Equal(t, player.StateStopped, events[2].State)
}

func TestRelay(t *testing.T) {
	_, deck := newTestDeck(t)

	upstream, err := url.Parse(deck.URL)
	require.NoError(t, err)
	upstream.Scheme = "ws"
	relay := httptest.NewServer(server.Relay(upstream))
	t.Cleanup(relay.Close)

	c := dialTest(t, relay.URL)
	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(61_000_000), status.Max)
}
