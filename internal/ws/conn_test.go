package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newTestServer upgrades every request and hands the socket to handler on its
// own goroutine. The returned counter tracks completed upgrades.
func newTestServer(t *testing.T, handler func(*websocket.Conn)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var upgrades atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgrades.Add(1)
		go handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv, &upgrades
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// blockReading holds the socket open without speaking.
func blockReading(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestConn_ConnectIdempotent(t *testing.T) {
	srv, upgrades := newTestServer(t, blockReading)

	c := NewConn(Options{URL: wsURL(srv)}, NewMux())
	defer c.Close()

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()), "second connect should be a no-op")

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, int32(1), upgrades.Load(), "expected exactly one underlying connection attempt")
}

func TestConn_RequestResolvesAck(t *testing.T) {
	srv, _ := newTestServer(t, func(conn *websocket.Conn) {
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ack := AckBody{Success: true}
			if env.Event == EventPlaceBid {
				ack = AckBody{Success: false, Error: "Bid must be higher than the current bid"}
			}
			raw, _ := json.Marshal(ack)
			_ = conn.WriteJSON(Envelope{Event: env.Event + AckSuffix, Seq: env.Seq, Body: raw})
		}
	})

	c := NewConn(Options{URL: wsURL(srv)}, NewMux())
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ack, err := c.Request(ctx, EventJoinAuction, JoinRequest{ArtworkID: "A1", CallerIdentity: "u1"})
	require.NoError(t, err)
	assert.True(t, ack.Success)

	ack, err = c.Request(ctx, EventPlaceBid, BidRequest{ArtworkID: "A1", CallerIdentity: "u1", BidAmount: 1})
	require.NoError(t, err)
	assert.False(t, ack.Success)
	assert.Equal(t, "Bid must be higher than the current bid", ack.Error)
}

func TestConn_PushEventReachesMux(t *testing.T) {
	want := NewBidEvent{ArtworkID: "A1", BidderID: "u1", BidderName: "User One", BidAmount: 500, Timestamp: 1700000000}
	srv, _ := newTestServer(t, func(conn *websocket.Conn) {
		raw, _ := json.Marshal(want)
		_ = conn.WriteJSON(Envelope{Event: EventNewBid, Body: raw})
		blockReading(conn)
	})

	mux := NewMux()
	got := make(chan NewBidEvent, 1)
	mux.Subscribe("A1", &Subscriber{OnNewBid: func(ev NewBidEvent) { got <- ev }})

	c := NewConn(Options{URL: wsURL(srv)}, mux)
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	select {
	case ev := <-got:
		assert.Equal(t, want, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive newBid event in time")
	}
}

func TestConn_ReconnectAfterDrop(t *testing.T) {
	var drops atomic.Int32
	srv, upgrades := newTestServer(t, func(conn *websocket.Conn) {
		// Kill the first socket; keep later ones alive.
		if drops.Add(1) == 1 {
			conn.Close()
			return
		}
		blockReading(conn)
	})

	c := NewConn(Options{URL: wsURL(srv), MaxRetries: 5, RetryDelay: 10 * time.Millisecond}, NewMux())
	defer c.Close()

	rejoined := make(chan struct{}, 1)
	c.OnReconnect(func() { rejoined <- struct{}{} })

	require.NoError(t, c.Connect(context.Background()))

	select {
	case <-rejoined:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect hook did not fire")
	}
	assert.Equal(t, StateConnected, c.State())
	assert.GreaterOrEqual(t, upgrades.Load(), int32(2))
}

func TestConn_RetriesExhaustedIsTerminal(t *testing.T) {
	srv, _ := newTestServer(t, blockReading)

	c := NewConn(Options{URL: wsURL(srv), MaxRetries: 2, RetryDelay: 10 * time.Millisecond}, NewMux())
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	// Take the server away entirely: every redial must fail.
	srv.CloseClientConnections()
	srv.Close()

	require.Eventually(t, func() bool { return c.State() == StateFailed },
		2*time.Second, 10*time.Millisecond, "expected terminal failed state after retries exhaust")

	// No further automatic action: recovery needs external intervention.
	_, err := c.Request(context.Background(), EventPlaceBid, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConn_InitialDialFailureRetriesToFailed(t *testing.T) {
	srv, _ := newTestServer(t, blockReading)
	url := wsURL(srv)
	srv.Close() // nothing listens there any more

	c := NewConn(Options{URL: url, MaxRetries: 3, RetryDelay: 10 * time.Millisecond}, NewMux())
	defer c.Close()

	start := time.Now()
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, c.State(), "exhausted initial retries must be terminal")
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "each retry waits the fixed delay")
}

func TestConn_CloseDuringRedialDiscardsSocket(t *testing.T) {
	var reqs atomic.Int32
	redialing := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqs.Add(1) == 1 {
			conn, err := testUpgrader.Upgrade(w, r, nil)
			if err == nil {
				conn.Close() // force a reconnect
			}
			return
		}
		// Hold the redial handshake open so Close can land mid-dial.
		close(redialing)
		<-release
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err == nil {
			go blockReading(conn)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewConn(Options{URL: wsURL(srv), MaxRetries: 5, RetryDelay: 10 * time.Millisecond}, NewMux())

	hookFired := make(chan struct{}, 1)
	c.OnReconnect(func() { hookFired <- struct{}{} })

	require.NoError(t, c.Connect(context.Background()))

	select {
	case <-redialing:
	case <-time.After(2 * time.Second):
		t.Fatal("redial never reached the server")
	}

	require.NoError(t, c.Close())
	close(release)

	assert.Never(t, func() bool { return c.State() == StateConnected },
		300*time.Millisecond, 20*time.Millisecond, "closed connection must not come back up")
	select {
	case <-hookFired:
		t.Fatal("reconnect hook fired after Close")
	default:
	}
}

func TestConn_RequestWithoutConnection(t *testing.T) {
	c := NewConn(Options{URL: "ws://127.0.0.1:0"}, NewMux())
	_, err := c.Request(context.Background(), EventJoinAuction, nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}
