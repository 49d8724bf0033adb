package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testServer is a single-connection realtime backend: it acks subscribes
// and lets the test push frames down the link.
type testServer struct {
	t  *testing.T
	up websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []map[string]any
}

func newTestServer(t *testing.T) (*testServer, string) {
	ts := &testServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(srv.Close)
	return ts, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (ts *testServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ts.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ts.mu.Lock()
	ts.conn = conn
	ts.mu.Unlock()

	for {
		var f map[string]any
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		ts.mu.Lock()
		ts.received = append(ts.received, f)
		ts.mu.Unlock()

		if f["type"] == "subscribe" {
			conn.WriteJSON(map[string]any{
				"type":    "ack",
				"id":      f["id"],
				"channel": f["channel"],
			})
		}
	}
}

func (ts *testServer) push(frame map[string]any) {
	ts.mu.Lock()
	conn := ts.conn
	ts.mu.Unlock()
	if conn == nil {
		ts.t.Fatal("push before the client connected")
	}
	if err := conn.WriteJSON(frame); err != nil {
		ts.t.Fatalf("push: %v", err)
	}
}

func (ts *testServer) frames(frameType string) []map[string]any {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []map[string]any
	for _, f := range ts.received {
		if f["type"] == frameType {
			out = append(out, f)
		}
	}
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSubscribeQueuedBeforeConnect(t *testing.T) {
	ts, url := newTestServer(t)
	m := NewManager(url, "tok")

	changes := make(chan RowChange, 1)
	sub, err := m.Subscribe("balance", "u1", Handlers{
		OnChange: func(rc RowChange) { changes <- rc },
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// the queued subscription is replayed on connect
	waitUntil(t, func() bool { return len(ts.frames("subscribe")) == 1 })
	if got := ts.frames("subscribe")[0]["channel"]; got != "balance:u1" {
		t.Fatalf("subscribed channel = %v; want balance:u1", got)
	}

	ts.push(map[string]any{
		"type":    "change",
		"channel": "balance:u1",
		"table":   "profiles",
		"event":   "UPDATE",
		"new":     map[string]any{"balance": 120},
	})

	select {
	case rc := <-changes:
		var row struct {
			Balance int64 `json:"balance"`
		}
		if err := json.Unmarshal(rc.New, &row); err != nil || row.Balance != 120 {
			t.Fatalf("row = %s, %v; want balance 120", rc.New, err)
		}
		if rc.Table != "profiles" || rc.Event != "UPDATE" {
			t.Fatalf("change = %+v", rc)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("change never dispatched")
	}
}

func TestSubscribeAfterConnectAwaitsAck(t *testing.T) {
	ts, url := newTestServer(t)
	m := NewManager(url, "tok")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// wait for the link before subscribing
	waitUntil(t, func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		return ts.conn != nil
	})

	sub, err := m.Subscribe("post", "42", Handlers{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if sub.Channel() != "post:42" {
		t.Fatalf("channel = %q", sub.Channel())
	}
}

func TestBroadcastDispatch(t *testing.T) {
	ts, url := newTestServer(t)
	m := NewManager(url, "tok")

	events := make(chan Broadcast, 1)
	sub, err := m.Subscribe("universe", "main", Handlers{
		OnBroadcast: func(b Broadcast) { events <- b },
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitUntil(t, func() bool { return len(ts.frames("subscribe")) == 1 })

	ts.push(map[string]any{
		"type":    "broadcast",
		"channel": "universe:main",
		"event":   "typing",
		"payload": map[string]any{"sender_id": "u2", "is_typing": true},
	})

	select {
	case b := <-events:
		if b.Event != "typing" {
			t.Fatalf("event = %q; want typing", b.Event)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("broadcast never dispatched")
	}
}

func TestDuplicateChannelRejected(t *testing.T) {
	_, url := newTestServer(t)
	m := NewManager(url, "tok")

	sub, err := m.Subscribe("post", "1", Handlers{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if _, err := m.Subscribe("post", "1", Handlers{}); err == nil {
		t.Fatal("duplicate channel accepted")
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	ts, url := newTestServer(t)
	m := NewManager(url, "tok")

	var got int
	sub, err := m.Subscribe("post", "1", Handlers{
		OnChange: func(RowChange) { got++ },
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitUntil(t, func() bool { return len(ts.frames("subscribe")) == 1 })

	sub.Close()
	sub.Close() // safe to repeat

	waitUntil(t, func() bool { return len(ts.frames("unsubscribe")) >= 1 })

	// a change on the closed channel is dropped
	ts.push(map[string]any{"type": "change", "channel": "post:1", "event": "UPDATE"})
	time.Sleep(100 * time.Millisecond)
	if got != 0 {
		t.Fatalf("change dispatched %d times after close", got)
	}
}

func TestTrackResentPayload(t *testing.T) {
	ts, url := newTestServer(t)
	m := NewManager(url, "tok")

	sub, err := m.Subscribe("universe", "main", Handlers{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	waitUntil(t, func() bool { return len(ts.frames("subscribe")) == 1 })

	if err := sub.Track(map[string]any{"online": true}); err != nil {
		t.Fatalf("track: %v", err)
	}
	waitUntil(t, func() bool { return len(ts.frames("track")) == 1 })
}

func TestWriteWhileDisconnected(t *testing.T) {
	m := NewManager("ws://127.0.0.1:1/ws", "tok")
	sub, err := m.Subscribe("post", "1", Handlers{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Broadcast("typing", map[string]any{}); err != ErrNotConnected {
		t.Fatalf("err = %v; want ErrNotConnected", err)
	}
}
