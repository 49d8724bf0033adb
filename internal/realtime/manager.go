package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"spacedan/internal/logger"
	"spacedan/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	ackWait        = 5 * time.Second
	maxReconnectIn = 30 * time.Second
)

var ErrNotConnected = errors.New("realtime: not connected")

// Manager owns the single websocket link to the realtime backend and
// multiplexes per-(entityType,entityId) channels over it. Row-change and
// broadcast events are fanned out to the channel's subscription; everything
// else is dropped.
type Manager struct {
	url   string
	token string

	mu      sync.RWMutex
	conn    *websocket.Conn
	subs    map[string]*Subscription
	pending map[string]chan struct{}
	send    chan []byte
}

func NewManager(wsURL, token string) *Manager {
	return &Manager{
		url:     wsURL,
		token:   token,
		subs:    make(map[string]*Subscription),
		pending: make(map[string]chan struct{}),
	}
}

// Subscription is one open channel. Close unsubscribes; the manager keeps
// no state for a closed channel, so reconnects will not revive it.
type Subscription struct {
	m        *Manager
	channel  string
	handlers Handlers

	mu      sync.Mutex
	tracked json.RawMessage // presence announce, resent after reconnect
	closed  bool
}

// Channel returns the wire name of the subscription ("post:42" etc).
func (s *Subscription) Channel() string { return s.channel }

// Subscribe opens the channel for entityType/entityID. When the link is up
// the subscribe ack is awaited; when it is down the subscription is queued
// and flushed on (re)connect.
func (m *Manager) Subscribe(entityType, entityID string, h Handlers) (*Subscription, error) {
	channel := entityType + ":" + entityID

	sub := &Subscription{m: m, channel: channel, handlers: h}

	m.mu.Lock()
	if _, exists := m.subs[channel]; exists {
		m.mu.Unlock()
		return nil, errors.New("realtime: channel already subscribed: " + channel)
	}
	m.subs[channel] = sub
	connected := m.conn != nil
	m.mu.Unlock()

	if !connected {
		return sub, nil
	}

	if err := m.sendSubscribe(channel, true); err != nil {
		m.mu.Lock()
		delete(m.subs, channel)
		m.mu.Unlock()
		return nil, err
	}
	return sub, nil
}

// Track announces presence on the channel. The payload is resent after
// every reconnect until the subscription is closed.
func (s *Subscription) Track(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.tracked = raw
	s.mu.Unlock()

	return s.m.write(frame{Type: frameTrack, Channel: s.channel, Payload: raw})
}

// Broadcast relays an ephemeral event to the channel's other subscribers.
func (s *Subscription) Broadcast(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.m.write(frame{Type: frameBroadcast, Channel: s.channel, Event: event, Payload: raw})
}

// Close unsubscribes the channel. Safe to call twice.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.m.mu.Lock()
	delete(s.m.subs, s.channel)
	s.m.mu.Unlock()

	_ = s.m.write(frame{Type: frameUnsubscribe, Channel: s.channel})
}

// Run dials the backend and keeps the link alive until ctx is cancelled,
// reconnecting with capped backoff and resubscribing every open channel.
func (m *Manager) Run(ctx context.Context) {
	backoff := time.Second
	first := true

	for {
		if ctx.Err() != nil {
			return
		}
		if !first {
			metrics.Reconnects.Inc()
		}
		first = false

		err := m.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("realtime link lost", "err", err, "retry_in", backoff.String())

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectIn {
			backoff = maxReconnectIn
		}
	}
}

func (m *Manager) connectOnce(ctx context.Context) error {
	header := map[string][]string{"Authorization": {"Bearer " + m.token}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, m.url, header)
	if err != nil {
		return err
	}

	send := make(chan []byte, 256)
	m.mu.Lock()
	m.conn = conn
	m.send = send
	channels := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		channels = append(channels, s)
	}
	m.mu.Unlock()

	logger.Info("realtime connected", "channels", len(channels))

	done := make(chan struct{})
	go m.writePump(conn, send, done)

	// Replay subscriptions and presence announces on the fresh link.
	for _, s := range channels {
		_ = m.sendSubscribe(s.channel, false)
		s.mu.Lock()
		tracked := s.tracked
		s.mu.Unlock()
		if tracked != nil {
			_ = m.write(frame{Type: frameTrack, Channel: s.channel, Payload: tracked})
		}
	}

	err = m.readPump(ctx, conn)

	m.mu.Lock()
	m.conn = nil
	m.send = nil
	m.mu.Unlock()
	close(done)
	_ = conn.Close()
	return err
}

func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			logger.Warn("realtime: dropping malformed frame", "err", err)
			continue
		}
		m.dispatch(f)
	}
}

func (m *Manager) dispatch(f frame) {
	switch f.Type {
	case frameAck:
		m.mu.Lock()
		if ch, ok := m.pending[f.ID]; ok {
			close(ch)
			delete(m.pending, f.ID)
		}
		m.mu.Unlock()

	case frameChange:
		if sub := m.lookup(f.Channel); sub != nil && sub.handlers.OnChange != nil {
			sub.handlers.OnChange(RowChange{Table: f.Table, Event: f.Event, New: f.New})
		}

	case frameBroadcast:
		if sub := m.lookup(f.Channel); sub != nil && sub.handlers.OnBroadcast != nil {
			sub.handlers.OnBroadcast(Broadcast{Event: f.Event, Payload: f.Payload})
		}
	}
}

func (m *Manager) lookup(channel string) *Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subs[channel]
}

func (m *Manager) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn("realtime write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (m *Manager) write(f frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}

	m.mu.RLock()
	send := m.send
	m.mu.RUnlock()
	if send == nil {
		return ErrNotConnected
	}

	select {
	case send <- raw:
		return nil
	case <-time.After(writeWait):
		return errors.New("realtime: send queue full")
	}
}

// sendSubscribe emits a subscribe frame; awaitAck blocks until the server
// acknowledges or ackWait passes.
func (m *Manager) sendSubscribe(channel string, awaitAck bool) error {
	id := uuid.NewString()

	var acked chan struct{}
	if awaitAck {
		acked = make(chan struct{})
		m.mu.Lock()
		m.pending[id] = acked
		m.mu.Unlock()
	}

	if err := m.write(frame{Type: frameSubscribe, ID: id, Channel: channel}); err != nil {
		if awaitAck {
			m.mu.Lock()
			delete(m.pending, id)
			m.mu.Unlock()
		}
		return err
	}

	if !awaitAck {
		return nil
	}

	select {
	case <-acked:
		return nil
	case <-time.After(ackWait):
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return errors.New("realtime: subscribe ack timeout for " + channel)
	}
}
