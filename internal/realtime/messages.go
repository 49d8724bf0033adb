package realtime

import "encoding/json"

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameAck         = "ack"
	frameChange      = "change"
	frameBroadcast   = "broadcast"
	frameTrack       = "track"
)

// frame is the single wire envelope of the realtime protocol. Fields are
// populated per type: subscribe/ack use ID, change carries Table/Event/New,
// broadcast and track carry Event/Payload.
type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Table   string          `json:"table,omitempty"`
	Event   string          `json:"event,omitempty"`
	New     json.RawMessage `json:"new,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RowChange notifies that a row of the given table changed. Consumers
// refetch the affected collection; the payload is advisory only.
type RowChange struct {
	Table string
	Event string
	New   json.RawMessage
}

// Broadcast is an ephemeral message relayed through a channel, never
// persisted server-side.
type Broadcast struct {
	Event   string
	Payload json.RawMessage
}

// Handlers are the per-subscription callbacks. They run on the read loop
// goroutine and must not block.
type Handlers struct {
	OnChange    func(RowChange)
	OnBroadcast func(Broadcast)
}
