package model

import "errors"

// ParticipantID identifies a connected participant for the lifetime of its
// connection. Ids are unique within a room under the monotonic strategy and
// best-effort unique under the address-hash strategy.
type ParticipantID uint32

// VideoChunk is one compressed video frame. Payload is opaque to the hub and
// immutable once constructed; a broadcast shares the same backing slice with
// every recipient.
type VideoChunk struct {
	KeyFrame bool
	Payload  []byte
}

// Event types delivered to sessions. The values double as the "action" field
// of outbound control messages.
const (
	EventVideo      = "video"
	EventPeerJoined = "connect"
	EventPeerLeft   = "disconnect"
)

// SessionEvent is a message from a coordinator to a session: either a relayed
// chunk from another participant or a join/leave notification.
type SessionEvent struct {
	Type  string
	From  ParticipantID
	Chunk VideoChunk // set only for EventVideo
}

// Room messages, enqueued by sessions into a coordinator's mailbox.
type (
	// Connect registers a session handle under its id.
	Connect struct {
		ID   ParticipantID
		Wire *Wire
	}

	// Disconnect removes a session from the room. Duplicate or late
	// disconnects are no-ops.
	Disconnect struct {
		ID ParticipantID
	}

	// Relay asks the coordinator to fan a chunk out to everyone except From.
	Relay struct {
		From  ParticipantID
		Chunk VideoChunk
	}

	// Membership requests a snapshot of registered ids, delivered on Reply
	// in insertion order. Because the mailbox is ordered, the reply also
	// acts as a barrier for everything enqueued before it.
	Membership struct {
		Reply chan []ParticipantID
	}
)

// RoomMessage is the closed set of messages a coordinator processes.
type RoomMessage interface{ roomMessage() }

func (Connect) roomMessage()    {}
func (Disconnect) roomMessage() {}
func (Relay) roomMessage()      {}
func (Membership) roomMessage() {}

// RoomStatus is the occupancy view served by the API.
type RoomStatus struct {
	Room         string          `json:"room"`
	Participants []ParticipantID `json:"participants"`
}

// ErrWireFull is returned when a session's outbound queue has no capacity.
// Deliveries are best-effort; the caller logs and moves on.
var ErrWireFull = errors.New("session wire is full")

// Wire is the addressable handle to a session: the coordinator delivers
// events through TX, the transport sender drains it. TX is never closed;
// a dead session simply stops draining and later deliveries fail with
// ErrWireFull.
type Wire struct {
	ID ParticipantID
	TX chan SessionEvent
}

func NewWire(id ParticipantID, buffer int) *Wire {
	return &Wire{
		ID: id,
		TX: make(chan SessionEvent, buffer),
	}
}

// TrySend enqueues an event without blocking.
func (w *Wire) TrySend(ev SessionEvent) error {
	select {
	case w.TX <- ev:
		return nil
	default:
		return ErrWireFull
	}
}
