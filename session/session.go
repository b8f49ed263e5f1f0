// Package session holds the per-connection state machine sitting between the
// transport and a room coordinator.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vchub/relay/codec"
	"github.com/vchub/relay/metrics"
	"github.com/vchub/relay/model"
)

// Session states. Closed is terminal.
const (
	StateConnecting int32 = iota
	StateActive
	StateClosed
)

var (
	ErrNotActive = errors.New("session is not active")

	// ErrProtocol wraps malformed-frame errors. The transport must close
	// the connection on it; nothing reaches the coordinator.
	ErrProtocol = errors.New("protocol error")
)

// Room is the coordinator surface a session needs.
type Room interface {
	Name() string
	TrySend(model.RoomMessage) error
}

type Session struct {
	id     model.ParticipantID
	room   Room
	wire   *model.Wire
	codec  codec.Codec
	logger zerolog.Logger
	mtr    *metrics.Metrics

	state     atomic.Int32
	closeOnce sync.Once
}

func New(id model.ParticipantID, room Room, wire *model.Wire, c codec.Codec, logger *zerolog.Logger, mtr *metrics.Metrics) *Session {
	return &Session{
		id:     id,
		room:   room,
		wire:   wire,
		codec:  c,
		mtr:    mtr,
		logger: logger.With().
			Str("component", "session").
			Str("room", room.Name()).
			Uint32("id", uint32(id)).
			Logger(),
	}
}

func (s *Session) ID() model.ParticipantID {
	return s.id
}

// Events exposes the queue the coordinator delivers into. The transport
// sender drains it in order.
func (s *Session) Events() <-chan model.SessionEvent {
	return s.wire.TX
}

// Activate registers the session with its room. Registration is best-effort:
// if the room mailbox is full the failure is logged and the session stays
// up, because a missing join notice beats no room at all.
func (s *Session) Activate() {
	if !s.state.CompareAndSwap(StateConnecting, StateActive) {
		return
	}
	if err := s.room.TrySend(model.Connect{ID: s.id, Wire: s.wire}); err != nil {
		s.mtr.MessageDropped(s.room.Name(), "mailbox")
		s.logger.Error().Err(err).Msg("failed to register with room")
	}
}

// HandleFrame decodes one inbound binary frame and forwards it to the room.
// A decode failure is a protocol error: the returned error tells the
// transport to close the connection, and the frame is not forwarded.
func (s *Session) HandleFrame(frame []byte) error {
	if s.state.Load() != StateActive {
		return ErrNotActive
	}
	chunk, err := s.codec.DecodeData(frame)
	if err != nil {
		s.mtr.ProtocolError(s.room.Name())
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if err = s.room.TrySend(model.Relay{From: s.id, Chunk: chunk}); err != nil {
		// Overloaded room: drop the frame, keep the session.
		s.mtr.MessageDropped(s.room.Name(), "mailbox")
		s.logger.Warn().Err(err).Msg("frame dropped")
	}
	return nil
}

// EncodeEvent turns a coordinator event into an outbound frame. text reports
// whether it must be written as a text (control) or binary (relay) message.
func (s *Session) EncodeEvent(ev model.SessionEvent) (data []byte, text bool, err error) {
	switch ev.Type {
	case model.EventVideo:
		return s.codec.EncodeRelay(ev.From, ev.Chunk), false, nil
	case model.EventPeerJoined, model.EventPeerLeft:
		data, err = s.codec.EncodeControl(ev.Type, ev.From)
		return data, true, err
	}
	return nil, false, fmt.Errorf("unknown event type %q", ev.Type)
}

// Close transitions the session to Closed and deregisters it from the room
// exactly once. Safe to call from any goroutine and any number of times;
// explicit close frames, transport errors and external shutdown all funnel
// here.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(StateClosed)
		if err := s.room.TrySend(model.Disconnect{ID: s.id}); err != nil {
			s.mtr.MessageDropped(s.room.Name(), "mailbox")
			s.logger.Error().Err(err).Msg("failed to deregister from room")
		}
		s.logger.Debug().Msg("session closed")
	})
}

// State returns the current lifecycle state.
func (s *Session) State() int32 {
	return s.state.Load()
}
