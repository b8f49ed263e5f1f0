// Package coordinator implements the per-room authority for membership and
// broadcast. All registry access happens on the single Run goroutine; the
// mailbox is the only synchronization point.
package coordinator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vchub/relay/metrics"
	"github.com/vchub/relay/model"
)

const defaultMailboxSize = 256

var ErrMailboxFull = errors.New("room mailbox is full")

type Coordinator struct {
	name     string
	logger   zerolog.Logger
	inbox    chan model.RoomMessage
	announce bool
	metrics  *metrics.Metrics

	// Owned exclusively by Run. The slice keeps insertion order so fan-out
	// is deterministic under replay.
	registry map[model.ParticipantID]*model.Wire
	order    []model.ParticipantID
}

type Option func(*Coordinator)

// WithAnnouncements controls whether join/leave notifications are emitted.
// Some deployments relay video only.
func WithAnnouncements(on bool) Option {
	return func(c *Coordinator) {
		c.announce = on
	}
}

func WithMailboxSize(n int) Option {
	return func(c *Coordinator) {
		c.inbox = make(chan model.RoomMessage, n)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func New(name string, logger *zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		name:     name,
		logger:   logger.With().Str("component", "coordinator").Str("room", name).Logger(),
		inbox:    make(chan model.RoomMessage, defaultMailboxSize),
		announce: true,
		registry: make(map[model.ParticipantID]*model.Wire),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Name() string {
	return c.name
}

// TrySend enqueues a message without blocking. Mailbox order is processing
// order. A full mailbox drops the message; the hub never applies
// backpressure to live media.
func (c *Coordinator) TrySend(msg model.RoomMessage) error {
	select {
	case c.inbox <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

// Send enqueues a message, waiting for mailbox capacity.
func (c *Coordinator) Send(ctx context.Context, msg model.RoomMessage) error {
	select {
	case c.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Members returns the registered ids in insertion order. The snapshot is
// taken on the Run goroutine, so every message enqueued before the call is
// reflected in the result.
func (c *Coordinator) Members(ctx context.Context) ([]model.ParticipantID, error) {
	reply := make(chan []model.ParticipantID, 1)
	if err := c.Send(ctx, model.Membership{Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case ids := <-reply:
		return ids, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run consumes the mailbox until ctx is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Debug().Msg("room started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Msg("room stopped")
			return
		case msg := <-c.inbox:
			c.handle(msg)
		}
	}
}

func (c *Coordinator) handle(msg model.RoomMessage) {
	switch m := msg.(type) {
	case model.Connect:
		c.handleConnect(m)
	case model.Disconnect:
		c.handleDisconnect(m)
	case model.Relay:
		c.handleRelay(m)
	case model.Membership:
		m.Reply <- c.snapshot()
	}
}

func (c *Coordinator) handleConnect(m model.Connect) {
	existing := c.snapshot()

	if _, dup := c.registry[m.ID]; dup {
		// Duplicate id: last write wins, the previous session is orphaned.
		// Its registry slot keeps the original insertion position.
		c.logger.Warn().Uint32("id", uint32(m.ID)).Msg("duplicate connect, replacing handle")
	} else {
		c.order = append(c.order, m.ID)
		c.metrics.SessionRegistered(c.name)
	}
	c.registry[m.ID] = m.Wire

	c.logger.Info().Uint32("id", uint32(m.ID)).Msg("participant connected")

	if !c.announce {
		return
	}
	c.broadcastExcept(m.ID, model.SessionEvent{Type: model.EventPeerJoined, From: m.ID})
	// Backfill: tell the newcomer who is already here.
	for _, id := range existing {
		c.deliver(m.ID, m.Wire, model.SessionEvent{Type: model.EventPeerJoined, From: id})
	}
}

func (c *Coordinator) handleDisconnect(m model.Disconnect) {
	if _, ok := c.registry[m.ID]; !ok {
		// Late or duplicate disconnect.
		return
	}
	delete(c.registry, m.ID)
	for i, id := range c.order {
		if id == m.ID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.metrics.SessionDeregistered(c.name)
	c.logger.Info().Uint32("id", uint32(m.ID)).Msg("participant disconnected")

	if c.announce {
		c.broadcastExcept(m.ID, model.SessionEvent{Type: model.EventPeerLeft, From: m.ID})
	}
}

func (c *Coordinator) handleRelay(m model.Relay) {
	delivered := c.broadcastExcept(m.From, model.SessionEvent{
		Type:  model.EventVideo,
		From:  m.From,
		Chunk: m.Chunk,
	})
	for i := 0; i < delivered; i++ {
		c.metrics.FrameRelayed(c.name)
	}
}

// broadcastExcept delivers an event to every registered session except the
// originator, in insertion order. Failed deliveries are skipped, not
// retried: stale data is worse than missing data for live video.
func (c *Coordinator) broadcastExcept(except model.ParticipantID, ev model.SessionEvent) int {
	var delivered int
	for _, id := range c.order {
		if id == except {
			continue
		}
		if c.deliver(id, c.registry[id], ev) {
			delivered++
		}
	}
	return delivered
}

func (c *Coordinator) deliver(id model.ParticipantID, wire *model.Wire, ev model.SessionEvent) bool {
	if err := wire.TrySend(ev); err != nil {
		c.metrics.MessageDropped(c.name, "wire")
		c.logger.Warn().
			Err(err).
			Uint32("dst", uint32(id)).
			Str("type", ev.Type).
			Msg("delivery failed, skipping recipient")
		return false
	}
	return true
}

func (c *Coordinator) snapshot() []model.ParticipantID {
	ids := make([]model.ParticipantID, len(c.order))
	copy(ids, c.order)
	return ids
}
