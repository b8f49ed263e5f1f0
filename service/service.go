// Package service wires id generation, the room table and sessions together
// for the transport and API servers.
package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/vchub/relay/codec"
	"github.com/vchub/relay/coordinator"
	"github.com/vchub/relay/identity"
	"github.com/vchub/relay/metrics"
	"github.com/vchub/relay/model"
	"github.com/vchub/relay/session"
)

const defaultWireBuffer = 64

var (
	ErrNoRoom = errors.New("unable to resolve room")
	ErrStatus = errors.New("unable to collect room status")
)

type (
	RoomTable interface {
		Get(name string) (*coordinator.Coordinator, error)
		Rooms() []string
	}

	Service struct {
		table      RoomTable
		ids        identity.Generator
		codec      codec.Codec
		wireBuffer int
		mtr        *metrics.Metrics
		logger     zerolog.Logger
	}

	Config struct {
		Table      RoomTable
		Identity   identity.Generator
		Codec      codec.Codec
		WireBuffer int
		Metrics    *metrics.Metrics
		Logger     *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	buf := cfg.WireBuffer
	if buf <= 0 {
		buf = defaultWireBuffer
	}
	return &Service{
		table:      cfg.Table,
		ids:        cfg.Identity,
		codec:      cfg.Codec,
		wireBuffer: buf,
		mtr:        cfg.Metrics,
		logger:     cfg.Logger.With().Str("component", "relay-service").Logger(),
	}
}

// CreateSession mints a participant id for the connection, builds a session
// bound to the named room and registers it.
func (svc *Service) CreateSession(roomName, remoteAddr string) (*session.Session, error) {
	room, err := svc.table.Get(roomName)
	if err != nil {
		return nil, errors.Join(ErrNoRoom, err)
	}

	id := svc.ids.NextID(remoteAddr)
	wire := model.NewWire(id, svc.wireBuffer)
	sess := session.New(id, room, wire, svc.codec, &svc.logger, svc.mtr)
	sess.Activate()

	svc.logger.Debug().
		Str("room", roomName).
		Uint32("id", uint32(id)).
		Msg("session created")
	return sess, nil
}

// DestroySession deregisters the session from its room. Idempotent.
func (svc *Service) DestroySession(sess *session.Session) {
	sess.Close()
}

// RoomOccupancy reports every provisioned room with its registered
// participants, in provisioning order.
func (svc *Service) RoomOccupancy(ctx context.Context) ([]model.RoomStatus, error) {
	names := svc.table.Rooms()
	statuses := make([]model.RoomStatus, 0, len(names))
	for _, name := range names {
		room, err := svc.table.Get(name)
		if err != nil {
			return nil, errors.Join(ErrStatus, err)
		}
		members, err := room.Members(ctx)
		if err != nil {
			return nil, errors.Join(ErrStatus, err)
		}
		statuses = append(statuses, model.RoomStatus{
			Room:         name,
			Participants: members,
		})
	}
	return statuses, nil
}
