// Package codec implements the wire formats exchanged with clients.
//
// Inbound data frame:  [flag: 1 byte][payload]        flag != 0 => key frame
// Outbound relay frame: [sender id: W bytes LE][flag: 1 byte][payload]
// Control message: JSON {"action":"connect"|"disconnect","id":N}
//
// The id width W is configurable to stay compatible with older clients that
// read 2-byte ids; new deployments use the 4-byte default.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vchub/relay/model"
)

const defaultIDWidth = 4

var (
	ErrEmptyFrame = errors.New("empty frame")
	ErrShortFrame = errors.New("frame shorter than header")
)

type Codec struct {
	idWidth int
}

type Option func(*Codec)

// WithIDWidth sets the sender-id width of relay frames in bytes (1..8).
func WithIDWidth(w int) Option {
	return func(c *Codec) {
		c.idWidth = w
	}
}

func New(opts ...Option) (Codec, error) {
	c := Codec{idWidth: defaultIDWidth}
	for _, opt := range opts {
		opt(&c)
	}
	if c.idWidth < 1 || c.idWidth > 8 {
		return Codec{}, fmt.Errorf("invalid id width %d", c.idWidth)
	}
	return c, nil
}

// DecodeData parses an inbound binary frame into a chunk. An empty frame is
// a protocol error: the session must close the connection, not forward it.
func (c Codec) DecodeData(frame []byte) (model.VideoChunk, error) {
	if len(frame) == 0 {
		return model.VideoChunk{}, ErrEmptyFrame
	}
	return model.VideoChunk{
		KeyFrame: frame[0] != 0,
		Payload:  frame[1:],
	}, nil
}

// EncodeRelay builds the outbound relay frame for a chunk from sender id.
func (c Codec) EncodeRelay(id model.ParticipantID, chunk model.VideoChunk) []byte {
	var idb [8]byte
	binary.LittleEndian.PutUint64(idb[:], uint64(id))

	buf := make([]byte, 0, c.idWidth+1+len(chunk.Payload))
	buf = append(buf, idb[:c.idWidth]...)
	if chunk.KeyFrame {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return append(buf, chunk.Payload...)
}

// DecodeRelay is the inverse of EncodeRelay.
func (c Codec) DecodeRelay(frame []byte) (model.ParticipantID, model.VideoChunk, error) {
	if len(frame) < c.idWidth+1 {
		return 0, model.VideoChunk{}, ErrShortFrame
	}
	var idb [8]byte
	copy(idb[:], frame[:c.idWidth])
	id := model.ParticipantID(binary.LittleEndian.Uint64(idb[:]))
	return id, model.VideoChunk{
		KeyFrame: frame[c.idWidth] != 0,
		Payload:  frame[c.idWidth+1:],
	}, nil
}

// Control is the structured text message announcing membership changes.
type Control struct {
	Action string              `json:"action"`
	ID     model.ParticipantID `json:"id"`
}

func (c Codec) EncodeControl(action string, id model.ParticipantID) ([]byte, error) {
	return json.Marshal(Control{Action: action, ID: id})
}

func (c Codec) DecodeControl(b []byte) (Control, error) {
	var ctl Control
	if err := json.Unmarshal(b, &ctl); err != nil {
		return Control{}, err
	}
	return ctl, nil
}
