// Package identity mints participant ids for newly accepted connections.
package identity

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/vchub/relay/model"
)

// Strategy names accepted on the command line.
const (
	StrategyMonotonic = "monotonic"
	StrategyAddrHash  = "addr"
)

// Generator produces a participant id for a connection. Implementations must
// be safe for concurrent use from any number of accepting goroutines and
// never fail.
type Generator interface {
	NextID(remoteAddr string) model.ParticipantID
}

// FromStrategy resolves a strategy name to a generator.
func FromStrategy(name string) (Generator, error) {
	switch name {
	case StrategyMonotonic:
		return NewMonotonic(), nil
	case StrategyAddrHash:
		return AddrHash{}, nil
	}
	return nil, fmt.Errorf("unknown id strategy %q", name)
}

// Monotonic hands out strictly increasing ids starting at 1. The mutex is
// held only for the increment.
type Monotonic struct {
	mx   sync.Mutex
	next uint32
}

func NewMonotonic() *Monotonic {
	return &Monotonic{next: 1}
}

func (g *Monotonic) NextID(_ string) model.ParticipantID {
	g.mx.Lock()
	id := g.next
	g.next++
	g.mx.Unlock()
	return model.ParticipantID(id)
}

// AddrHash derives the id from the peer address. Cheap and stateless, but
// collisions are possible; use only where best-effort uniqueness suffices.
type AddrHash struct{}

func (AddrHash) NextID(remoteAddr string) model.ParticipantID {
	h := fnv.New32a()
	_, _ = h.Write([]byte(remoteAddr))
	return model.ParticipantID(h.Sum32())
}
