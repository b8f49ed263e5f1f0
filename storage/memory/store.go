// Package memory holds the in-process room table.
package memory

import (
	"errors"
	"sync"

	"github.com/vchub/relay/coordinator"
)

var ErrRoomNotFound = errors.New("room is not found")

// CreateFunc builds and starts a coordinator for a named room. The table
// never starts goroutines itself; the factory owns the room lifecycle.
type CreateFunc func(name string) *coordinator.Coordinator

// Table maps room names to their coordinators. The fixed set provisioned at
// startup is never mutated concurrently; lazy creation, when enabled, is
// mutex-guarded.
type Table struct {
	mx     *sync.Mutex
	create CreateFunc
	rooms  map[string]*coordinator.Coordinator
	order  []string
	lazy   bool
}

type Option func(*Table)

// WithLazyCreate lets Get provision unknown rooms on first use instead of
// returning ErrRoomNotFound.
func WithLazyCreate() Option {
	return func(t *Table) {
		t.lazy = true
	}
}

func NewTable(create CreateFunc, opts ...Option) *Table {
	t := &Table{
		mx:     &sync.Mutex{},
		create: create,
		rooms:  make(map[string]*coordinator.Coordinator),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Provision creates coordinators for the given room names. Names already
// present are left untouched.
func (t *Table) Provision(names ...string) {
	t.mx.Lock()
	defer t.mx.Unlock()
	for _, name := range names {
		if _, ok := t.rooms[name]; ok {
			continue
		}
		t.rooms[name] = t.create(name)
		t.order = append(t.order, name)
	}
}

func (t *Table) Get(name string) (*coordinator.Coordinator, error) {
	t.mx.Lock()
	defer t.mx.Unlock()

	room, ok := t.rooms[name]
	if ok {
		return room, nil
	}
	if !t.lazy {
		return nil, ErrRoomNotFound
	}
	room = t.create(name)
	t.rooms[name] = room
	t.order = append(t.order, name)
	return room, nil
}

// Rooms lists room names in provisioning order.
func (t *Table) Rooms() []string {
	t.mx.Lock()
	defer t.mx.Unlock()
	names := make([]string, len(t.order))
	copy(names, t.order)
	return names
}
