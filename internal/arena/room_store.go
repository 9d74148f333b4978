// internal/arena/room_store.go
package arena

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the in-memory registry of live rooms plus the explicit
// occupant-to-room index. The index is the single source of truth for
// "is this player in a match right now"; it is updated atomically with
// room insertion and removal under one mutex.
type Store struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*Room
	byPlayer map[uuid.UUID]uuid.UUID
}

// NewStore returns an empty room store.
func NewStore() *Store {
	return &Store{
		rooms:    make(map[uuid.UUID]*Room),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
	}
}

// Add registers a room and indexes both occupants. Both slots are
// reserved from the moment of creation, invitation rooms included.
func (s *Store) Add(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
	for _, p := range r.Players() {
		s.byPlayer[p.ID] = r.ID
	}
}

// Get returns the room by id.
func (s *Store) Get(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// RoomFor returns the live room a player currently occupies, if any.
func (s *Store) RoomFor(player uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[player]
	if !ok {
		return nil, false
	}
	r, ok := s.rooms[id]
	return r, ok
}

// Remove drops the room and both occupant index entries. Called from the
// room's terminal callback before any persistence work, so occupants can
// enqueue again immediately.
func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return
	}
	delete(s.rooms, id)
	for _, p := range r.Players() {
		if s.byPlayer[p.ID] == id {
			delete(s.byPlayer, p.ID)
		}
	}
}

// Count returns the number of live rooms.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
