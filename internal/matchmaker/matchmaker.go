// internal/matchmaker/matchmaker.go
package matchmaker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rallyline/rally/internal/arena"
)

// RoomFactory builds and launches a room for a freshly matched pair. The
// server wires it to arena.NewRoom plus store registration and the
// lifecycle callback; tests substitute something smaller.
type RoomFactory func(mode arena.Mode, p0, p1 arena.PlayerRef, mods []arena.Modifier) *arena.Room

// Request is one pending match request. Outbox is where room events for
// this player will be delivered once paired.
type Request struct {
	Player       arena.PlayerRef
	Mode         arena.Mode
	Modifiers    []string
	InviteeLogin string
	Outbox       chan<- arena.Event

	queuedAt time.Time
}

// queued wraps a request inside a partition's FIFO.
type queued struct {
	req Request
}

// Matchmaker owns the FIFO queues, partitioned by mode and modifier
// selection. Pair-and-create is atomic: the queue mutex is held across
// partner removal and room creation, so a player can never be claimed by
// two pairings or end up both queued and in a room.
type Matchmaker struct {
	mu     sync.Mutex
	queues map[string][]*queued

	rooms       *arena.Store
	registry    *arena.Registry
	newRoom     RoomFactory
	identity    Identity
	records     RecordStore
	eligibility Eligibility
	log         *logrus.Entry
}

// New builds a matchmaker over the given collaborators.
func New(rooms *arena.Store, registry *arena.Registry, factory RoomFactory, identity Identity, records RecordStore, eligibility Eligibility, logger *logrus.Logger) *Matchmaker {
	return &Matchmaker{
		queues:      make(map[string][]*queued),
		rooms:       rooms,
		registry:    registry,
		newRoom:     factory,
		identity:    identity,
		records:     records,
		eligibility: eligibility,
		log:         logger.WithField("component", "matchmaker"),
	}
}

// partitionKey canonicalizes mode plus modifier selection so requests
// with the same modifiers in a different order land in the same queue.
func partitionKey(mode arena.Mode, mods []string) string {
	ids := append([]string(nil), mods...)
	sort.Strings(ids)
	return string(mode) + "|" + strings.Join(ids, ",")
}

// Enqueue registers a match request. It returns the room when the request
// paired immediately (queue partner found, or an invitation room was
// created); a nil room with nil error means the player is waiting in the
// queue.
func (m *Matchmaker) Enqueue(ctx context.Context, req Request) (*arena.Room, error) {
	if !req.Mode.Valid() {
		return nil, ErrInvalidMode
	}
	req.queuedAt = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isQueuedLocked(req.Player.ID) {
		return nil, ErrAlreadyQueued
	}
	if err := m.checkNotInMatch(ctx, req.Player.ID); err != nil {
		return nil, err
	}

	if req.Mode == arena.ModeInvitation {
		return m.enqueueInviteLocked(ctx, req)
	}

	key := partitionKey(req.Mode, req.Modifiers)
	queue := m.queues[key]

	// Oldest request first; skip partners the eligibility check refuses.
	for i, cand := range queue {
		ok, err := m.eligibility.CanPlay(ctx, cand.req.Player.ID, req.Player.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		m.queues[key] = append(queue[:i:i], queue[i+1:]...)
		return m.createRoomLocked(ctx, req.Mode, cand.req, req)
	}

	m.queues[key] = append(queue, &queued{req: req})
	m.log.WithFields(logrus.Fields{
		"player": req.Player.ID,
		"queue":  key,
	}).Info("request queued")
	return nil, nil
}

// enqueueInviteLocked creates an invitation room with both slots reserved
// immediately. The invitee plays by connecting and joining; their session
// is redirected into the reserved room.
func (m *Matchmaker) enqueueInviteLocked(ctx context.Context, req Request) (*arena.Room, error) {
	invitee, err := m.identity.Resolve(ctx, req.InviteeLogin)
	if err != nil {
		return nil, ErrNotFound
	}
	if invitee.ID == req.Player.ID {
		return nil, ErrInviteeUnavailable
	}
	if m.isQueuedLocked(invitee.ID) {
		return nil, ErrInviteeUnavailable
	}
	if _, busy := m.rooms.RoomFor(invitee.ID); busy {
		return nil, ErrInviteeUnavailable
	}
	ok, err := m.eligibility.CanPlay(ctx, req.Player.ID, invitee.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEligible
	}

	partner := Request{Player: invitee, Mode: req.Mode, Modifiers: req.Modifiers}
	return m.createRoomLocked(ctx, arena.ModeInvitation, req, partner)
}

// createRoomLocked builds the room, persists the match row and attaches
// any request that carries an outbox. Called with the queue mutex held,
// which is what makes pair-and-create atomic.
func (m *Matchmaker) createRoomLocked(ctx context.Context, mode arena.Mode, a, b Request) (*arena.Room, error) {
	mods := m.registry.Resolve(a.Modifiers)
	room := m.newRoom(mode, a.Player, b.Player, mods)

	if err := m.records.CreateMatch(ctx, room.ID, mode, room.Players()); err != nil {
		m.log.WithField("room", room.ID).WithError(err).Warn("match row insert failed")
	}

	for _, req := range []Request{a, b} {
		if req.Outbox == nil {
			continue
		}
		if err := room.Attach(req.Player.ID, req.Outbox); err != nil {
			m.log.WithFields(logrus.Fields{
				"room":   room.ID,
				"player": req.Player.ID,
			}).WithError(err).Warn("attach after pairing failed")
		}
	}

	m.log.WithFields(logrus.Fields{
		"room":    room.ID,
		"mode":    mode,
		"players": room.Players(),
	}).Info("room created")
	return room, nil
}

// Cancel withdraws the player's pending request.
func (m *Matchmaker) Cancel(player uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeLocked(player) {
		m.log.WithField("player", player).Info("request canceled")
		return nil
	}
	return ErrNotQueued
}

// CancelAll removes any pending request for the player without erroring.
// Called when a session dies, so a dead connection never occupies a
// queue slot.
func (m *Matchmaker) CancelAll(player uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(player)
}

// ExpireStale evicts requests older than ttl and returns them so the
// caller can notify the waiting sessions.
func (m *Matchmaker) ExpireStale(ttl time.Duration) []Request {
	if ttl <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []Request
	for key, queue := range m.queues {
		kept := queue[:0]
		for _, q := range queue {
			if q.req.queuedAt.Before(cutoff) {
				expired = append(expired, q.req)
			} else {
				kept = append(kept, q)
			}
		}
		if len(kept) == 0 {
			delete(m.queues, key)
		} else {
			m.queues[key] = kept
		}
	}
	for _, req := range expired {
		m.log.WithField("player", req.Player.ID).Info("request expired")
	}
	return expired
}

// QueueDepth reports how many requests wait in the given partition.
func (m *Matchmaker) QueueDepth(mode arena.Mode, mods []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[partitionKey(mode, mods)])
}

func (m *Matchmaker) isQueuedLocked(player uuid.UUID) bool {
	for _, queue := range m.queues {
		for _, q := range queue {
			if q.req.Player.ID == player {
				return true
			}
		}
	}
	return false
}

func (m *Matchmaker) removeLocked(player uuid.UUID) bool {
	for key, queue := range m.queues {
		for i, q := range queue {
			if q.req.Player.ID == player {
				m.queues[key] = append(queue[:i:i], queue[i+1:]...)
				if len(m.queues[key]) == 0 {
					delete(m.queues, key)
				}
				return true
			}
		}
	}
	return false
}

// checkNotInMatch consults both the live room index and the persisted
// record store; the latter covers a player whose room lives on another
// process generation.
func (m *Matchmaker) checkNotInMatch(ctx context.Context, player uuid.UUID) error {
	if _, busy := m.rooms.RoomFor(player); busy {
		return ErrAlreadyInMatch
	}
	if m.records == nil {
		return nil
	}
	if _, active, err := m.records.ActiveMatchFor(ctx, player); err == nil && active {
		return ErrAlreadyInMatch
	}
	return nil
}
