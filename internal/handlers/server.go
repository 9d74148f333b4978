// internal/handlers/server.go
package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rallyline/rally/internal/arena"
	"github.com/rallyline/rally/internal/cache"
	"github.com/rallyline/rally/internal/config"
	"github.com/rallyline/rally/internal/database"
	"github.com/rallyline/rally/internal/matchmaker"
)

// Server ties the match engine together: the live room store, the
// matchmaking queues and the lifecycle plumbing (persistence, rating,
// event publishing) that runs when a room ends.
type Server struct {
	Cfg        config.Engine
	Rooms      *arena.Store
	Registry   *arena.Registry
	Matchmaker *matchmaker.Matchmaker
	Logger     *logrus.Logger

	records matchmaker.RecordStore
	publish func(ctx context.Context, rec cache.RoomLifecycleRecord) error
	seedFn  func() int64
}

// NewServer wires the production collaborators: postgres-backed identity,
// records and eligibility, plus the Redis lifecycle publisher.
func NewServer(cfg config.Engine, logger *logrus.Logger) *Server {
	s := &Server{
		Cfg:      cfg,
		Rooms:    arena.NewStore(),
		Registry: arena.NewRegistry(),
		Logger:   logger,
		records:  database.PGRecords{},
		publish:  cache.PublishRoomEvent,
		seedFn:   func() int64 { return time.Now().UnixNano() },
	}
	s.Matchmaker = matchmaker.New(
		s.Rooms, s.Registry, s.newRoom,
		database.PGIdentity{}, database.PGRecords{}, database.PGEligibility{},
		logger,
	)
	return s
}

// newRoom is the matchmaker's room factory. The room is registered and
// running before the factory returns, so both occupants can attach
// immediately.
func (s *Server) newRoom(mode arena.Mode, p0, p1 arena.PlayerRef, mods []arena.Modifier) *arena.Room {
	room := arena.NewRoom(s.Cfg, mode, p0, p1, mods, s.seedFn(), s.Logger, s.handleRoomEnd)
	s.Rooms.Add(room)
	go room.Run()

	if s.publish != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := s.publish(ctx, cache.RoomLifecycleRecord{
				RoomID:    room.ID,
				Event:     "created",
				Mode:      string(mode),
				Players:   []uuid.UUID{p0.ID, p1.ID},
				Timestamp: time.Now().Unix(),
			})
			if err != nil {
				s.Logger.WithField("room", room.ID).WithError(err).Warn("publish room created failed")
			}
		}()
	}
	return room
}

// handleRoomEnd runs on the room goroutine as its last act. The index is
// released first so both players can enqueue again right away; the slow
// work (DB writes, rating, Redis) happens off the room goroutine.
func (s *Server) handleRoomEnd(res arena.Result) {
	s.Rooms.Remove(res.RoomID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if s.records != nil {
			if err := s.records.RecordResult(ctx, res); err != nil {
				s.Logger.WithField("room", res.RoomID).WithError(err).Error("record result failed")
			}
		}

		if s.publish != nil {
			err := s.publish(ctx, cache.RoomLifecycleRecord{
				RoomID:    res.RoomID,
				Event:     res.Status.String(),
				Mode:      string(res.Mode),
				Players:   res.Players[:],
				Scores:    res.Scores[:],
				WinnerID:  res.Winner,
				Timestamp: time.Now().Unix(),
			})
			if err != nil {
				s.Logger.WithField("room", res.RoomID).WithError(err).Warn("publish room terminal failed")
			}
		}
	}()
}

// StartHousekeeping expires stale queue entries until ctx is canceled.
// Each evicted request gets a queue_expired event so the waiting client
// knows to re-join.
func (s *Server) StartHousekeeping(ctx context.Context) {
	if s.Cfg.QueueTTL <= 0 {
		return
	}
	interval := s.Cfg.QueueTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, req := range s.Matchmaker.ExpireStale(s.Cfg.QueueTTL) {
					if req.Outbox == nil {
						continue
					}
					select {
					case req.Outbox <- arena.Event{Type: arena.EventQueueExpired}:
					default:
					}
				}
			}
		}
	}()
}
