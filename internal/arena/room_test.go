// internal/arena/room_test.go
package arena

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyline/rally/internal/config"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func roomTestEngine() config.Engine {
	cfg := config.DefaultEngine()
	cfg.TickRate = 100 // 10ms ticks keep the tests fast
	cfg.GracePeriod = 80 * time.Millisecond
	cfg.QueueTTL = time.Minute
	return cfg
}

// resultCapture records the terminal callback.
type resultCapture struct {
	mu  sync.Mutex
	res *Result
}

func (rc *resultCapture) onEnd(res Result) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.res = &Result{}
	*rc.res = res
}

func (rc *resultCapture) get() *Result {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.res
}

// drain keeps an outbox from filling up while remembering every event.
type eventSink struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
	done   chan struct{}
}

func newEventSink() *eventSink {
	s := &eventSink{ch: make(chan Event, 256), done: make(chan struct{})}
	go func() {
		for {
			select {
			case ev := <-s.ch:
				s.mu.Lock()
				s.events = append(s.events, ev)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
	return s
}

func (s *eventSink) stop() { close(s.done) }

func (s *eventSink) byType(t EventType) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func setupTestRoom(t *testing.T, cfg config.Engine, mode Mode) (*Room, [2]PlayerRef, [2]*eventSink, *resultCapture) {
	t.Helper()
	p0 := PlayerRef{ID: uuid.New(), Login: "alice"}
	p1 := PlayerRef{ID: uuid.New(), Login: "bob"}
	rc := &resultCapture{}
	room := NewRoom(cfg, mode, p0, p1, nil, 42, testLogger(), rc.onEnd)
	go room.Run()

	s0, s1 := newEventSink(), newEventSink()
	t.Cleanup(s0.stop)
	t.Cleanup(s1.stop)
	return room, [2]PlayerRef{p0, p1}, [2]*eventSink{s0, s1}, rc
}

func TestRoomStartsWhenBothAttach(t *testing.T) {
	room, players, sinks, _ := setupTestRoom(t, roomTestEngine(), ModeCasual)

	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))

	status, _, err := room.State()
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, status, "one occupant is not enough to start")

	require.NoError(t, room.Attach(players[1].ID, sinks[1].ch))

	require.Eventually(t, func() bool {
		status, _, err := room.State()
		return err == nil && status == StatusOngoing
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(sinks[0].byType(EventPlay)) > 0 && len(sinks[1].byType(EventPlay)) > 0
	}, time.Second, 5*time.Millisecond, "both occupants get a play event")

	room.Forfeit(players[0].ID)
	<-room.Done()
}

func TestRoomRejectsStrangers(t *testing.T) {
	room, players, sinks, _ := setupTestRoom(t, roomTestEngine(), ModeCasual)

	stranger := newEventSink()
	defer stranger.stop()
	err := room.Attach(uuid.New(), stranger.ch)
	assert.ErrorIs(t, err, ErrNotOccupant)

	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	room.Forfeit(players[0].ID)
	<-room.Done()
}

func TestForfeitAwardsOpponent(t *testing.T) {
	room, players, sinks, rc := setupTestRoom(t, roomTestEngine(), ModeCasual)
	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	require.NoError(t, room.Attach(players[1].ID, sinks[1].ch))

	room.Forfeit(players[0].ID)

	select {
	case <-room.Done():
	case <-time.After(time.Second):
		t.Fatal("room did not tear down after forfeit")
	}

	res := rc.get()
	require.NotNil(t, res)
	assert.Equal(t, StatusAbandoned, res.Status)
	assert.True(t, res.Forfeit)
	assert.Equal(t, players[1].ID, res.Winner)

	require.Eventually(t, func() bool {
		return len(sinks[1].byType(EventGameOver)) == 1
	}, time.Second, 5*time.Millisecond, "game_over is delivered exactly once")
}

func TestReconnectWithinGraceResumesRoom(t *testing.T) {
	room, players, sinks, _ := setupTestRoom(t, roomTestEngine(), ModeCasual)
	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	require.NoError(t, room.Attach(players[1].ID, sinks[1].ch))

	require.Eventually(t, func() bool {
		status, _, err := room.State()
		return err == nil && status == StatusOngoing
	}, time.Second, 5*time.Millisecond)

	room.Detach(players[1].ID)
	time.Sleep(20 * time.Millisecond) // well inside the 80ms grace

	fresh := newEventSink()
	defer fresh.stop()
	require.NoError(t, room.Attach(players[1].ID, fresh.ch))

	status, _, err := room.State()
	require.NoError(t, err)
	assert.Equal(t, StatusOngoing, status, "reconnect must not reset the match")

	require.Eventually(t, func() bool {
		return len(fresh.byType(EventPlay)) > 0
	}, time.Second, 5*time.Millisecond, "reconnect gets a resync play event")

	room.Forfeit(players[0].ID)
	<-room.Done()
}

func TestGraceExpiryForfeitsDisconnected(t *testing.T) {
	room, players, sinks, rc := setupTestRoom(t, roomTestEngine(), ModeCasual)
	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	require.NoError(t, room.Attach(players[1].ID, sinks[1].ch))

	require.Eventually(t, func() bool {
		status, _, err := room.State()
		return err == nil && status == StatusOngoing
	}, time.Second, 5*time.Millisecond)

	room.Detach(players[1].ID)

	select {
	case <-room.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room did not abandon after grace expiry")
	}

	res := rc.get()
	require.NotNil(t, res)
	assert.Equal(t, StatusAbandoned, res.Status)
	assert.Equal(t, players[0].ID, res.Winner, "the connected opponent wins")
}

func TestInputMovesOnlyOwnPaddle(t *testing.T) {
	room, players, sinks, _ := setupTestRoom(t, roomTestEngine(), ModeCasual)
	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	require.NoError(t, room.Attach(players[1].ID, sinks[1].ch))

	require.Eventually(t, func() bool {
		status, _, err := room.State()
		return err == nil && status == StatusOngoing
	}, time.Second, 5*time.Millisecond)

	_, before, err := room.State()
	require.NoError(t, err)

	room.Input(players[0].ID, 40)

	require.Eventually(t, func() bool {
		_, snap, err := room.State()
		return err == nil && snap.Paddles[0] == 40
	}, time.Second, 5*time.Millisecond)

	_, after, err := room.State()
	require.NoError(t, err)
	assert.Equal(t, before.Paddles[1], after.Paddles[1], "opponent paddle must not move")

	room.Forfeit(players[0].ID)
	<-room.Done()
}

func TestSnapshotTicksNeverDecrease(t *testing.T) {
	room, players, sinks, _ := setupTestRoom(t, roomTestEngine(), ModeCasual)
	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	require.NoError(t, room.Attach(players[1].ID, sinks[1].ch))

	require.Eventually(t, func() bool {
		return len(sinks[0].byType(EventState)) >= 10
	}, 2*time.Second, 5*time.Millisecond)

	room.Forfeit(players[0].ID)
	<-room.Done()

	states := sinks[0].byType(EventState)
	var last uint64
	for i, ev := range states {
		require.NotNil(t, ev.Snapshot)
		if i > 0 {
			assert.GreaterOrEqual(t, ev.Snapshot.Tick, last)
		}
		last = ev.Snapshot.Tick
	}
}

func TestInvitationRoomWaitsForInvitee(t *testing.T) {
	room, players, sinks, _ := setupTestRoom(t, roomTestEngine(), ModeInvitation)

	status, _, err := room.State()
	require.NoError(t, err)
	assert.Equal(t, StatusInvitation, status)

	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))

	status, _, err = room.State()
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, status, "inviter alone moves the room to waiting")

	require.NoError(t, room.Attach(players[1].ID, sinks[1].ch))
	require.Eventually(t, func() bool {
		status, _, err := room.State()
		return err == nil && status == StatusOngoing
	}, time.Second, 5*time.Millisecond)

	room.Forfeit(players[0].ID)
	<-room.Done()
}

func TestUnacceptedInvitationExpires(t *testing.T) {
	cfg := roomTestEngine()
	cfg.QueueTTL = 50 * time.Millisecond
	room, players, sinks, rc := setupTestRoom(t, cfg, ModeInvitation)

	// The inviter joining must not keep the offer alive forever.
	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))

	select {
	case <-room.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room did not expire after the invitation TTL")
	}

	res := rc.get()
	require.NotNil(t, res)
	assert.Equal(t, StatusAbandoned, res.Status)
	assert.Equal(t, uuid.Nil, res.Winner, "an expired invitation has no winner")
}

func TestAcceptedInvitationOutlivesQueueTTL(t *testing.T) {
	cfg := roomTestEngine()
	cfg.QueueTTL = 50 * time.Millisecond
	room, players, sinks, _ := setupTestRoom(t, cfg, ModeInvitation)
	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	require.NoError(t, room.Attach(players[1].ID, sinks[1].ch))

	require.Eventually(t, func() bool {
		status, _, err := room.State()
		return err == nil && status == StatusOngoing
	}, time.Second, 5*time.Millisecond)

	time.Sleep(150 * time.Millisecond) // well past the TTL

	status, _, err := room.State()
	require.NoError(t, err)
	assert.Equal(t, StatusOngoing, status, "accepted invitations are not subject to the queue TTL")

	room.Forfeit(players[0].ID)
	<-room.Done()
}

func TestRoomClosedAfterTerminal(t *testing.T) {
	room, players, sinks, _ := setupTestRoom(t, roomTestEngine(), ModeCasual)
	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	room.Forfeit(players[0].ID)
	<-room.Done()

	err := room.Attach(players[0].ID, sinks[0].ch)
	assert.ErrorIs(t, err, ErrRoomClosed)

	_, _, err = room.State()
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestStoreIndexesOccupantsAtomically(t *testing.T) {
	store := NewStore()
	room, players, sinks, _ := setupTestRoom(t, roomTestEngine(), ModeCasual)
	store.Add(room)

	got, ok := store.RoomFor(players[0].ID)
	require.True(t, ok)
	assert.Equal(t, room.ID, got.ID)
	got, ok = store.RoomFor(players[1].ID)
	require.True(t, ok)
	assert.Equal(t, room.ID, got.ID)
	assert.Equal(t, 1, store.Count())

	store.Remove(room.ID)
	_, ok = store.RoomFor(players[0].ID)
	assert.False(t, ok)
	_, ok = store.RoomFor(players[1].ID)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Count())

	require.NoError(t, room.Attach(players[0].ID, sinks[0].ch))
	room.Forfeit(players[0].ID)
	<-room.Done()
}
