// internal/arena/room.go
package arena

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rallyline/rally/internal/config"
)

var (
	// ErrRoomClosed is returned when interacting with a room that has
	// already reached a terminal state and torn down.
	ErrRoomClosed = errors.New("room closed")
	// ErrNotOccupant is returned when a player who holds no slot in the
	// room tries to attach.
	ErrNotOccupant = errors.New("player does not occupy this room")
)

// PlayerRef identifies a slot holder. Rooms only ever know identity, not
// connections; delivery goes through the occupant's outbox channel.
type PlayerRef struct {
	ID    uuid.UUID
	Login string
}

// OnEndFunc receives the terminal result exactly once. The callback must
// release the occupant-to-room mapping before doing anything slow, so
// players can immediately enqueue again.
type OnEndFunc func(Result)

type occupant struct {
	ref            PlayerRef
	outbox         chan<- Event
	connected      bool
	disconnectedAt time.Time
	pendingInput   *float64
	lastInputAt    time.Time
}

type cmdKind int

const (
	cmdAttach cmdKind = iota
	cmdDetach
	cmdInput
	cmdForfeit
	cmdQuery
)

type queryReply struct {
	status   RoomStatus
	snapshot Snapshot
}

type command struct {
	kind   cmdKind
	player uuid.UUID
	y      float64
	outbox chan<- Event
	reply  chan error
	query  chan queryReply
}

// Room owns the authoritative state of exactly one match. All mutation
// happens on the room's own goroutine (Run); external callers deliver
// input, attach/detach and forfeit through the inbox, never by touching
// fields directly, so the room needs no internal locking.
type Room struct {
	ID        uuid.UUID
	mode      Mode
	cfg       config.Engine
	modifiers []Modifier

	status    RoomStatus
	sim       *sim
	tick      uint64
	occupants [2]*occupant
	createdAt time.Time

	// inviteAccepted is set once the invitee (slot 1) attaches for the
	// first time. Until then an invitation room is still a pending offer
	// and subject to the queue TTL, even after the inviter's own attach
	// has moved the status to waiting.
	inviteAccepted bool

	winner  uuid.UUID
	forfeit bool

	inbox chan command
	done  chan struct{}
	onEnd OnEndFunc
	log   *logrus.Entry
}

// NewRoom builds a room for the two referenced players. Invitation-mode
// rooms start in StatusInvitation (slot 1 is the invitee); everything
// else starts in StatusWaiting. The seed fixes the serve angles, so a
// room is fully deterministic given its inputs.
func NewRoom(cfg config.Engine, mode Mode, p0, p1 PlayerRef, mods []Modifier, seed int64, logger *logrus.Logger, onEnd OnEndFunc) *Room {
	id := uuid.New()
	status := StatusWaiting
	if mode == ModeInvitation {
		status = StatusInvitation
	}
	r := &Room{
		ID:        id,
		mode:      mode,
		cfg:       cfg,
		modifiers: mods,
		status:    status,
		sim:       newSim(cfg, combinedEffect(mods), seed),
		createdAt: time.Now(),
		inbox:     make(chan command, 64),
		done:      make(chan struct{}),
		onEnd:     onEnd,
		log: logger.WithFields(logrus.Fields{
			"room": id,
			"mode": mode,
		}),
	}
	r.occupants[0] = &occupant{ref: p0}
	r.occupants[1] = &occupant{ref: p1}
	return r
}

// Mode returns the match mode the room was created for.
func (r *Room) Mode() Mode { return r.mode }

// Players returns both slot holders in slot order.
func (r *Room) Players() [2]PlayerRef {
	return [2]PlayerRef{r.occupants[0].ref, r.occupants[1].ref}
}

// Done is closed once the room has torn down.
func (r *Room) Done() <-chan struct{} { return r.done }

// Attach connects (or reconnects) a slot holder's outbox to the room.
// A reconnect within the grace period resumes the same room with state
// intact; the occupant receives a play event as a resync.
func (r *Room) Attach(player uuid.UUID, outbox chan<- Event) error {
	reply := make(chan error, 1)
	cmd := command{kind: cmdAttach, player: player, outbox: outbox, reply: reply}
	select {
	case r.inbox <- cmd:
	case <-r.done:
		return ErrRoomClosed
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrRoomClosed
	}
}

// Detach reports a lost connection. The room keeps simulating and starts
// the grace clock for that occupant.
func (r *Room) Detach(player uuid.UUID) {
	select {
	case r.inbox <- command{kind: cmdDetach, player: player}:
	case <-r.done:
	}
}

// Input delivers a paddle position. Best effort: if the inbox is full the
// sample is dropped, which a fixed-step loop tolerates by design since
// only the most recent input per tick is applied anyway.
func (r *Room) Input(player uuid.UUID, y float64) {
	select {
	case r.inbox <- command{kind: cmdInput, player: player, y: y}:
	case <-r.done:
	default:
	}
}

// Forfeit ends the match immediately with the opponent as winner.
func (r *Room) Forfeit(player uuid.UUID) {
	select {
	case r.inbox <- command{kind: cmdForfeit, player: player}:
	case <-r.done:
	}
}

// State returns the current status and snapshot, synchronized through the
// room goroutine.
func (r *Room) State() (RoomStatus, Snapshot, error) {
	query := make(chan queryReply, 1)
	select {
	case r.inbox <- command{kind: cmdQuery, query: query}:
	case <-r.done:
		return StatusAbandoned, Snapshot{}, ErrRoomClosed
	}
	select {
	case rep := <-query:
		return rep.status, rep.snapshot, nil
	case <-r.done:
		return StatusAbandoned, Snapshot{}, ErrRoomClosed
	}
}

// Run executes the room's tick loop until a terminal transition, then
// emits the result and tears down. Call exactly once, in its own
// goroutine.
func (r *Room) Run() {
	ticker := time.NewTicker(r.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case cmd := <-r.inbox:
			r.handleCommand(cmd)
		case <-ticker.C:
			r.handleTick()
		}
		if r.status.Terminal() {
			r.finish()
			return
		}
	}
}

func (r *Room) slotOf(player uuid.UUID) int {
	for i, o := range r.occupants {
		if o.ref.ID == player {
			return i
		}
	}
	return -1
}

func (r *Room) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdAttach:
		r.handleAttach(cmd)
	case cmdDetach:
		r.handleDetach(cmd.player)
	case cmdInput:
		r.handleInput(cmd.player, cmd.y)
	case cmdForfeit:
		r.handleForfeit(cmd.player)
	case cmdQuery:
		cmd.query <- queryReply{status: r.status, snapshot: r.snapshot()}
	}
}

func (r *Room) handleAttach(cmd command) {
	slot := r.slotOf(cmd.player)
	if slot < 0 {
		cmd.reply <- ErrNotOccupant
		return
	}
	o := r.occupants[slot]
	wasConnected := o.connected
	o.outbox = cmd.outbox
	o.connected = true
	o.disconnectedAt = time.Time{}
	if r.mode == ModeInvitation && slot == 1 {
		r.inviteAccepted = true
	}
	cmd.reply <- nil

	if wasConnected {
		r.log.WithField("player", cmd.player).Info("occupant replaced connection")
	} else {
		r.log.WithField("player", cmd.player).Info("occupant attached")
	}

	switch r.status {
	case StatusInvitation:
		if r.bothConnected() {
			r.startMatch()
		} else {
			r.status = StatusWaiting
		}
	case StatusWaiting:
		if r.bothConnected() {
			r.startMatch()
		}
	case StatusOngoing:
		// Reconnect resync: same room id, score and ball untouched.
		r.sendTo(slot, Event{Type: EventPlay, RoomID: r.ID, Slot: slot, Snapshot: r.snapshotPtr()})
	}
}

func (r *Room) handleDetach(player uuid.UUID) {
	slot := r.slotOf(player)
	if slot < 0 || !r.occupants[slot].connected {
		return
	}
	o := r.occupants[slot]
	o.connected = false
	o.outbox = nil
	o.disconnectedAt = time.Now()
	r.log.WithField("player", player).Info("occupant disconnected, grace timer started")
}

func (r *Room) handleInput(player uuid.UUID, y float64) {
	if r.status != StatusOngoing {
		return
	}
	slot := r.slotOf(player)
	if slot < 0 || !r.occupants[slot].connected {
		return
	}
	// Stored raw; validation and clamping happen when the tick applies
	// it. A malformed value is dropped there without erroring the room.
	v := y
	r.occupants[slot].pendingInput = &v
	r.occupants[slot].lastInputAt = time.Now()
}

func (r *Room) handleForfeit(player uuid.UUID) {
	slot := r.slotOf(player)
	if slot < 0 || r.status.Terminal() {
		return
	}
	r.log.WithField("player", player).Info("occupant forfeited")
	r.abandon(1 - slot)
}

func (r *Room) handleTick() {
	if r.status.Terminal() {
		return
	}

	// Invitation that was never accepted expires with the queue TTL. The
	// inviter's own attach moves the status to waiting, so this is keyed
	// on the invitee having joined, not on the status.
	if r.mode == ModeInvitation && !r.inviteAccepted && r.cfg.QueueTTL > 0 &&
		time.Since(r.createdAt) > r.cfg.QueueTTL {
		r.abandon(-1)
		return
	}

	// Grace period: a disconnect that outlives it forfeits the match.
	for slot, o := range r.occupants {
		if o.connected || o.disconnectedAt.IsZero() {
			continue
		}
		if time.Since(o.disconnectedAt) > r.cfg.GracePeriod {
			r.log.WithField("player", o.ref.ID).Info("grace period elapsed")
			winnerSlot := 1 - slot
			if !r.occupants[winnerSlot].connected {
				winnerSlot = -1
			}
			r.abandon(winnerSlot)
			return
		}
	}

	if r.status != StatusOngoing {
		return
	}

	// Apply the most recent validated input from each player. A
	// disconnected player simply stops sending input, which reads the
	// same as an idle paddle.
	for slot, o := range r.occupants {
		if o.pendingInput == nil {
			continue
		}
		if !r.sim.applyInput(slot, *o.pendingInput) {
			r.log.WithField("player", o.ref.ID).Debug("dropped invalid paddle input")
		}
		o.pendingInput = nil
	}

	r.sim.step()
	r.tick++

	if slot, done := r.sim.reachedLimit(); done {
		r.status = StatusFinished
		r.winner = r.occupants[slot].ref.ID
		return
	}

	r.broadcast(Event{Type: EventState, RoomID: r.ID, Snapshot: r.snapshotPtr()})
}

func (r *Room) bothConnected() bool {
	return r.occupants[0].connected && r.occupants[1].connected
}

func (r *Room) startMatch() {
	r.status = StatusOngoing
	r.log.Info("match started")
	snap := r.snapshotPtr()
	for slot := range r.occupants {
		r.sendTo(slot, Event{Type: EventPlay, RoomID: r.ID, Slot: slot, Snapshot: snap})
	}
}

// abandon marks the room abandoned. winnerSlot -1 means nobody wins
// (e.g. the room never got past waiting).
func (r *Room) abandon(winnerSlot int) {
	r.status = StatusAbandoned
	r.forfeit = true
	if winnerSlot >= 0 {
		r.winner = r.occupants[winnerSlot].ref.ID
	}
}

func (r *Room) snapshot() Snapshot {
	return Snapshot{
		Tick:    r.tick,
		Ball:    r.sim.ball,
		Paddles: r.sim.paddles,
		Scores:  r.sim.scores,
		Serving: r.sim.serving,
		Status:  r.status.String(),
	}
}

func (r *Room) snapshotPtr() *Snapshot {
	s := r.snapshot()
	return &s
}

func (r *Room) result() Result {
	return Result{
		RoomID:  r.ID,
		Mode:    r.mode,
		Status:  r.status,
		Players: [2]uuid.UUID{r.occupants[0].ref.ID, r.occupants[1].ref.ID},
		Logins:  [2]string{r.occupants[0].ref.Login, r.occupants[1].ref.Login},
		Scores:  r.sim.scores,
		Winner:  r.winner,
		Forfeit: r.forfeit,
	}
}

// finish runs exactly once: broadcast the terminal event, hand the result
// to the lifecycle callback, release subscribers.
func (r *Room) finish() {
	res := r.result()
	r.log.WithFields(logrus.Fields{
		"status": r.status.String(),
		"scores": res.Scores,
		"winner": res.Winner,
	}).Info("room terminal")

	ev := Event{Type: EventGameOver, RoomID: r.ID, Result: &res, Snapshot: r.snapshotPtr()}
	r.broadcast(ev)

	if r.onEnd != nil {
		r.onEnd(res)
	}
	close(r.done)
}

// sendTo pushes an event onto one occupant's outbox without blocking the
// tick loop. A full outbox drops the event; ordering of what does arrive
// stays non-decreasing because the loop is the only writer.
func (r *Room) sendTo(slot int, ev Event) {
	o := r.occupants[slot]
	if !o.connected || o.outbox == nil {
		return
	}
	select {
	case o.outbox <- ev:
	default:
		r.log.WithField("player", o.ref.ID).Warn("outbox full, dropped event")
	}
}

func (r *Room) broadcast(ev Event) {
	for slot := range r.occupants {
		e := ev
		e.Slot = slot
		r.sendTo(slot, e)
	}
}
