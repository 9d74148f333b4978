// internal/arena/snapshot.go
package arena

import "github.com/google/uuid"

// Snapshot is the per-tick authoritative state emitted to both occupants.
// Ticks are strictly increasing for a given room, so subscribers never
// observe a tick go backward.
type Snapshot struct {
	Tick    uint64     `json:"tick"`
	Ball    Ball       `json:"ball"`
	Paddles [2]float64 `json:"paddles"`
	Scores  [2]int     `json:"scores"`
	Serving int        `json:"serving"`
	Status  string     `json:"status"`
}

// Result is the terminal outcome of a room, handed to the lifecycle
// callback for persistence and notification.
type Result struct {
	RoomID  uuid.UUID     `json:"room_id"`
	Mode    Mode          `json:"mode"`
	Status  RoomStatus    `json:"-"`
	Players [2]uuid.UUID  `json:"players"`
	Logins  [2]string     `json:"logins"`
	Scores  [2]int        `json:"scores"`
	Winner  uuid.UUID     `json:"winner"` // uuid.Nil when nobody won
	Forfeit bool          `json:"forfeit"`
}

// EventType tags messages flowing from a room to its subscribers.
type EventType string

const (
	// EventPlay is sent once to each occupant when the match becomes
	// ongoing (or on reconnect, as a state resync).
	EventPlay EventType = "play"
	// EventState carries the per-tick snapshot while ongoing.
	EventState EventType = "state"
	// EventGameOver is sent exactly once on the terminal transition.
	EventGameOver EventType = "game_over"
	// EventQueueExpired tells a waiting client their match request aged
	// out of the queue. Emitted by housekeeping, not by rooms.
	EventQueueExpired EventType = "queue_expired"
)

// Event is what a room pushes into each occupant's outbox. The session
// layer translates events into wire messages; the room never touches the
// network itself.
type Event struct {
	Type     EventType `json:"type"`
	RoomID   uuid.UUID `json:"room_id"`
	Slot     int       `json:"slot"`
	Snapshot *Snapshot `json:"state,omitempty"`
	Result   *Result   `json:"result,omitempty"`
}
