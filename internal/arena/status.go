// internal/arena/status.go
package arena

// RoomStatus is the closed set of lifecycle states a room moves through.
// Transitions are monotonic: invitation -> waiting -> ongoing ->
// {finished, abandoned}. A room never moves backwards and terminal states
// admit no further transitions.
type RoomStatus int

const (
	// StatusInvitation: an invite was sent and the room is waiting for
	// the invitee to accept. Only invitation-mode rooms start here.
	StatusInvitation RoomStatus = iota
	// StatusWaiting: at least one slot filled, waiting for the second
	// occupant to attach.
	StatusWaiting
	// StatusOngoing: both occupants attached, tick loop advancing.
	StatusOngoing
	// StatusFinished: score limit reached under normal play.
	StatusFinished
	// StatusAbandoned: forfeit, or a disconnect outlived the grace period.
	StatusAbandoned
)

func (s RoomStatus) String() string {
	switch s {
	case StatusInvitation:
		return "invitation"
	case StatusWaiting:
		return "waiting"
	case StatusOngoing:
		return "ongoing"
	case StatusFinished:
		return "finished"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s RoomStatus) Terminal() bool {
	return s == StatusFinished || s == StatusAbandoned
}

// Mode is the match-request mode. Ranked and casual feed separate FIFO
// queue partitions; invitation pairs two named players directly.
type Mode string

const (
	ModeRanked     Mode = "ranked"
	ModeCasual     Mode = "casual"
	ModeInvitation Mode = "invitation"
)

// Valid reports whether m is one of the three known modes.
func (m Mode) Valid() bool {
	return m == ModeRanked || m == ModeCasual || m == ModeInvitation
}
