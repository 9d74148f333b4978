// internal/matchmaker/errors.go
package matchmaker

import "errors"

var (
	// ErrAlreadyQueued: the player already holds a pending match request.
	ErrAlreadyQueued = errors.New("player already queued")
	// ErrAlreadyInMatch: the player occupies a live room and must finish
	// or forfeit it before requesting another match.
	ErrAlreadyInMatch = errors.New("player already in a match")
	// ErrNotQueued: cancel was called without a pending request.
	ErrNotQueued = errors.New("player is not queued")
	// ErrInviteeUnavailable: the invited player is unknown, queued
	// elsewhere or already in a match.
	ErrInviteeUnavailable = errors.New("invitee unavailable")
	// ErrNotEligible: the pairing is blocked (e.g. one player blocked the
	// other).
	ErrNotEligible = errors.New("players not eligible to play each other")
	// ErrInvalidMode: the request named an unknown match mode.
	ErrInvalidMode = errors.New("invalid match mode")
	// ErrNotFound: an identity lookup (e.g. an invitee login) matched no
	// player. No room side effect occurs.
	ErrNotFound = errors.New("player not found")
	// ErrUnauthorized: the presented credential did not verify.
	ErrUnauthorized = errors.New("unauthorized")
)
