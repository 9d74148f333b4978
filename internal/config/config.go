// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Engine holds every tunable the match engine consumes. Nothing in the
// tick loop or matchmaker reads the environment directly; main builds one
// of these and injects it.
type Engine struct {
	// TickRate is the number of simulation steps (and snapshot
	// broadcasts) per second.
	TickRate int

	// Playfield bounds. Slot 0 defends the left edge, slot 1 the right.
	FieldWidth  float64
	FieldHeight float64

	// Paddle geometry. PaddleInset is the distance from the defended edge
	// to the paddle's hitting face.
	PaddleHeight float64
	PaddleWidth  float64
	PaddleInset  float64

	// BallSpeed is the serve speed in field units per second.
	BallSpeed float64

	// ScoreLimit ends the match when either side reaches it.
	ScoreLimit int

	// GracePeriod is how long a room waits for a disconnected occupant to
	// reconnect before declaring a forfeit.
	GracePeriod time.Duration

	// QueueTTL expires stale match requests during housekeeping sweeps.
	// Zero disables expiry.
	QueueTTL time.Duration
}

// DefaultEngine returns the stock configuration used when no environment
// overrides are present.
func DefaultEngine() Engine {
	return Engine{
		TickRate:     30,
		FieldWidth:   800,
		FieldHeight:  600,
		PaddleHeight: 100,
		PaddleWidth:  12,
		PaddleInset:  24,
		BallSpeed:    360,
		ScoreLimit:   11,
		GracePeriod:  15 * time.Second,
		QueueTTL:     2 * time.Minute,
	}
}

// EngineFromEnv reads overrides from the environment on top of the
// defaults:
//   - TICK_RATE (steps per second)
//   - FIELD_WIDTH, FIELD_HEIGHT
//   - PADDLE_HEIGHT, BALL_SPEED
//   - SCORE_LIMIT
//   - GRACE_PERIOD (Go duration, e.g. "15s")
//   - QUEUE_TTL (Go duration; "0" disables expiry)
func EngineFromEnv() Engine {
	cfg := DefaultEngine()
	cfg.TickRate = getEnvInt("TICK_RATE", cfg.TickRate)
	cfg.FieldWidth = getEnvFloat("FIELD_WIDTH", cfg.FieldWidth)
	cfg.FieldHeight = getEnvFloat("FIELD_HEIGHT", cfg.FieldHeight)
	cfg.PaddleHeight = getEnvFloat("PADDLE_HEIGHT", cfg.PaddleHeight)
	cfg.BallSpeed = getEnvFloat("BALL_SPEED", cfg.BallSpeed)
	cfg.ScoreLimit = getEnvInt("SCORE_LIMIT", cfg.ScoreLimit)
	cfg.GracePeriod = getEnvDuration("GRACE_PERIOD", cfg.GracePeriod)
	cfg.QueueTTL = getEnvDuration("QUEUE_TTL", cfg.QueueTTL)
	return cfg
}

// TickInterval converts the tick rate to the ticker period.
func (c Engine) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(c.TickRate)
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
