// internal/arena/sim.go
package arena

import (
	"math"
	"math/rand"

	"github.com/rallyline/rally/internal/config"
)

// Ball is the ball's position and velocity in field units.
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// sim is the authoritative playfield state for one room. It is pure
// arithmetic over injected configuration: given the same seed, effect and
// input sequence, two sims produce identical trajectories. All methods
// are called only from the owning room goroutine.
type sim struct {
	cfg config.Engine
	eff Effect
	rng *rand.Rand

	dt        float64
	paddleH   float64
	ballSpeed float64

	ball    Ball
	paddles [2]float64 // top edge of each paddle
	scores  [2]int
	serving int // slot that serves the next point
}

func newSim(cfg config.Engine, eff Effect, seed int64) *sim {
	eff = eff.normalized()
	s := &sim{
		cfg:       cfg,
		eff:       eff,
		rng:       rand.New(rand.NewSource(seed)),
		dt:        1.0 / float64(cfg.TickRate),
		paddleH:   cfg.PaddleHeight * eff.PaddleScale,
		ballSpeed: cfg.BallSpeed * eff.BallSpeedScale,
		serving:   0, // slot 0 serves first
	}
	s.paddles[0] = (cfg.FieldHeight - s.paddleH) / 2
	s.paddles[1] = s.paddles[0]
	s.serve()
	return s
}

// applyInput moves a paddle to the requested position, clamped to the
// field. Malformed values (NaN, Inf) are rejected.
func (s *sim) applyInput(slot int, y float64) bool {
	if slot < 0 || slot > 1 {
		return false
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return false
	}
	maxY := s.cfg.FieldHeight - s.paddleH
	if y < 0 {
		y = 0
	} else if y > maxY {
		y = maxY
	}
	s.paddles[slot] = y
	return true
}

// step advances the ball by one tick. It returns the slot that scored
// this tick, or -1.
func (s *sim) step() int {
	s.ball.X += s.ball.VX * s.dt
	s.ball.Y += s.ball.VY * s.dt

	// Top/bottom wall reflection.
	if s.ball.Y < 0 {
		s.ball.Y = -s.ball.Y
		s.ball.VY = -s.ball.VY
	} else if s.ball.Y > s.cfg.FieldHeight {
		s.ball.Y = 2*s.cfg.FieldHeight - s.ball.Y
		s.ball.VY = -s.ball.VY
	}

	leftFace := s.cfg.PaddleInset + s.cfg.PaddleWidth
	rightFace := s.cfg.FieldWidth - s.cfg.PaddleInset - s.cfg.PaddleWidth

	if s.ball.VX < 0 && s.ball.X <= leftFace {
		if s.paddleCovers(0, s.ball.Y) {
			s.reflectOffPaddle(0, leftFace)
		} else if s.ball.X <= 0 {
			return s.scorePoint(1)
		}
	} else if s.ball.VX > 0 && s.ball.X >= rightFace {
		if s.paddleCovers(1, s.ball.Y) {
			s.reflectOffPaddle(1, rightFace)
		} else if s.ball.X >= s.cfg.FieldWidth {
			return s.scorePoint(0)
		}
	}
	return -1
}

func (s *sim) paddleCovers(slot int, y float64) bool {
	top := s.paddles[slot]
	return y >= top && y <= top+s.paddleH
}

// reflectOffPaddle mirrors the ball around the paddle face and steers the
// vertical velocity by where the ball struck relative to the paddle
// center. Hit acceleration from the active modifier set applies here.
func (s *sim) reflectOffPaddle(slot int, face float64) {
	s.ball.X = 2*face - s.ball.X
	s.ball.VX = -s.ball.VX

	center := s.paddles[slot] + s.paddleH/2
	rel := (s.ball.Y - center) / (s.paddleH / 2) // -1..1
	speed := math.Hypot(s.ball.VX, s.ball.VY)
	s.ball.VY = speed * rel * 0.7
	vx := math.Sqrt(math.Max(speed*speed-s.ball.VY*s.ball.VY, speed*speed*0.09))
	if s.ball.VX < 0 {
		vx = -vx
	}
	s.ball.VX = vx

	s.ball.VX *= s.eff.HitAccel
	s.ball.VY *= s.eff.HitAccel
}

// scorePoint credits the scorer, hands the serve to the conceder and
// resets the ball. Returns the scoring slot.
func (s *sim) scorePoint(scorer int) int {
	s.scores[scorer]++
	s.serving = 1 - scorer // the side that conceded serves next
	s.serve()
	return scorer
}

// serve places the ball at center and launches it away from the serving
// side, toward the opponent, at a seeded pseudo-random angle within
// 45 degrees of horizontal. Slot 0 serves the opening point.
func (s *sim) serve() {
	s.ball.X = s.cfg.FieldWidth / 2
	s.ball.Y = s.cfg.FieldHeight / 2

	angle := (s.rng.Float64()*2 - 1) * math.Pi / 4
	dir := 1.0
	if s.serving == 1 {
		dir = -1.0
	}
	s.ball.VX = math.Cos(angle) * s.ballSpeed * dir
	s.ball.VY = math.Sin(angle) * s.ballSpeed
}

// reachedLimit reports whether either side hit the score limit.
func (s *sim) reachedLimit() (int, bool) {
	for slot, sc := range s.scores {
		if sc >= s.cfg.ScoreLimit {
			return slot, true
		}
	}
	return -1, false
}
