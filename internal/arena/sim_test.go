// internal/arena/sim_test.go
package arena

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyline/rally/internal/config"
)

func testEngine() config.Engine {
	return config.DefaultEngine()
}

func TestSimDeterministicTrajectory(t *testing.T) {
	cfg := testEngine()
	a := newSim(cfg, Effect{}, 42)
	b := newSim(cfg, Effect{}, 42)

	require.Equal(t, a.ball, b.ball, "same seed must serve identically")

	for i := 0; i < 500; i++ {
		a.applyInput(0, float64(i%300))
		b.applyInput(0, float64(i%300))
		a.step()
		b.step()
		require.Equal(t, a.ball, b.ball, "trajectories diverged at step %d", i)
		require.Equal(t, a.scores, b.scores)
	}
}

func TestSimDifferentSeedsDifferentServes(t *testing.T) {
	cfg := testEngine()
	a := newSim(cfg, Effect{}, 1)
	b := newSim(cfg, Effect{}, 2)
	assert.NotEqual(t, a.ball.VY, b.ball.VY)
}

func TestApplyInputClampsToField(t *testing.T) {
	cfg := testEngine()
	s := newSim(cfg, Effect{}, 7)

	require.True(t, s.applyInput(0, -500))
	assert.Equal(t, 0.0, s.paddles[0])

	require.True(t, s.applyInput(0, cfg.FieldHeight*2))
	assert.Equal(t, cfg.FieldHeight-s.paddleH, s.paddles[0])

	require.True(t, s.applyInput(1, 120))
	assert.Equal(t, 120.0, s.paddles[1])
}

func TestApplyInputRejectsMalformedValues(t *testing.T) {
	cfg := testEngine()
	s := newSim(cfg, Effect{}, 7)
	before := s.paddles[0]

	assert.False(t, s.applyInput(0, math.NaN()))
	assert.False(t, s.applyInput(0, math.Inf(1)))
	assert.False(t, s.applyInput(2, 100))
	assert.Equal(t, before, s.paddles[0], "rejected input must not move the paddle")
}

func TestServeLaunchesTowardReceiver(t *testing.T) {
	cfg := testEngine()
	s := newSim(cfg, Effect{}, 11)

	// Slot 0 serves the opening point, so the ball heads right.
	assert.Equal(t, 0, s.serving)
	assert.Greater(t, s.ball.VX, 0.0)
	assert.Equal(t, cfg.FieldWidth/2, s.ball.X)
	assert.Equal(t, cfg.FieldHeight/2, s.ball.Y)

	// Serve angle stays within 45 degrees of horizontal.
	assert.LessOrEqual(t, math.Abs(s.ball.VY), math.Abs(s.ball.VX)+1e-9)
}

func TestScorePointConcederServesNext(t *testing.T) {
	cfg := testEngine()
	s := newSim(cfg, Effect{}, 3)

	scorer := s.scorePoint(1)
	assert.Equal(t, 1, scorer)
	assert.Equal(t, [2]int{0, 1}, s.scores)
	assert.Equal(t, 0, s.serving, "the side that conceded serves next")
	assert.Less(t, s.ball.VX, 0.0, "serve from slot 1 heads left")
}

func TestBallMissesUncoveredPaddleAndScores(t *testing.T) {
	cfg := testEngine()
	cfg.ScoreLimit = 1
	s := newSim(cfg, Effect{}, 5)

	// Park the right paddle at the bottom so the ball sails past.
	require.True(t, s.applyInput(1, cfg.FieldHeight-s.paddleH))
	s.ball.Y = 10
	s.ball.VY = 0

	var scorer int
	for i := 0; i < 10000; i++ {
		scorer = s.step()
		if scorer >= 0 {
			break
		}
	}
	require.Equal(t, 0, scorer, "slot 0 should score past the parked paddle")

	slot, done := s.reachedLimit()
	assert.True(t, done)
	assert.Equal(t, 0, slot)
}

func TestPaddleReflectionPreservesSpeedWithoutModifiers(t *testing.T) {
	cfg := testEngine()
	s := newSim(cfg, Effect{}, 9)

	// Aim at the center of the right paddle.
	s.ball.Y = s.paddles[1] + s.paddleH/2
	s.ball.VY = 0
	s.ball.VX = s.ballSpeed

	before := math.Hypot(s.ball.VX, s.ball.VY)
	for i := 0; i < 10000; i++ {
		s.step()
		if s.ball.VX < 0 {
			break
		}
	}
	require.Less(t, s.ball.VX, 0.0, "ball should have bounced off the right paddle")
	after := math.Hypot(s.ball.VX, s.ball.VY)
	assert.InDelta(t, before, after, 1e-6)
}

func TestHitAccelModifierSpeedsUpBall(t *testing.T) {
	cfg := testEngine()
	s := newSim(cfg, Effect{HitAccel: 1.05}, 9)

	s.ball.Y = s.paddles[1] + s.paddleH/2
	s.ball.VY = 0
	s.ball.VX = s.ballSpeed

	before := math.Hypot(s.ball.VX, s.ball.VY)
	for i := 0; i < 10000; i++ {
		s.step()
		if s.ball.VX < 0 {
			break
		}
	}
	require.Less(t, s.ball.VX, 0.0)
	after := math.Hypot(s.ball.VX, s.ball.VY)
	assert.InDelta(t, before*1.05, after, 1e-6)
}

func TestPaddleScaleModifier(t *testing.T) {
	cfg := testEngine()
	big := newSim(cfg, Effect{PaddleScale: 1.5}, 1)
	small := newSim(cfg, Effect{PaddleScale: 0.5}, 1)

	assert.Equal(t, cfg.PaddleHeight*1.5, big.paddleH)
	assert.Equal(t, cfg.PaddleHeight*0.5, small.paddleH)
}

func TestCombinedEffectMultiplies(t *testing.T) {
	eff := combinedEffect([]Modifier{
		{ID: "a", Effect: Effect{PaddleScale: 1.5}},
		{ID: "b", Effect: Effect{PaddleScale: 0.5, HitAccel: 1.05}},
	})
	assert.InDelta(t, 0.75, eff.PaddleScale, 1e-9)
	assert.InDelta(t, 1.05, eff.HitAccel, 1e-9)
	assert.InDelta(t, 1.0, eff.BallSpeedScale, 1e-9)
}

func TestRegistryRefusesDuplicateAndResolvesKnownIDs(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("big_paddle")
	require.True(t, ok)

	err := r.Register(Modifier{ID: "big_paddle", Name: "dup"})
	assert.Error(t, err)

	mods := r.Resolve([]string{"fast_ball", "no_such_modifier", "rally_heat"})
	assert.Len(t, mods, 2, "unknown ids are skipped")
}
