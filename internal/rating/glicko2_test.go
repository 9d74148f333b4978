// internal/rating/glicko2_test.go
package rating

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rallyline/rally/internal/models"
)

func newRatedUser(elo int) models.User {
	return models.User{
		ID:    uuid.New(),
		Elo:   elo,
		Phi:   DefaultPhi,
		Sigma: DefaultSigma,
	}
}

func TestUpdate1v1WinnerGainsLoserLoses(t *testing.T) {
	winner := newRatedUser(1500)
	loser := newRatedUser(1500)

	newW, newL := Update1v1(winner, loser)

	assert.Greater(t, newW.Elo, winner.Elo, "winner should gain rating")
	assert.Less(t, newL.Elo, loser.Elo, "loser should lose rating")
	// At equal ratings the exchange is symmetric.
	assert.Equal(t, newW.Elo-1500, 1500-newL.Elo)
}

func TestUpdate1v1UpsetMovesMoreRating(t *testing.T) {
	underdog := newRatedUser(1400)
	favorite := newRatedUser(1600)

	upsetW, upsetL := Update1v1(underdog, favorite)
	expectedW, expectedL := Update1v1(favorite, underdog)

	upsetGain := upsetW.Elo - underdog.Elo
	expectedGain := expectedW.Elo - favorite.Elo
	assert.Greater(t, upsetGain, expectedGain, "an upset win pays more than an expected win")

	assert.Less(t, upsetL.Elo, favorite.Elo)
	assert.Less(t, expectedL.Elo, underdog.Elo)
}

func TestUpdate1v1ShrinksDeviation(t *testing.T) {
	a := newRatedUser(1500)
	b := newRatedUser(1500)

	newA, newB := Update1v1(a, b)

	assert.Less(t, newA.Phi, a.Phi, "playing a match reduces rating deviation")
	assert.Less(t, newB.Phi, b.Phi)
	assert.Greater(t, newA.Sigma, 0.0)
}

func TestUpdate1v1DefaultsZeroValuedHistory(t *testing.T) {
	// A user with no stored phi/sigma gets the Glicko-2 defaults rather
	// than a degenerate zero-deviation update.
	fresh := models.User{ID: uuid.New(), Elo: 1500}
	opponent := newRatedUser(1500)

	newF, _ := Update1v1(fresh, opponent)
	require.NotEqual(t, 0.0, newF.Phi)
	assert.Greater(t, newF.Elo, 1500)
}

func TestGlicko2RoundTripConversion(t *testing.T) {
	r := NewGlicko2Rating(1650, DefaultPhi, DefaultSigma)
	assert.InDelta(t, 1650, r.ToElo(), 1e-9)
}
