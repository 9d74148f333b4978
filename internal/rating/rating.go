// internal/rating/rating.go
package rating

import (
	"math"

	"github.com/rallyline/rally/internal/models"
)

// Update1v1 applies one Glicko-2 update to both sides of a finished ranked
// match. phi and sigma persist across matches; users with no history get
// the Glicko-2 defaults.
func Update1v1(winner, loser models.User) (models.User, models.User) {
	w := toGlicko(winner)
	l := toGlicko(loser)

	newW := updateGlicko(w, l, 1.0)
	newL := updateGlicko(l, w, 0.0)

	return fromGlicko(winner, newW), fromGlicko(loser, newL)
}

func toGlicko(u models.User) Glicko2Rating {
	phi := u.Phi
	if phi == 0 {
		phi = DefaultPhi
	}
	sigma := u.Sigma
	if sigma == 0 {
		sigma = DefaultSigma
	}
	return NewGlicko2Rating(float64(u.Elo), phi, sigma)
}

func fromGlicko(u models.User, r Glicko2Rating) models.User {
	u.Elo = int(math.Round(r.ToElo()))
	u.Phi = r.Phi * GlickoScale
	u.Sigma = r.Sigma
	return u
}
