// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rallyline/rally/internal/rating"
)

// InsertMatch creates the match row at room creation with status
// 'ongoing'. Having the row exist from the start is what lets
// ActiveMatchFor answer before the match ends.
func InsertMatch(ctx context.Context, matchID uuid.UUID, mode string, player1, player2 uuid.UUID) error {
	q := `
		INSERT INTO matches (id, mode, player1_id, player2_id, status, created_at)
		VALUES ($1, $2, $3, $4, 'ongoing', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, matchID, mode, player1, player2)
		return err
	})
}

// FinalizeMatch writes the terminal outcome onto the match row and the
// per-player result rows in one transaction.
func FinalizeMatch(ctx context.Context, matchID uuid.UUID, status string, players [2]uuid.UUID, scores [2]int, winner uuid.UUID, forfeit bool) error {
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upd := `
			UPDATE matches
			SET status=$1, winner_id=$2, forfeit=$3, ended_at=NOW()
			WHERE id=$4
		`
		var winnerArg interface{}
		if winner != uuid.Nil {
			winnerArg = winner
		}
		if _, e := tx.Exec(ctx, upd, status, winnerArg, forfeit, matchID); e != nil {
			return e
		}

		ins := `
			INSERT INTO match_results (match_id, player_id, score, did_win)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (match_id, player_id)
			DO UPDATE SET score=$3, did_win=$4
		`
		for i, pid := range players {
			if _, e := tx.Exec(ctx, ins, matchID, pid, scores[i], pid == winner); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx finalize match: %w", err)
	}
	return nil
}

// ActiveMatchFor returns the id of the player's ongoing match, if one
// exists. Covers rooms that outlived the in-memory index, e.g. across a
// restart.
func ActiveMatchFor(ctx context.Context, player uuid.UUID) (uuid.UUID, bool, error) {
	q := `
		SELECT id FROM matches
		WHERE status='ongoing' AND (player1_id=$1 OR player2_id=$1)
		LIMIT 1
	`
	var id uuid.UUID
	err := DB.QueryRow(ctx, q, player).Scan(&id)
	if err == pgx.ErrNoRows {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// CommitRankedOutcome runs the Glicko-2 update for a decided ranked match
// and stores both the new user ratings and the rating history rows.
func CommitRankedOutcome(ctx context.Context, matchID, winnerID, loserID uuid.UUID) error {
	winner, err := GetUserByID(ctx, winnerID)
	if err != nil {
		return fmt.Errorf("load winner for rating: %w", err)
	}
	loser, err := GetUserByID(ctx, loserID)
	if err != nil {
		return fmt.Errorf("load loser for rating: %w", err)
	}

	oldWElo, oldLElo := winner.Elo, loser.Elo
	newW, newL := rating.Update1v1(*winner, *loser)

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upd := `UPDATE users SET elo=$1, phi=$2, sigma=$3 WHERE id=$4`
		if _, e := tx.Exec(ctx, upd, newW.Elo, newW.Phi, newW.Sigma, newW.ID); e != nil {
			return e
		}
		if _, e := tx.Exec(ctx, upd, newL.Elo, newL.Phi, newL.Sigma, newL.ID); e != nil {
			return e
		}
		_, e := tx.Exec(ctx, `
			INSERT INTO ratings (user_id, match_id, old_rating, new_rating)
			VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)
		`,
			newW.ID, matchID, oldWElo, newW.Elo,
			newL.ID, matchID, oldLElo, newL.Elo,
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("tx rating update: %w", err)
	}
	return nil
}
