package models

import "github.com/google/uuid"

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	IsAdmin bool `json:"is_admin"`

	// Ranked ladder rating (Glicko-2).
	Elo   int     `json:"elo"`
	Phi   float64 `json:"phi"`
	Sigma float64 `json:"sigma"`
}
