// internal/handlers/friend.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/rallyline/rally/internal/database"
)

type friendRequest struct {
	FriendID string `json:"friend_id"`
}

// decodeFriendRequest authenticates the caller and parses the target id
// shared by all friend endpoints.
func decodeFriendRequest(w http.ResponseWriter, r *http.Request) (caller, target uuid.UUID, ok bool) {
	caller, err := authedUserID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, uuid.Nil, false
	}

	var req friendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	target, err = uuid.Parse(req.FriendID)
	if err != nil {
		http.Error(w, "invalid friend_id", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	if caller == target {
		http.Error(w, "cannot target yourself", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}
	return caller, target, true
}

// AddFriendHandler stores a pending friend request toward another user.
func AddFriendHandler(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := decodeFriendRequest(w, r)
	if !ok {
		return
	}
	if err := database.InsertFriendRequest(r.Context(), caller, target); err != nil {
		http.Error(w, fmt.Sprintf("failed to insert friend request: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write([]byte("friend request sent"))
}

// AcceptFriendHandler accepts a pending request that was sent to the caller.
func AcceptFriendHandler(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := decodeFriendRequest(w, r)
	if !ok {
		return
	}
	// The pending request was from target -> caller.
	if err := database.AcceptFriend(r.Context(), target, caller); err != nil {
		http.Error(w, fmt.Sprintf("failed to accept friend: %v", err), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("friend request accepted"))
}

// BlockUserHandler blocks another user. Blocked pairs are never matched
// together, in any mode.
func BlockUserHandler(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := decodeFriendRequest(w, r)
	if !ok {
		return
	}
	if err := database.BlockUser(r.Context(), caller, target); err != nil {
		http.Error(w, fmt.Sprintf("failed to block user: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("user blocked"))
}

// ListFriendsHandler returns a JSON array of all friend relationships
// (pending, accepted or blocked) associated with the authenticated user.
func ListFriendsHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := authedUserID(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	friends, err := database.ListFriends(r.Context(), caller)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list friends: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(friends)
}

// RemoveFriendHandler removes (unfriends) a user.
func RemoveFriendHandler(w http.ResponseWriter, r *http.Request) {
	caller, target, ok := decodeFriendRequest(w, r)
	if !ok {
		return
	}
	if err := database.RemoveFriend(r.Context(), caller, target); err != nil {
		http.Error(w, fmt.Sprintf("failed to remove friend: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("friend removed"))
}
