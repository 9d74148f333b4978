// internal/handlers/session_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rallyline/rally/internal/arena"
	"github.com/rallyline/rally/internal/auth"
	"github.com/rallyline/rally/internal/database"
	"github.com/rallyline/rally/internal/matchmaker"
	"github.com/rallyline/rally/internal/middleware"
)

// SessionMessage is the client-to-server shape of the session protocol.
type SessionMessage struct {
	Type string `json:"type"`

	// join fields
	Mode      string   `json:"mode,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Invitee   string   `json:"invitee,omitempty"`

	// input fields
	Y float64 `json:"y,omitempty"`
}

// SessionWSHandler upgrades the connection to the session protocol,
// authenticates the player from the auth_token cookie, then runs the read
// loop for join/cancel/input/forfeit until the client goes away.
func SessionWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"rally"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "rally" {
			logger.Warnf("Client connected with invalid subprotocol: %s", c.Subprotocol())
			c.Close(BadSubprotocolError, "Client must use the 'rally' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		player, err := authenticateSession(r)
		if err != nil {
			logger.Warnf("Session authentication failed: %v", err)
			code := websocket.StatusCode(InvalidAuthTokenError)
			if errors.Is(err, matchmaker.ErrNotFound) {
				code = InvalidUserIDError
			}
			c.Close(code, "Authentication failed.")
			return
		}

		conn := newClientConn(c, player, logger)
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go conn.writePump(ctx)

		readSessionMessages(ctx, c, s, conn)

		// Read loop exited: the queue entry (if any) dies with the
		// connection, while a live room keeps running on its grace timer.
		s.Matchmaker.CancelAll(player.ID)
		if room, ok := s.Rooms.RoomFor(player.ID); ok {
			room.Detach(player.ID)
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// authenticateSession resolves the auth_token cookie to a player ref.
func authenticateSession(r *http.Request) (arena.PlayerRef, error) {
	cookieHeader := r.Header.Get("Cookie")
	if !strings.Contains(cookieHeader, "auth_token=") {
		return arena.PlayerRef{}, fmt.Errorf("%w: missing auth_token cookie", matchmaker.ErrUnauthorized)
	}
	token := extractCookieToken(cookieHeader, "auth_token")

	userIDStr, err := auth.AuthenticateJWT(token)
	if err != nil {
		return arena.PlayerRef{}, fmt.Errorf("%w: %v", matchmaker.ErrUnauthorized, err)
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return arena.PlayerRef{}, fmt.Errorf("%w: %v", matchmaker.ErrUnauthorized, err)
	}
	u, err := database.GetUserByID(r.Context(), userID)
	if err != nil {
		return arena.PlayerRef{}, fmt.Errorf("%w: unknown user", matchmaker.ErrNotFound)
	}
	return arena.PlayerRef{ID: u.ID, Login: u.Username}, nil
}

// readSessionMessages reads and routes client messages until error or
// cancellation.
func readSessionMessages(ctx context.Context, c *websocket.Conn, s *Server, conn *clientConn) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				conn.logger.Info("WebSocket closed normally")
			} else if strings.Contains(err.Error(), "context canceled") {
				conn.logger.Info("WebSocket context canceled")
			} else {
				conn.logger.Warnf("Error reading from WebSocket: %v (Status: %d)", err, status)
			}
			return
		}
		if msgType != websocket.MessageText {
			conn.logger.Warnf("Ignoring non-text message type %d", msgType)
			continue
		}

		var msg SessionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.logger.Warnf("Invalid JSON received: %v", err)
			conn.sendError("Invalid JSON format.")
			continue
		}

		switch msg.Type {
		case "join":
			handleJoin(ctx, s, conn, msg)
		case "cancel":
			if err := s.Matchmaker.Cancel(conn.player.ID); err != nil {
				conn.sendError(err.Error())
			} else {
				conn.send(map[string]string{"type": "ack"})
			}
		case "input":
			if room, ok := s.Rooms.RoomFor(conn.player.ID); ok {
				room.Input(conn.player.ID, msg.Y)
			}
		case "forfeit":
			if room, ok := s.Rooms.RoomFor(conn.player.ID); ok {
				room.Forfeit(conn.player.ID)
			} else {
				conn.sendError("not in a match")
			}
		case "ping":
			conn.send(map[string]string{"type": "pong"})
		default:
			conn.logger.Warnf("Unknown message type '%s'", msg.Type)
			conn.sendError("Unknown message type: " + msg.Type)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleJoin routes a join either into an existing room (reconnect, or an
// invitation reserved for this player) or into the matchmaking queues.
func handleJoin(ctx context.Context, s *Server, conn *clientConn, msg SessionMessage) {
	// An occupied slot always wins over a new request: the client is
	// redirected back into its live room with state intact.
	if room, ok := s.Rooms.RoomFor(conn.player.ID); ok {
		conn.send(map[string]interface{}{"type": "redirect", "room_id": room.ID})
		if err := room.Attach(conn.player.ID, conn.outbox); err != nil {
			conn.sendError(err.Error())
		}
		return
	}

	req := matchmaker.Request{
		Player:       conn.player,
		Mode:         arena.Mode(msg.Mode),
		Modifiers:    msg.Modifiers,
		InviteeLogin: msg.Invitee,
		Outbox:       conn.outbox,
	}
	room, err := s.Matchmaker.Enqueue(ctx, req)
	if err != nil {
		conn.sendError(err.Error())
		return
	}
	if room == nil {
		conn.send(map[string]string{"type": "wait"})
		return
	}
	conn.send(map[string]interface{}{"type": "redirect", "room_id": room.ID})
}
