// internal/handlers/connection.go
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/rallyline/rally/internal/arena"
)

// clientConn owns one player's websocket for the session protocol. The
// write pump is the only goroutine that writes to the socket: room events
// arrive on outbox, direct protocol replies (ack, wait, errors, pong) on
// ctrl. The read loop never touches the socket for writes.
type clientConn struct {
	ws     *websocket.Conn
	player arena.PlayerRef
	outbox chan arena.Event
	ctrl   chan interface{}
	logger *logrus.Entry
}

func newClientConn(ws *websocket.Conn, player arena.PlayerRef, logger *logrus.Logger) *clientConn {
	return &clientConn{
		ws:     ws,
		player: player,
		outbox: make(chan arena.Event, 64),
		ctrl:   make(chan interface{}, 8),
		logger: logger.WithField("player", player.ID),
	}
}

// send queues a direct protocol message. Non-blocking; a client too slow
// to drain its own replies loses them rather than stalling the reader.
func (cc *clientConn) send(msg interface{}) {
	select {
	case cc.ctrl <- msg:
	default:
		cc.logger.Warn("control channel full, dropped message")
	}
}

func (cc *clientConn) sendError(message string) {
	cc.send(map[string]interface{}{"type": "error", "message": message})
}

// writePump drains both channels until the context dies. Per-message
// write timeouts keep one dead client from wedging the pump.
func (cc *clientConn) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-cc.outbox:
			cc.write(ctx, eventToMessage(ev))
		case msg := <-cc.ctrl:
			cc.write(ctx, msg)
		}
	}
}

func (cc *clientConn) write(ctx context.Context, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		cc.logger.WithError(err).Error("marshal outgoing message failed")
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cc.ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			cc.logger.WithError(err).Debug("websocket write failed")
		}
	}
}

// eventToMessage flattens a room event into the wire shape the session
// protocol promises clients.
func eventToMessage(ev arena.Event) interface{} {
	switch ev.Type {
	case arena.EventPlay:
		return map[string]interface{}{
			"type":    "play",
			"room_id": ev.RoomID,
			"slot":    ev.Slot,
			"state":   ev.Snapshot,
		}
	case arena.EventState:
		return map[string]interface{}{
			"type":    "state",
			"room_id": ev.RoomID,
			"slot":    ev.Slot,
			"state":   ev.Snapshot,
		}
	case arena.EventGameOver:
		return map[string]interface{}{
			"type":    "game_over",
			"room_id": ev.RoomID,
			"state":   ev.Snapshot,
			"result":  ev.Result,
		}
	case arena.EventQueueExpired:
		return map[string]interface{}{"type": "queue_expired"}
	default:
		return map[string]interface{}{"type": string(ev.Type)}
	}
}
