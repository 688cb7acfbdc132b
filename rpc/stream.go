package rpc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tolelom/duelchain/events"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var gameEvents = map[events.EventType]bool{
	events.EventGameCreated:   true,
	events.EventGameJoined:    true,
	events.EventMoveCommitted: true,
	events.EventMoveRevealed:  true,
	events.EventGameFinalized: true,
}

// gameFilter reports whether ev belongs to game id. Zero matches every game
// event.
func gameFilter(id uint64) func(events.Event) bool {
	return func(ev events.Event) bool {
		if !gameEvents[ev.Type] {
			return false
		}
		if id == 0 {
			return true
		}
		got, _ := ev.Data["game_id"].(uint64)
		return got == id
	}
}

// serveStream upgrades to a WebSocket and pushes game events as JSON. The
// optional game_id query parameter narrows the stream to one game. Slow
// clients lose events rather than stall block production.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	if _, err := s.auth.Authorize(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	var gameID uint64
	if v := r.URL.Query().Get("game_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid game_id", http.StatusBadRequest)
			return
		}
		gameID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("websocket upgrade: %v", err)
		return
	}

	match := gameFilter(gameID)
	send := make(chan events.Event, streamBuffer)
	cancel := s.emitter.SubscribeAll(func(ev events.Event) {
		if !match(ev) {
			return
		}
		select {
		case send <- ev:
		default:
			log.Warnf("stream client %s lagging, dropped %s", conn.RemoteAddr(), ev.Type)
		}
	})
	log.Debugf("stream client %s connected (game %d)", conn.RemoteAddr(), gameID)

	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, send, done)
	cancel()
	log.Debugf("stream client %s disconnected", conn.RemoteAddr())
}

// readPump discards client messages and closes done when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, send <-chan events.Event, done <-chan struct{}) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case <-s.quit:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(streamWriteWait))
			return
		case ev := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
