package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/portfolioviz/internal/dashboard"
	"github.com/wonny/portfolioviz/pkg/logger"
)

// Ping/Pong settings
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second

	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ClientMessage is one control change sent by the page
type ClientMessage struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// ServerMessage is pushed to the page: a new view or a rejected control change
type ServerMessage struct {
	Type  string          `json:"type"` // "view" | "error"
	View  *dashboard.View `json:"view,omitempty"`
	Error string          `json:"error,omitempty"`
}

// WSHandler binds one dashboard session to one WebSocket connection
type WSHandler struct {
	manager *dashboard.Manager
	logger  *logger.Logger
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(manager *dashboard.Manager, log *logger.Logger) *WSHandler {
	return &WSHandler{
		manager: manager,
		logger:  log,
	}
}

// latestView holds at most one pending view; a newer view replaces an unsent one
type latestView struct {
	ch chan dashboard.View
}

func newLatestView() *latestView {
	return &latestView{ch: make(chan dashboard.View, 1)}
}

func (q *latestView) push(v dashboard.View) {
	for {
		select {
		case q.ch <- v:
			return
		default:
		}
		select {
		case <-q.ch:
		default:
		}
	}
}

// Serve upgrades the connection and runs the session until the page goes away
// GET /ws
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	views := newLatestView()
	errs := make(chan string, 8)
	done := make(chan struct{})

	session := h.manager.Open(context.WithoutCancel(r.Context()), views.push)
	session.Attach()
	defer h.manager.Close(session.ID())
	defer session.Detach()

	log := h.logger.WithField("session", session.ID())
	log.Debug("WebSocket connected")

	go h.writeLoop(conn, views, errs, done, log)
	h.readLoop(conn, session, errs, log)

	close(done)
	log.Debug("WebSocket disconnected")
}

// readLoop applies control changes until the connection fails
func (h *WSHandler) readLoop(conn *websocket.Conn, session *dashboard.Session, errs chan<- string, log *logger.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		session.Touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("WebSocket read failed")
			}
			return
		}

		if err := session.Set(msg.Field, msg.Value); err != nil {
			log.WithError(err).WithField("field", msg.Field).Debug("Rejected control change")
			select {
			case errs <- err.Error():
			default:
			}
		}
	}
}

// writeLoop pushes views and errors and keeps the connection alive
func (h *WSHandler) writeLoop(conn *websocket.Conn, views *latestView, errs <-chan string, done <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	write := func(msg ServerMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithError(err).Debug("WebSocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case v := <-views.ch:
			if !write(ServerMessage{Type: "view", View: &v}) {
				return
			}
		case e := <-errs:
			if !write(ServerMessage{Type: "error", Error: e}) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
