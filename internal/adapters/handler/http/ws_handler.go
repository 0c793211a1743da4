package http

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vncsmyrnk/livepoll/internal/adapters/broadcast"
	"github.com/vncsmyrnk/livepoll/internal/core/ports"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024

	eventSnapshot = "poll.snapshot"
	eventUpdated  = "poll.updated"
	eventLeft     = "poll.left"
	eventError    = "error"
)

type wsRequest struct {
	Action string `json:"action"`
	PollID string `json:"poll_id"`
}

type wsEvent struct {
	Type   string        `json:"type"`
	PollID string        `json:"poll_id,omitempty"`
	Poll   *pollResponse `json:"poll,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// WSHandler is the real-time channel. Each connection owns one mailbox that it subscribes to
// every poll it joins.
type WSHandler struct {
	polls       ports.PollService
	broadcaster ports.Broadcaster
	clock       ports.Clock
	mailboxSize int
	upgrader    websocket.Upgrader
	log         *zap.Logger
}

func NewWSHandler(polls ports.PollService, broadcaster ports.Broadcaster, clock ports.Clock, mailboxSize int, allowedOrigins []string, log *zap.Logger) *WSHandler {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		polls:       polls,
		broadcaster: broadcaster,
		clock:       clock,
		mailboxSize: mailboxSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	hosts := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			hosts[strings.ToLower(origin)] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := hosts[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{
		handler: h,
		conn:    conn,
		mailbox: broadcast.NewMailbox(h.mailboxSize),
		send:    make(chan wsEvent, 8),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		joined:  make(map[uuid.UUID]struct{}),
	}

	go c.writePump()
	c.readPump(r)
}

type wsClient struct {
	handler *WSHandler
	conn    *websocket.Conn
	mailbox *broadcast.Mailbox
	send    chan wsEvent
	done    chan struct{} // closed by the reader on disconnect
	stopped chan struct{} // closed by the writer when it exits

	mu     sync.Mutex
	joined map[uuid.UUID]struct{}
}

func (c *wsClient) readPump(r *http.Request) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req wsRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.handler.log.Debug("websocket closed", zap.Error(err))
			}
			return
		}

		switch req.Action {
		case "join":
			c.join(r, req.PollID)
		case "leave":
			c.leave(req.PollID)
		default:
			c.enqueue(wsEvent{Type: eventError, Error: "unknown action"})
		}
	}
}

// join subscribes before reading the snapshot, so every vote committed after the snapshot
// also arrives as an update.
func (c *wsClient) join(r *http.Request, rawID string) {
	pollID, err := uuid.Parse(rawID)
	if err != nil {
		c.enqueue(wsEvent{Type: eventError, PollID: rawID, Error: "invalid poll id"})
		return
	}

	c.handler.broadcaster.Subscribe(pollID, c.mailbox)

	poll, err := c.handler.polls.GetPoll(r.Context(), pollID.String())
	if err != nil {
		c.handler.broadcaster.Unsubscribe(pollID, c.mailbox)
		_, message := errorStatus(err)
		c.enqueue(wsEvent{Type: eventError, PollID: rawID, Error: message})
		return
	}

	c.mu.Lock()
	c.joined[pollID] = struct{}{}
	c.mu.Unlock()

	resp := newPollResponse(poll, c.handler.clock.Now())
	c.enqueue(wsEvent{Type: eventSnapshot, PollID: pollID.String(), Poll: &resp})
}

func (c *wsClient) leave(rawID string) {
	pollID, err := uuid.Parse(rawID)
	if err != nil {
		c.enqueue(wsEvent{Type: eventError, PollID: rawID, Error: "invalid poll id"})
		return
	}

	c.handler.broadcaster.Unsubscribe(pollID, c.mailbox)
	c.mu.Lock()
	delete(c.joined, pollID)
	c.mu.Unlock()

	c.enqueue(wsEvent{Type: eventLeft, PollID: pollID.String()})
}

func (c *wsClient) enqueue(event wsEvent) {
	select {
	case c.send <- event:
	case <-c.stopped:
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	for pollID := range c.joined {
		c.handler.broadcaster.Unsubscribe(pollID, c.mailbox)
	}
	c.joined = map[uuid.UUID]struct{}{}
	c.mu.Unlock()

	close(c.done)
	c.mailbox.Close()
	_ = c.conn.Close()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.stopped)
		_ = c.conn.Close()
	}()

	for {
		select {
		case snapshot, ok := <-c.mailbox.C():
			if !ok {
				return
			}
			resp := newPollResponse(&snapshot, c.handler.clock.Now())
			if !c.write(wsEvent{Type: eventUpdated, PollID: snapshot.ID.String(), Poll: &resp}) {
				return
			}
		case event := <-c.send:
			if !c.write(event) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) write(event wsEvent) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(event); err != nil {
		c.handler.log.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

var _ ports.Observer = (*broadcast.Mailbox)(nil)
