package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abrezinsky/voterewards/internal/logger"
	"github.com/abrezinsky/voterewards/internal/models"
	"github.com/abrezinsky/voterewards/internal/services"
)

// Message types pushed to clients
const (
	TypeVote      = "vote"
	TypeTopVoters = "top_voters"
)

const (
	leaderboardSize = 10
	sendBuffer      = 256
	pongWait        = 60 * time.Second
	pingPeriod      = 54 * time.Second
	writeWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Vote widgets are embedded on other origins
	},
}

// LeaderboardSource provides the current month's best voters
type LeaderboardSource interface {
	TopVoters(ctx context.Context, limit int) ([]models.TopVoter, error)
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	log         logger.Logger
	clients     map[*Client]bool
	broadcast   chan models.WSMessage
	register    chan *Client
	unregister  chan *Client
	mutex       sync.RWMutex
	leaderboard LeaderboardSource
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan models.WSMessage
}

// New creates a new Hub. leaderboard may be nil to skip leaderboard pushes.
func New(log logger.Logger, leaderboard LeaderboardSource) *Hub {
	return &Hub{
		log:         log,
		clients:     make(map[*Client]bool),
		broadcast:   make(chan models.WSMessage, sendBuffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		leaderboard: leaderboard,
	}
}

// Start begins the hub's main loop in a goroutine
func (h *Hub) Start() {
	go h.run()
}

// run handles client registration/unregistration and message broadcasting
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client connected", "total_clients", total)

			// New clients get the leaderboard straight away
			go func() {
				if msg, ok := h.topVotersMessage(context.Background()); ok {
					select {
					case client.send <- msg:
					default:
					}
				}
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client disconnected", "total_clients", total)

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's send channel is full, unregister
					go func(c *Client) {
						h.unregister <- c
					}(client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// BroadcastMessage queues a message for every connected client.
// It never blocks; messages are dropped when the queue is full.
func (h *Hub) BroadcastMessage(msgType string, payload interface{}) {
	select {
	case h.broadcast <- models.WSMessage{Type: msgType, Payload: payload}:
	default:
		h.log.Warn("Broadcast queue full, dropping message", "type", msgType)
	}
}

// BroadcastVote implements services.Broadcaster
func (h *Hub) BroadcastVote(event services.VoteEvent) {
	h.BroadcastMessage(TypeVote, event)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) topVotersMessage(ctx context.Context) (models.WSMessage, bool) {
	if h.leaderboard == nil {
		return models.WSMessage{}, false
	}
	top, err := h.leaderboard.TopVoters(ctx, leaderboardSize)
	if err != nil {
		h.log.Warn("Failed to load top voters", "error", err)
		return models.WSMessage{}, false
	}
	return models.WSMessage{Type: TypeTopVoters, Payload: top}, true
}

// StartLeaderboard pushes the leaderboard to every client on each tick
// until ctx is cancelled
func (h *Hub) StartLeaderboard(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Leaderboard broadcast stopped")
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			if msg, ok := h.topVotersMessage(ctx); ok {
				h.BroadcastMessage(msg.Type, msg.Payload)
			}
		}
	}
}

// readPump drains the connection so pongs and close frames are processed
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "error", err)
			}
			break
		}

		var msg models.WSMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.hub.log.Debug("Received message", "type", msg.Type)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles websocket requests from clients
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan models.WSMessage, sendBuffer),
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

var _ services.Broadcaster = (*Hub)(nil)
