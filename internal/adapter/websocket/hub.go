package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/adapter/queue"
)

// Hub fans gateway events out to connected admin dashboards. Events
// arrive from the message queue and are pushed to every client; the
// hub never reads application data from clients.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	log *zap.Logger
	mu  sync.RWMutex
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// event is the envelope pushed to dashboards.
type event struct {
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("Dashboard client connected", zap.String("user_id", client.userID))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than stall the hub.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Bridge subscribes to the given queue subjects and republishes each
// message to connected clients wrapped in an event envelope.
func (h *Hub) Bridge(mq queue.MessageQueue, subjects ...string) error {
	for _, subject := range subjects {
		subject := subject
		err := mq.Subscribe(subject, func(data []byte) error {
			h.Broadcast(subject, data)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Broadcast pushes a single event to all connected clients.
func (h *Hub) Broadcast(subject string, data []byte) {
	payload, err := json.Marshal(event{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.log.Warn("Failed to encode dashboard event", zap.String("subject", subject), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("Dashboard broadcast buffer full, dropping event", zap.String("subject", subject))
	}
}

// ClientCount reports the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) AddClient(conn *websocket.Conn, userID string) {
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), userID: userID}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		// Clients only receive; the read loop exists to process control
		// frames and detect disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	// Hub closed the channel.
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
