package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lingotutor/cache"
	"lingotutor/logger"
)

// Hub pushes cache invalidations to connected browsers so they refetch the
// views they hold. Each connection only hears about its own user's keys and
// is closed when the session that opened it signs out.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	store      cache.Store
	log        *logger.Logger
}

type Client struct {
	hub         *Hub
	id          string
	socket      *websocket.Conn
	send        chan []byte
	userID      uuid.UUID
	sessionKey  string
	unsubscribe func()
	closeOnce   sync.Once
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func NewHub(store cache.Store, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		store:      store,
		log:        log.With("service", "Hub"),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			client.unsubscribe = h.store.Subscribe(cache.UserPrefix(client.userID)+"*", func(key string) {
				if key == client.sessionKey {
					client.close(websocket.CloseNormalClosure, "signed out")
					return
				}
				h.sendTo(client, "invalidate", map[string]string{"key": key})
			})
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client registered", "client_id", client.id, "user_id", client.userID, "total", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				if client.unsubscribe != nil {
					client.unsubscribe()
				}
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client unregistered", "client_id", client.id, "user_id", client.userID, "total", total)
		}
	}
}

// sendTo queues a message for one client, dropping it when the client's
// buffer is full.
func (h *Hub) sendTo(client *Client, messageType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: messageType, Payload: payload})
	if err != nil {
		h.log.Error("Error marshaling message", "error", err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
		h.log.Warn("Client send buffer full, dropping message", "client_id", client.id, "type", messageType)
	}
}

func (h *Hub) ConnectedClients(userID uuid.UUID) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	n := 0
	for client := range h.clients {
		if client.userID == userID {
			n++
		}
	}
	return n
}

// RegisterClient attaches conn to the session identified by userID and
// tokenID.
func (h *Hub) RegisterClient(conn *websocket.Conn, userID uuid.UUID, tokenID string) *Client {
	client := &Client{
		hub:        h,
		id:         uuid.NewString(),
		socket:     conn,
		send:       make(chan []byte, 256),
		userID:     userID,
		sessionKey: cache.SessionKey(userID, tokenID),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// close sends a close frame and drops the connection. The read pump then
// unregisters the client.
func (c *Client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		if err := c.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline); err != nil {
			c.hub.log.Debug("Close frame not sent", "client_id", c.id, "error", err)
		}
		c.socket.Close()
		c.hub.log.Debug("Client closed", "client_id", c.id, "reason", reason)
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("WebSocket read error", "client_id", c.id, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.Debug("Error unmarshaling message", "client_id", c.id, "error", err)
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.socket.Close()
	}()

	for message := range c.send {
		w, err := c.socket.NextWriter(websocket.TextMessage)
		if err != nil {
			return
		}
		w.Write(message)
		if err := w.Close(); err != nil {
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "ping":
		c.hub.sendTo(c, "pong", "pong")
	default:
		c.hub.log.Debug("Unknown message type", "client_id", c.id, "type", msg.Type)
	}
}
