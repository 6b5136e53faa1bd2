package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"auction-engine/internal/events"
	"auction-engine/utils"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans committed auction events out to websocket subscribers of that auction.
// A subscriber whose buffer is full is disconnected instead of slowing down the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*client]struct{} // key: auctionID
}

type client struct {
	id        string
	auctionID string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[*client]struct{})}
}

// Publish implements events.Publisher
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("live: failed to marshal event: %w", err)
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.subscribers[event.AuctionID] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		utils.Warn("live: dropping slow subscriber", map[string]any{
			"client_id":  c.id,
			"auction_id": c.auctionID,
		})
		h.unregister(c)
	}
	return nil
}

// Subscribe upgrades the request to a websocket and streams events of auctionID to it.
// It blocks until the peer disconnects or the hub is closed.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, auctionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("live: upgrade failed: %w", err)
	}

	c := &client{
		id:        utils.GenerateID(),
		auctionID: auctionID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
	h.register(c)
	utils.Info("live: subscriber connected", map[string]any{"client_id": c.id, "auction_id": auctionID})

	go c.writePump()
	c.readPump()

	h.unregister(c)
	utils.Info("live: subscriber disconnected", map[string]any{"client_id": c.id, "auction_id": auctionID})
	return nil
}

// SubscriberCount returns the number of connections watching auctionID
func (h *Hub) SubscriberCount(auctionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[auctionID])
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*client
	for _, set := range h.subscribers {
		for c := range set {
			all = append(all, c)
		}
	}
	h.subscribers = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subscribers[c.auctionID]
	if !ok {
		set = make(map[*client]struct{})
		h.subscribers[c.auctionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.subscribers[c.auctionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subscribers, c.auctionID)
		}
	}
	h.mu.Unlock()
	c.close()
}

// close stops the write pump, which then closes the connection
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages; it exists to process control frames and detect disconnects
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				utils.Warn("live: read error", map[string]any{"client_id": c.id, "error": err.Error()})
			}
			return
		}
	}
}
