package websocket

import (
	"context"
	"encoding/json"

	"github.com/bloomhouse/cartsync/pkg/logger"
)

// EventCartUpdated is the only event type pushed to feed clients.
const EventCartUpdated = "cart.updated"

// Event is one message on the cart feed.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Client is one feed session. A user may hold several, one per device.
type Client struct {
	Hub    *Hub
	Conn   *Conn
	UserID string
	Send   chan []byte
}

type delivery struct {
	userID  string
	message []byte
}

// Hub fans cart changes out to every session of the owning user.
type Hub struct {
	clients    map[string][]*Client
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	sessions   chan sessionQuery
}

type sessionQuery struct {
	userID string
	reply  chan int
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		deliver:    make(chan delivery, 1024),
		sessions:   make(chan sessionQuery),
	}
}

// Run owns the client table until ctx is done, then closes every session.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for userID, list := range h.clients {
				for _, client := range list {
					close(client.Send)
				}
				delete(h.clients, userID)
			}
			return

		case client := <-h.register:
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			logger.Info("Cart feed client registered", map[string]interface{}{
				"user_id":        client.UserID,
				"total_sessions": len(h.clients[client.UserID]),
			})

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.deliver:
			for _, client := range h.clients[d.userID] {
				select {
				case client.Send <- d.message:
				default:
					logger.Warn("Cart feed send buffer full, disconnecting", map[string]interface{}{
						"user_id": d.userID,
					})
					h.remove(client)
				}
			}

		case q := <-h.sessions:
			q.reply <- len(h.clients[q.userID])
		}
	}
}

func (h *Hub) remove(client *Client) {
	list, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	kept := make([]*Client, 0, len(list))
	found := false
	for _, c := range list {
		if c == client {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return
	}
	if len(kept) == 0 {
		delete(h.clients, client.UserID)
	} else {
		h.clients[client.UserID] = kept
	}
	close(client.Send)

	logger.Info("Cart feed client unregistered", map[string]interface{}{
		"user_id":            client.UserID,
		"remaining_sessions": len(kept),
	})
}

// NotifyCartChanged pushes the new cart to the user's sessions. Messages are
// dropped when the hub is saturated; clients refetch on the next change.
func (h *Hub) NotifyCartChanged(userID string, cart interface{}) {
	data, err := json.Marshal(Event{Type: EventCartUpdated, Data: cart})
	if err != nil {
		logger.Error("Failed to marshal cart event", err, map[string]interface{}{
			"user_id": userID,
		})
		return
	}

	select {
	case h.deliver <- delivery{userID: userID, message: data}:
	default:
		logger.Warn("Cart feed channel full, event dropped", map[string]interface{}{
			"user_id": userID,
		})
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Sessions returns the number of open sessions of userID. It must not be
// called after Run returned.
func (h *Hub) Sessions(userID string) int {
	reply := make(chan int, 1)
	h.sessions <- sessionQuery{userID: userID, reply: reply}
	return <-reply
}
