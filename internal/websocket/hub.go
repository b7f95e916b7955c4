package websocket

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub maintains the set of open pages and broadcasts messages to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Outbound messages for every client.
	Broadcast chan []byte

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	count chan chan int
	stop  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	running bool
	stopped bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Broadcast:  make(chan []byte),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		count:      make(chan chan int),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop. It returns after Stop, and
// at once if the hub is already running or stopped.
func (h *Hub) Run() {
	h.mu.Lock()
	if h.running || h.stopped {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			log.Info().Int("total_clients", len(h.clients)).Str("page", client.Page).Msg("Client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Info().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Slow reader; drop it rather than stall every page.
					close(client.Send)
					delete(h.clients, client)
				}
			}
		case reply := <-h.count:
			reply <- len(h.clients)
		case <-h.stop:
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			return
		}
	}
}

// Publish broadcasts action/payload to every open page. It is a no-op once
// the hub is stopped.
func (h *Hub) Publish(action string, payload any) {
	msg := NewMessage(action, payload)
	select {
	case h.Broadcast <- msg:
	case <-h.stop:
	}
}

// ClientCount returns the number of connected pages.
func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.stop:
		return 0
	}
}

func (h *Hub) register(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.stop:
	}
}

// Stop ends Run and closes every client's send channel. It is safe to call
// more than once, and on a hub whose Run never started.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.stopped {
		h.stopped = true
		close(h.stop)
		if !h.running {
			close(h.done)
		}
	}
	h.mu.Unlock()
	<-h.done
}
