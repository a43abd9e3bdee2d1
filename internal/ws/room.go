package ws

import (
	"sync"
	"time"
)

// Room holds the connections watching one group's board.
type Room struct {
	GuildID string

	mu        sync.RWMutex
	clients   map[*Client]struct{}
	createdAt time.Time
	lastSeen  time.Time
}

func NewRoom(guildID string) *Room {
	now := time.Now()
	return &Room{
		GuildID:   guildID,
		clients:   make(map[*Client]struct{}),
		createdAt: now,
		lastSeen:  now,
	}
}

func (r *Room) add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
	r.lastSeen = time.Now()
}

func (r *Room) remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	r.lastSeen = time.Now()
}

// Len returns how many connections are subscribed.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// broadcast queues msg on every client. A client whose buffer is full is
// skipped; it will catch up with the next render.
func (r *Room) broadcast(msg []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sent := 0
	for c := range r.clients {
		if c.enqueue(msg) {
			sent++
		}
	}
	return sent
}

func (r *Room) idleSince() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeen
}
