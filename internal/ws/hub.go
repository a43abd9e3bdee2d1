package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"number_merge_game/internal/domain"
	"number_merge_game/internal/logger"
	"number_merge_game/internal/service"
)

// Commander is the part of the session service a socket can drive.
type Commander interface {
	Move(ctx context.Context, guildID, userID, directions string) (*service.Outcome, error)
	Reply(ctx context.Context, guildID, userID, text string) (*service.Outcome, error)
	Decide(ctx context.Context, guildID, userID, choice string) (*service.Outcome, error)
	State(ctx context.Context, guildID string) (*domain.Session, *service.RenderRequest, error)
}

// Hub fans render requests out to the rooms of their groups. It is the
// session service's Publisher.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	commands Commander
	log      *slog.Logger
}

func NewHub(commands Commander) *Hub {
	return &Hub{
		rooms:    make(map[string]*Room),
		commands: commands,
		log:      logger.With("component", "ws"),
	}
}

// SetCommander attaches the session service after construction, since the
// service itself needs the hub as its publisher.
func (h *Hub) SetCommander(c Commander) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = c
}

func (h *Hub) commander() Commander {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.commands
}

// Publish implements service.Publisher.
func (h *Hub) Publish(_ context.Context, r service.RenderRequest) {
	msg, err := encode(MsgRender, r)
	if err != nil {
		h.log.Error("failed to encode render", "guild_id", r.GuildID, "err", err)
		return
	}

	h.mu.RLock()
	room, ok := h.rooms[r.GuildID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	n := room.broadcast(msg)
	h.log.Debug("render published", "guild_id", r.GuildID, "event", r.Event, "clients", n)
}

func (h *Hub) register(c *Client) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.GuildID]
	if !ok {
		room = NewRoom(c.GuildID)
		h.rooms[c.GuildID] = room
	}
	room.add(c)
	return room
}

// OnDisconnect drops c from its room.
func (h *Hub) OnDisconnect(c *Client) {
	h.mu.RLock()
	room, ok := h.rooms[c.GuildID]
	h.mu.RUnlock()
	if ok {
		room.remove(c)
	}
	h.log.Debug("client disconnected", "guild_id", c.GuildID, "user_id", c.UserID)
}

// Rooms returns the number of groups with a room.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// StartCleanup removes empty rooms every interval until ctx is done.
func (h *Hub) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.cleanupEmptyRooms(interval)
			}
		}
	}()
}

func (h *Hub) cleanupEmptyRooms(idle time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for guildID, room := range h.rooms {
		if room.Len() == 0 && now.Sub(room.idleSince()) > idle {
			delete(h.rooms, guildID)
			h.log.Debug("cleaned up empty room", "guild_id", guildID)
		}
	}
}
