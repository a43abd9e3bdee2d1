package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"number_merge_game/internal/service"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	commandTimeout = 10 * time.Second
)

type Client struct {
	UserID  string
	GuildID string
	Conn    *websocket.Conn
	Send    chan []byte

	Hub  *Hub
	Done chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(userID, guildID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		UserID:  userID,
		GuildID: guildID,
		Conn:    conn,
		Send:    make(chan []byte, 64),
		Hub:     hub,
		Done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Run subscribes the client to its group and blocks until it disconnects.
func (c *Client) Run(initial *service.RenderRequest) {
	go c.writePump()

	if msg, err := encode(MsgReady, nil); err == nil {
		c.enqueue(msg)
	}
	c.Hub.register(c)
	if initial != nil {
		if msg, err := encode(MsgRender, initial); err == nil {
			c.enqueue(msg)
		}
	}

	c.readPump()
}

func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

//read
func (c *Client) readPump() {
	defer func() {
		c.Hub.OnDisconnect(c)
		c.close()
		_ = c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.Hub.log.Debug("read error", "user_id", c.UserID, "err", err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("malformed message", "")
		return
	}
	if env.Type == MsgPing {
		if msg, err := encode(MsgPong, nil); err == nil {
			c.enqueue(msg)
		}
		return
	}

	var p CommandPayload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("malformed payload", "")
			return
		}
	}

	cmd := c.Hub.commander()
	if cmd == nil {
		c.sendError("commands are not available", "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var err error
	switch env.Type {
	case MsgMove:
		_, err = cmd.Move(ctx, c.GuildID, c.UserID, p.Directions)
	case MsgReply:
		_, err = cmd.Reply(ctx, c.GuildID, c.UserID, p.Text)
	case MsgDecision:
		_, err = cmd.Decide(ctx, c.GuildID, c.UserID, p.Choice)
	default:
		c.sendError("unknown message type "+env.Type, "")
		return
	}
	// successful commands reach every subscriber through Publish
	if err != nil {
		c.sendError(err.Error(), service.KindOf(err).String())
	}
}

func (c *Client) sendError(message, kind string) {
	if msg, err := encode(MsgError, ErrorPayload{Message: message, Kind: kind}); err == nil {
		c.enqueue(msg)
	}
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Hub.log.Debug("write error", "user_id", c.UserID, "err", err)
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
