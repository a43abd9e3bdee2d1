package ws

const (
	// client - server
	MsgMove     = "move"
	MsgReply    = "reply"
	MsgDecision = "decision"
	MsgPing     = "ping"

	// server - client
	MsgReady  = "ready"
	MsgRender = "render"
	MsgPong   = "pong"
	MsgError  = "error"
)
