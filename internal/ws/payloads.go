package ws

import "encoding/json"

// Envelope wraps every frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// client → server
type CommandPayload struct {
	Directions string `json:"directions,omitempty"` // move: "上下左右" or "udlr"
	Text       string `json:"text,omitempty"`       // reply
	Choice     string `json:"choice,omitempty"`     // decision
}

// server → client
type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func encode(msgType string, data any) ([]byte, error) {
	env := Envelope{Type: msgType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
