package websocket

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// SendJSON marshals v and sends it as a text frame.
func (s *Session) SendJSON(v any) (err error) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	return s.Send(string(b))
}

// Get looks path up in a JSON text payload. Non-JSON payloads yield an
// empty result.
func (f DecodedFrame) Get(path string) gjson.Result {
	if f.Kind != FrameText || !gjson.ValidBytes(f.Payload) {
		return gjson.Result{}
	}
	return gjson.GetBytes(f.Payload, path)
}
