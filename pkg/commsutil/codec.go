package commsutil

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/servicebus/pkg/message"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// EncodeMessage serializes a message for the wire; data is always an array.
func EncodeMessage(msg *message.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%s - cannot encode nil message", codecLogPrefix)
	}
	if msg.Data == nil {
		out := *msg
		out.Data = []any{}
		msg = &out
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode %s.%s: %w", codecLogPrefix, msg.Name, msg.Method, err)
	}
	return data, nil
}

// DecodeMessage parses one wire frame. Errors wrap message.ErrMalformed.
func DecodeMessage(data []byte) (*message.Message, error) {
	var msg message.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%s - %w: %v", codecLogPrefix, message.ErrMalformed, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.Data == nil {
		msg.Data = []any{}
	}
	return &msg, nil
}
