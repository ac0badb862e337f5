// Package message defines the envelope exchanged between runtimes and the
// services they host.
package message

import (
	"errors"
	"fmt"

	"github.com/morezero/servicebus/pkg/codec"
)

const logPrefix = "message:message"

// Message types.
const (
	TypeService   = "service"
	TypeResponse  = "response"
	TypeBroadcast = "broadcast"
	TypeStatus    = "status"
)

// ErrMalformed marks a payload that cannot be dispatched.
var ErrMalformed = errors.New("malformed message")

// Message is the wire envelope. Name and Method are required for dispatch.
type Message struct {
	MsgID     string `json:"msgId,omitempty"`
	Type      string `json:"type,omitempty"`
	GatewayID string `json:"gatewayId,omitempty"`
	Gateway   string `json:"gateway,omitempty"`
	Name      string `json:"name"`
	Method    string `json:"method"`
	Sender    string `json:"sender,omitempty"`
	Data      []any  `json:"data"`
}

// New builds a service message addressed to name.method.
func New(name, method string, data ...any) *Message {
	if data == nil {
		data = []any{}
	}
	return &Message{
		Type:   TypeService,
		Name:   name,
		Method: method,
		Data:   data,
	}
}

// Args returns the positional arguments, never nil.
func (m *Message) Args() []any {
	if m.Data == nil {
		return []any{}
	}
	return m.Data
}

// Validate checks the fields required for dispatch.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%s - nil message: %w", logPrefix, ErrMalformed)
	}
	if m.Name == "" {
		return fmt.Errorf("%s - missing name: %w", logPrefix, ErrMalformed)
	}
	if m.Method == "" {
		return fmt.Errorf("%s - missing method on %s: %w", logPrefix, m.Name, ErrMalformed)
	}
	return nil
}

// NewResponse addresses result back to the sender of req, using the
// conventional callback method of the request.
func NewResponse(req *Message, result any) *Message {
	return &Message{
		MsgID:  req.MsgID,
		Type:   TypeResponse,
		Name:   req.Sender,
		Method: codec.GetCallbackTopicName(req.Method),
		Sender: req.Name,
		Data:   []any{result},
	}
}

// Reply returns the message a duplex endpoint should write back after
// handling req, or nil when no reply is due.
func Reply(req *Message, result any) *Message {
	if req == nil || result == nil {
		return nil
	}
	switch req.Type {
	case TypeResponse, TypeBroadcast, TypeStatus:
		return nil
	}
	if req.MsgID == "" && req.Sender != "" {
		return nil
	}
	return NewResponse(req, result)
}
