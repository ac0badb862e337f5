package bus

import (
	"fmt"
	"log/slog"

	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/commsutil"
	"github.com/morezero/servicebus/pkg/message"
	"github.com/morezero/servicebus/pkg/service"
)

const handshakeLogPrefix = "bus:handshake"

// Handshake introduces this runtime to the peer remoteID reached over
// conn: it subscribes to the peer's registry and releases, asks for the
// registry, then registers our process, every local service and our host.
func (rt *Runtime) Handshake(conn *Connection, remoteID string) error {
	peer := codec.GetFullName(DefaultName, remoteID)
	self := rt.FullName()

	msgs := []*message.Message{
		message.New(peer, service.MethodAddListener, MethodGetRegistry, self, MethodOnRegistry),
		message.New(peer, service.MethodAddListener, MethodReleased, self, MethodOnReleased),
		message.New(peer, MethodGetRegistry),
		message.New(peer, MethodRegisterProcess, rt.process),
	}
	for _, name := range rt.GetLocalServiceNames() {
		if svc, ok := rt.registry.GetService(name); ok {
			msgs = append(msgs, message.New(peer, MethodRegister, svc.Data()))
		}
	}
	msgs = append(msgs, message.New(peer, MethodRegisterHost, LocalHost()))

	for _, msg := range msgs {
		msg.Sender = self
		data, err := commsutil.EncodeMessage(msg)
		if err != nil {
			return fmt.Errorf("%s - failed to encode %s: %w", handshakeLogPrefix, msg.Method, err)
		}
		if err := conn.Send(data); err != nil {
			return fmt.Errorf("%s - handshake with %s failed at %s: %w", handshakeLogPrefix, remoteID, msg.Method, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Handshake sent to %s via %s (%d messages)", handshakeLogPrefix, peer, conn.ClientID(), len(msgs)))
	return nil
}
