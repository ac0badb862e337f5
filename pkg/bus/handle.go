package bus

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/commsutil"
	"github.com/morezero/servicebus/pkg/message"
	"github.com/morezero/servicebus/pkg/metrics"
	"github.com/morezero/servicebus/pkg/service"
)

const handleLogPrefix = "bus:handle"

// HandleFrame decodes one inbound frame from conn and delivers it.
// Undecodable frames are reported as MALFORMED_MESSAGE.
func (rt *Runtime) HandleFrame(conn *Connection, data []byte) {
	msg, err := commsutil.DecodeMessage(data)
	if err != nil {
		rt.metrics.RecordMessage(metrics.OutcomeMalformed)
		from := ""
		if conn != nil {
			from = conn.ClientID()
		}
		rt.Report(service.LevelError, service.KeyMalformedMessage, fmt.Sprintf("malformed frame from %s: %v", from, err))
		return
	}
	rt.Deliver(conn, msg)
}

// Deliver handles msg as arrived on conn and queues the reply, if one is
// due, back on the same connection.
func (rt *Runtime) Deliver(conn *Connection, msg *message.Message) any {
	clientID := ""
	if conn != nil {
		clientID = conn.ClientID()
	}

	result := rt.HandleMessage(msg, clientID)

	reply := message.Reply(msg, result)
	if reply == nil || conn == nil {
		return result
	}
	data, err := commsutil.EncodeMessage(reply)
	if err != nil {
		rt.metrics.RecordDeliveryFailure(metrics.ReasonEncode)
		rt.reportFailure(msg, service.KeyDeliveryFailure, fmt.Sprintf("failed to encode reply to %s.%s: %v", msg.Name, msg.Method, err))
		return result
	}
	if err := conn.Send(data); err != nil {
		reason := metrics.ReasonClosed
		if errors.Is(err, ErrQueueFull) {
			reason = metrics.ReasonQueueFull
		}
		rt.metrics.RecordDeliveryFailure(reason)
		rt.reportFailure(msg, service.KeyDeliveryFailure, fmt.Sprintf("failed to reply to %s via %s: %v", msg.Sender, clientID, err))
	}
	return result
}

// HandleMessage stamps how msg arrived, learns the route back to its
// sender and routes it.
func (rt *Runtime) HandleMessage(msg *message.Message, clientID string) any {
	if msg == nil {
		return rt.Route(nil)
	}

	if msg.GatewayID == "" {
		msg.GatewayID = clientID
	}
	msg.Gateway = rt.FullName()

	if senderID, ok := codec.GetID(msg.Sender); ok && senderID != rt.ID() && msg.GatewayID != "" {
		rt.learnRoute(senderID, msg.GatewayID, msg.Gateway)
	}

	return rt.Route(msg)
}

// Route dispatches msg to a local service or forwards it toward the
// runtime that hosts it. Every failure is reported and yields nil.
func (rt *Runtime) Route(msg *message.Message) any {
	if err := msg.Validate(); err != nil {
		rt.metrics.RecordMessage(metrics.OutcomeMalformed)
		rt.reportFailure(msg, service.KeyMalformedMessage, err.Error())
		return nil
	}

	msg.Name = codec.GetFullName(msg.Name, rt.ID())
	targetID, _ := codec.GetID(msg.Name)

	if targetID != rt.ID() {
		gw := rt.GetGateway(targetID)
		if gw == nil {
			rt.metrics.RecordMessage(metrics.OutcomeUnknownTarget)
			rt.reportFailure(msg, service.KeyUnknownTarget,
				fmt.Sprintf("no gateway for remote id %s (%s.%s)", targetID, msg.Name, msg.Method))
			return nil
		}
		if err := gw.SendRemote(msg); err != nil {
			slog.Debug(fmt.Sprintf("%s - forward of %s.%s failed: %v", handleLogPrefix, msg.Name, msg.Method, err))
		}
		return nil
	}

	svc, ok := rt.registry.GetService(msg.Name)
	if !ok {
		rt.metrics.RecordMessage(metrics.OutcomeUnknownTarget)
		rt.reportFailure(msg, service.KeyUnknownTarget, fmt.Sprintf("service %s not found", msg.Name))
		return nil
	}

	rt.metrics.RecordMessage(metrics.OutcomeLocal)
	return svc.InvokeMsg(msg)
}
