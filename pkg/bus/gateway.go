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

const gatewayLogPrefix = "bus:gateway"

// Gateway delivers a message to the runtime named by its target id.
type Gateway interface {
	SendRemote(msg *message.Message) error
}

// SendRemote forwards msg over the connection that reaches its target
// runtime. It never blocks: the frame is queued on the connection and
// failures are reported as DELIVERY_FAILURE and returned.
func (rt *Runtime) SendRemote(msg *message.Message) error {
	targetID, _ := codec.GetID(msg.Name)

	entry, viaDefault, ok := rt.routeFor(targetID)
	if !ok {
		return rt.deliveryFailure(msg, metrics.ReasonNoGateway,
			fmt.Errorf("%s - no route to %s: %w", gatewayLogPrefix, targetID, ErrNoConnection))
	}
	// The default route must not bounce a message back where it came from.
	if viaDefault && msg.GatewayID != "" && entry.GatewayID == msg.GatewayID {
		return rt.deliveryFailure(msg, metrics.ReasonNoGateway,
			fmt.Errorf("%s - no route to %s other than its arrival connection %s: %w", gatewayLogPrefix, targetID, msg.GatewayID, ErrNoConnection))
	}

	conn, ok := rt.Connection(entry.GatewayID)
	if !ok {
		return rt.deliveryFailure(msg, metrics.ReasonNoConnection,
			fmt.Errorf("%s - connection %s to %s is gone: %w", gatewayLogPrefix, entry.GatewayID, targetID, ErrNoConnection))
	}

	// Arrival stamps are connection-local; the next hop sets its own.
	out := *msg
	out.GatewayID = ""
	out.Gateway = ""

	data, err := commsutil.EncodeMessage(&out)
	if err != nil {
		return rt.deliveryFailure(msg, metrics.ReasonEncode,
			fmt.Errorf("%s - failed to encode %s.%s: %w", gatewayLogPrefix, msg.Name, msg.Method, err))
	}

	if err := conn.Send(data); err != nil {
		reason := metrics.ReasonClosed
		if errors.Is(err, ErrQueueFull) {
			reason = metrics.ReasonQueueFull
		}
		return rt.deliveryFailure(msg, reason,
			fmt.Errorf("%s - failed to send %s.%s via %s: %w", gatewayLogPrefix, msg.Name, msg.Method, entry.GatewayID, err))
	}

	rt.metrics.RecordMessage(metrics.OutcomeForwarded)
	return nil
}

func (rt *Runtime) deliveryFailure(msg *message.Message, reason string, err error) error {
	rt.metrics.RecordDeliveryFailure(reason)
	rt.reportFailure(msg, service.KeyDeliveryFailure, err.Error())
	return err
}

// reportFailure publishes an error status unless msg is itself a status,
// which is only logged.
func (rt *Runtime) reportFailure(msg *message.Message, key, detail string) {
	if msg != nil && msg.Type == message.TypeStatus {
		slog.Warn(fmt.Sprintf("%s - %s (status delivery, not re-published)", gatewayLogPrefix, detail))
		return
	}
	rt.Report(service.LevelError, key, detail)
}
