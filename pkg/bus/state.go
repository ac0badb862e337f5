package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/commsutil"
	"github.com/morezero/servicebus/pkg/events"
	"github.com/morezero/servicebus/pkg/message"
	"github.com/morezero/servicebus/pkg/metrics"
	"github.com/morezero/servicebus/pkg/service"
)

const stateLogPrefix = "bus:state"

// MethodOnBroadcastState is the callback every connection receives.
const MethodOnBroadcastState = "onBroadcastState"

// State is the observable state of a runtime.
type State struct {
	service.Data
	ServiceNames []string               `json:"serviceNames"`
	RouteTable   map[string]RouteEntry  `json:"routeTable"`
	DefaultRoute *RouteEntry            `json:"defaultRoute,omitempty"`
	Connections  []ConnectionInfo       `json:"connections"`
	Processes    map[string]ProcessData `json:"processes"`
	Hosts        map[string]HostData    `json:"hosts"`
}

// State snapshots the runtime.
func (rt *Runtime) State() *State {
	st := &State{
		Data:         *rt.Data(),
		ServiceNames: rt.GetServiceNames(),
		RouteTable:   rt.RouteTable(),
		Connections:  rt.Connections(),
		Processes:    rt.Processes(),
		Hosts:        rt.Hosts(),
	}
	if def, ok := rt.DefaultRoute(); ok {
		st.DefaultRoute = &def
	}
	return st
}

// BroadcastState invokes broadcastState: the state goes to every open
// connection and to every broadcastState subscriber.
func (rt *Runtime) BroadcastState() *State {
	st, _ := rt.Invoke(service.MethodBroadcastState).(*State)
	return st
}

// broadcastState pushes the state to every connection. Subscribers are
// reached by the fan-out of the invoking call.
func (rt *Runtime) broadcastState() *State {
	st := rt.State()

	for _, conn := range rt.connectionList() {
		msg := message.New(codec.GetFullName(DefaultName, conn.ClientID()), MethodOnBroadcastState, st)
		msg.Type = message.TypeBroadcast
		msg.Sender = rt.FullName()

		data, err := commsutil.EncodeMessage(msg)
		if err != nil {
			rt.metrics.RecordDeliveryFailure(metrics.ReasonEncode)
			slog.Error(fmt.Sprintf("%s - failed to encode state: %v", stateLogPrefix, err))
			return st
		}
		if err := conn.Send(data); err != nil {
			rt.metrics.RecordDeliveryFailure(metrics.ReasonQueueFull)
			slog.Warn(fmt.Sprintf("%s - state not sent to %s: %v", stateLogPrefix, conn.ClientID(), err))
		}
	}

	rt.publishState(events.ReasonBroadcast, "", st)
	return st
}

func (rt *Runtime) publishState(reason, subject string, st *State) {
	event := &events.StateChangedEvent{
		RuntimeID: rt.ID(),
		Reason:    reason,
		Services:  rt.registry.GetServiceNames(),
		Subject:   subject,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if st != nil {
		event.State = st
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := rt.publisher.PublishStateChanged(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish %s event: %v", stateLogPrefix, reason, err))
	}
}
