package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/servicebus/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// Headers set on every published state event, so subscribers can filter
// without decoding the body.
const (
	HeaderRuntime = "Servicebus-Runtime"
	HeaderReason  = "Servicebus-Reason"
)

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides commsutil.SubjectStateChanged.
	GlobalSubject string
}

// CommsPublisher publishes each event twice: on the runtime's own state
// subject and on the global one.
type CommsPublisher struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsPublisher returns a CommsPublisher on nc.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc, globalSubject: commsutil.SubjectStateChanged}
	if opts != nil && opts.GlobalSubject != "" {
		p.globalSubject = opts.GlobalSubject
	}
	return p
}

// PublishStateChanged implements EventPublisher.
func (p *CommsPublisher) PublishStateChanged(_ context.Context, event *StateChangedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	var errs []error
	for _, subject := range []string{commsutil.BuildStateSubject(event.RuntimeID), p.globalSubject} {
		msg := comms.NewMsg(subject)
		msg.Header.Set(HeaderRuntime, event.RuntimeID)
		msg.Header.Set(HeaderReason, event.Reason)
		msg.Data = data
		if err := p.nc.PublishMsg(msg); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			errs = append(errs, fmt.Errorf("%s - publish %s: %w", commsPublisherLogPrefix, subject, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Debug(fmt.Sprintf("%s - Published %s state event for %s", commsPublisherLogPrefix, event.Reason, event.RuntimeID))
	return nil
}
