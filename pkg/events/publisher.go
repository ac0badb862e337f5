package events

import (
	"context"
	"errors"
)

// EventPublisher carries runtime state events off-process.
type EventPublisher interface {
	PublishStateChanged(ctx context.Context, event *StateChangedEvent) error
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(ctx context.Context, event *StateChangedEvent) error

// PublishStateChanged calls f.
func (f PublisherFunc) PublishStateChanged(ctx context.Context, event *StateChangedEvent) error {
	return f(ctx, event)
}

// Discard drops every event.
var Discard EventPublisher = PublisherFunc(func(context.Context, *StateChangedEvent) error { return nil })

// Fanout publishes each event to every publisher in order. All of them are
// tried; their errors are joined.
type Fanout []EventPublisher

// PublishStateChanged implements EventPublisher.
func (f Fanout) PublishStateChanged(ctx context.Context, event *StateChangedEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishStateChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
