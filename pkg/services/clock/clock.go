// Package clock is a service that publishes the current epoch on a timer.
package clock

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/service"
)

const logPrefix = "clock:clock"

// TypeKey is the service type of a clock.
const TypeKey = "Clock"

// DefaultIntervalMs is the tick interval when none is configured.
const DefaultIntervalMs = 1000

// Clock methods.
const (
	MethodPublishEpoch = "publishEpoch"
	MethodStartClock   = "startClock"
	MethodStopClock    = "stopClock"
	MethodSetInterval  = "setInterval"
	MethodIsRunning    = "isRunning"
)

// Config keys.
const (
	ConfigIntervalMs = "intervalMs"
	ConfigStart      = "start"
)

// Clock publishes the epoch in milliseconds every interval while its
// config says start and the service is ready. Listeners subscribe to
// publishEpoch.
type Clock struct {
	*service.Service

	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
}

// Factory builds a clock; it has the signature runtimes register per type.
func Factory(host service.Host, fullname string) (service.Interface, error) {
	return New(host, fullname), nil
}

// New creates a clock named name on host.
func New(host service.Host, name string) *Clock {
	c := &Clock{}
	c.Service = service.New(service.Options{
		Name:    name,
		TypeKey: TypeKey,
		Host:    host,
		Config: map[string]any{
			ConfigIntervalMs: DefaultIntervalMs,
			ConfigStart:      false,
		},
		Hooks: service.Hooks{
			OnStart: func() error {
				c.configure(c.Config())
				return nil
			},
			OnStop:   c.halt,
			OnConfig: c.configure,
		},
	})

	c.Handle(MethodPublishEpoch, func([]any) (any, error) {
		return time.Now().UnixMilli(), nil
	})

	c.Handle(MethodStartClock, func(args []any) (any, error) {
		cfg := c.Config()
		if codec.Has(args, 0) {
			ms, err := codec.Int(args, 0)
			if err != nil {
				return nil, err
			}
			if ms <= 0 {
				return nil, fmt.Errorf("%s - interval must be positive, got %d", logPrefix, ms)
			}
			cfg[ConfigIntervalMs] = ms
		}
		cfg[ConfigStart] = true
		c.ApplyConfig(cfg)
		return c.IsRunning(), nil
	})

	c.Handle(MethodStopClock, func([]any) (any, error) {
		cfg := c.Config()
		cfg[ConfigStart] = false
		c.ApplyConfig(cfg)
		return c.IsRunning(), nil
	})

	c.Handle(MethodSetInterval, func(args []any) (any, error) {
		ms, err := codec.Int(args, 0)
		if err != nil {
			return nil, err
		}
		if ms <= 0 {
			return nil, fmt.Errorf("%s - interval must be positive, got %d", logPrefix, ms)
		}
		cfg := c.Config()
		cfg[ConfigIntervalMs] = ms
		c.ApplyConfig(cfg)
		return ms, nil
	})

	c.Handle(MethodIsRunning, func([]any) (any, error) { return c.IsRunning(), nil })

	return c
}

// IsRunning reports whether the timer is running.
func (c *Clock) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Interval returns the interval of the running timer, or zero.
func (c *Clock) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// configure reconciles the timer with cfg. Nothing runs before the
// service is started.
func (c *Clock) configure(cfg map[string]any) {
	interval := time.Duration(DefaultIntervalMs) * time.Millisecond
	if ms, err := codec.Int([]any{cfg[ConfigIntervalMs]}, 0); err == nil && ms > 0 {
		interval = time.Duration(ms) * time.Millisecond
	}
	start, _ := codec.Bool([]any{cfg[ConfigStart]}, 0)

	if !start || !c.IsReady() {
		c.halt()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		if c.interval == interval {
			return
		}
		close(c.stop)
	}
	c.stop = make(chan struct{})
	c.interval = interval
	go c.run(interval, c.stop)
	slog.Info(fmt.Sprintf("%s - %s ticking every %s", logPrefix, c.FullName(), interval))
}

// halt stops the timer, leaving the config as is.
func (c *Clock) halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	c.stop = nil
	c.interval = 0
	slog.Info(fmt.Sprintf("%s - %s stopped", logPrefix, c.FullName()))
}

func (c *Clock) run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Invoke(MethodPublishEpoch)
		}
	}
}
