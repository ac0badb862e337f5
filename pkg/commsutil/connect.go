// Package commsutil provides COMMS (NATS) connection helpers, subjects and
// the wire codec shared by every transport.
package commsutil

import (
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"
)

const logPrefix = "commsutil:connect"

const (
	dialTimeout     = 10 * time.Second
	reconnectWait   = 2 * time.Second
	reconnectBuffer = 8 * 1024 * 1024
)

// Options returns the connection options every runtime uses: reconnect
// forever, buffer while reconnecting, and log connection state changes.
func Options(name string) []comms.Option {
	return []comms.Option{
		comms.Name(name),
		comms.Timeout(dialTimeout),
		comms.ReconnectWait(reconnectWait),
		comms.MaxReconnects(-1),
		comms.ReconnectBufSize(reconnectBuffer),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - %s disconnected: %v", logPrefix, name, err))
			}
		}),
		comms.ReconnectHandler(func(nc *comms.Conn) {
			slog.Info(fmt.Sprintf("%s - %s reconnected to %s", logPrefix, name, nc.ConnectedUrl()))
		}),
		comms.ErrorHandler(func(_ *comms.Conn, sub *comms.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error(fmt.Sprintf("%s - %s async error on %q: %v", logPrefix, name, subject, err))
		}),
		comms.ClosedHandler(func(*comms.Conn) {
			slog.Debug(fmt.Sprintf("%s - %s connection closed", logPrefix, name))
		}),
	}
}

// Connect dials url with Options(name); extra options are applied after the
// defaults and win over them.
func Connect(url, name string, extra ...comms.Option) (*comms.Conn, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to COMMS at %s as %s", logPrefix, url, name))

	nc, err := comms.Connect(url, append(Options(name), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Connected to COMMS at %s", logPrefix, nc.ConnectedUrl()))
	return nc, nil
}
