package bus

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/morezero/servicebus/pkg/events"
	"github.com/morezero/servicebus/pkg/metrics"
)

const connectionsLogPrefix = "bus:connections"

// RegisterConnection starts a connection over link and makes it the route
// to its own client id. A previous connection with the same client id is
// closed.
func (rt *Runtime) RegisterConnection(info ConnectionInfo, link Link) *Connection {
	if info.Created == 0 {
		info.Created = time.Now().UnixMilli()
	}
	clientID := info.ClientID
	conn := newConnection(info, link, rt.queueSize, func(err error) {
		rt.metrics.RecordDeliveryFailure(metrics.ReasonWrite)
		slog.Warn(fmt.Sprintf("%s - write to %s failed: %v", connectionsLogPrefix, clientID, err))
	})

	rt.connsMu.Lock()
	old := rt.conns[clientID]
	rt.conns[clientID] = conn
	n := len(rt.conns)
	rt.connsMu.Unlock()

	if old != nil {
		slog.Info(fmt.Sprintf("%s - Replacing connection %s", connectionsLogPrefix, clientID))
		_ = old.Close()
	}

	rt.AddRoute(clientID, clientID, rt.FullName())
	rt.metrics.SetConnections(n)
	slog.Info(fmt.Sprintf("%s - Connection %s registered (%s %s)", connectionsLogPrefix, clientID, info.Direction, info.Type))
	rt.publishState(events.ReasonConnected, clientID, nil)
	return conn
}

// Connection returns the live connection with the given client id.
func (rt *Runtime) Connection(clientID string) (*Connection, bool) {
	rt.connsMu.RLock()
	defer rt.connsMu.RUnlock()
	c, ok := rt.conns[clientID]
	return c, ok
}

// Connections describes every live connection, sorted by client id.
func (rt *Runtime) Connections() []ConnectionInfo {
	conns := rt.connectionList()
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Info())
	}
	return out
}

// OnDisconnect removes and closes the connection with the given client id.
// Learned routes through it are kept unless pruning is enabled.
func (rt *Runtime) OnDisconnect(clientID string) {
	rt.connsMu.Lock()
	conn, ok := rt.conns[clientID]
	if ok {
		delete(rt.conns, clientID)
	}
	n := len(rt.conns)
	rt.connsMu.Unlock()

	if !ok {
		return
	}
	rt.disconnected(conn, n)
}

// DisconnectConnection is OnDisconnect for a specific connection: it does
// nothing when conn has already been replaced under its client id.
func (rt *Runtime) DisconnectConnection(conn *Connection) {
	rt.connsMu.Lock()
	current, ok := rt.conns[conn.ClientID()]
	if ok && current == conn {
		delete(rt.conns, conn.ClientID())
	}
	n := len(rt.conns)
	rt.connsMu.Unlock()

	if !ok || current != conn {
		_ = conn.Close()
		return
	}
	rt.disconnected(conn, n)
}

func (rt *Runtime) disconnected(conn *Connection, remaining int) {
	clientID := conn.ClientID()
	_ = conn.Close()

	pruned := 0
	if rt.pruneRoutes {
		pruned = rt.pruneRoutesVia(clientID)
	}
	rt.metrics.SetConnections(remaining)
	slog.Info(fmt.Sprintf("%s - Connection %s closed (%d routes pruned)", connectionsLogPrefix, clientID, pruned))
	rt.publishState(events.ReasonDisconnected, clientID, nil)
}

func (rt *Runtime) connectionList() []*Connection {
	rt.connsMu.RLock()
	out := make([]*Connection, 0, len(rt.conns))
	for _, c := range rt.conns {
		out = append(out, c)
	}
	rt.connsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ClientID() < out[j].ClientID() })
	return out
}
