package bus

import (
	"fmt"
	"log/slog"
)

const routesLogPrefix = "bus:routes"

// RouteEntry says which gateway service, and which of its connections,
// reaches a remote runtime.
type RouteEntry struct {
	GatewayID string `json:"gatewayId"`
	Gateway   string `json:"gateway"`
}

// AddRoute upserts the route to remoteID and reports whether it changed.
func (rt *Runtime) AddRoute(remoteID, gatewayID, gateway string) bool {
	entry := RouteEntry{GatewayID: gatewayID, Gateway: gateway}

	rt.routesMu.Lock()
	old, ok := rt.routes[remoteID]
	changed := !ok || old != entry
	rt.routes[remoteID] = entry
	rt.routesMu.Unlock()

	if changed {
		slog.Debug(fmt.Sprintf("%s - Route %s via %s (%s)", routesLogPrefix, remoteID, gatewayID, gateway))
	}
	return changed
}

// RemoveRoute deletes the route to remoteID and reports whether one existed.
func (rt *Runtime) RemoveRoute(remoteID string) bool {
	rt.routesMu.Lock()
	defer rt.routesMu.Unlock()
	if _, ok := rt.routes[remoteID]; !ok {
		return false
	}
	delete(rt.routes, remoteID)
	return true
}

// RouteTable returns a copy of the learned routes.
func (rt *Runtime) RouteTable() map[string]RouteEntry {
	rt.routesMu.RLock()
	defer rt.routesMu.RUnlock()
	out := make(map[string]RouteEntry, len(rt.routes))
	for k, v := range rt.routes {
		out[k] = v
	}
	return out
}

// SetDefaultRoute sends traffic for unknown runtime ids through the given
// connection. An empty gatewayID clears it.
func (rt *Runtime) SetDefaultRoute(gatewayID string) {
	rt.routesMu.Lock()
	defer rt.routesMu.Unlock()
	if gatewayID == "" {
		rt.defaultRoute = nil
		return
	}
	rt.defaultRoute = &RouteEntry{GatewayID: gatewayID, Gateway: rt.FullName()}
	slog.Info(fmt.Sprintf("%s - Default route via %s", routesLogPrefix, gatewayID))
}

// DefaultRoute returns the default route, if set.
func (rt *Runtime) DefaultRoute() (RouteEntry, bool) {
	rt.routesMu.RLock()
	defer rt.routesMu.RUnlock()
	if rt.defaultRoute == nil {
		return RouteEntry{}, false
	}
	return *rt.defaultRoute, true
}

// GetGateway resolves the gateway service that reaches remoteID, falling
// back to the default route. It returns nil when none is known.
func (rt *Runtime) GetGateway(remoteID string) Gateway {
	entry, _, ok := rt.routeFor(remoteID)
	if !ok {
		return nil
	}
	svc, ok := rt.registry.GetService(entry.Gateway)
	if !ok {
		return nil
	}
	gw, ok := svc.(Gateway)
	if !ok {
		return nil
	}
	return gw
}

func (rt *Runtime) routeFor(remoteID string) (entry RouteEntry, viaDefault, ok bool) {
	rt.routesMu.RLock()
	defer rt.routesMu.RUnlock()
	if entry, ok := rt.routes[remoteID]; ok {
		return entry, false, true
	}
	if rt.defaultRoute != nil {
		return *rt.defaultRoute, true, true
	}
	return RouteEntry{}, false, false
}

// learnRoute records how a remote sender reached us.
func (rt *Runtime) learnRoute(remoteID, gatewayID, gateway string) {
	if rt.AddRoute(remoteID, gatewayID, gateway) {
		rt.metrics.RecordRouteLearned()
	}
}

// pruneRoutesVia drops every route (and the default route) through gatewayID.
func (rt *Runtime) pruneRoutesVia(gatewayID string) int {
	rt.routesMu.Lock()
	defer rt.routesMu.Unlock()
	n := 0
	for id, entry := range rt.routes {
		if entry.GatewayID == gatewayID {
			delete(rt.routes, id)
			n++
		}
	}
	if rt.defaultRoute != nil && rt.defaultRoute.GatewayID == gatewayID {
		rt.defaultRoute = nil
	}
	return n
}
