package bus

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/events"
	"github.com/morezero/servicebus/pkg/service"
)

const servicesLogPrefix = "bus:services"

// Registry change topics.
const (
	MethodRegistered = "registered"
	MethodReleased   = "released"
)

// RegisterService adds svc to the registry. An existing entry under the
// same fullname is kept and returned unchanged, with no events. A new entry
// gets its stored config applied, then registered and getRegistry fire.
func (rt *Runtime) RegisterService(svc service.Interface) service.Interface {
	existing, added := rt.registry.RegisterIfAbsent(svc.FullName(), svc)
	if !added {
		return existing
	}

	cfg, err := rt.LoadServiceConfig(svc.FullName())
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - could not load config for %s: %v", servicesLogPrefix, svc.FullName(), err))
	} else if cfg != nil {
		svc.ApplyConfig(cfg)
	}

	rt.metrics.SetServices(rt.registry.Len())
	slog.Info(fmt.Sprintf("%s - Registered %s (%s)", servicesLogPrefix, svc.FullName(), svc.TypeKey()))

	rt.Invoke(MethodRegistered, svc.Data())
	rt.Invoke(MethodGetRegistry)
	rt.publishState(events.ReasonRegistered, svc.FullName(), nil)
	return svc
}

// Register records a service descriptor received from a peer. Remote
// descriptors become proxies; a descriptor can never replace a local
// service.
func (rt *Runtime) Register(d *service.Data) (service.Interface, error) {
	if d == nil {
		return nil, fmt.Errorf("%s - nil service descriptor", servicesLogPrefix)
	}
	fullname := d.FullName
	if fullname == "" {
		fullname = codec.GetFullName(d.Name, d.ID)
	}
	id, ok := codec.GetID(fullname)
	if !ok || id == "" || codec.GetName(fullname) == "" {
		return nil, fmt.Errorf("%s - descriptor without a fullname: %q", servicesLogPrefix, fullname)
	}

	if svc, ok := rt.registry.GetService(fullname); ok {
		return svc, nil
	}
	if id == rt.ID() {
		return nil, fmt.Errorf("%s - %s: %w", servicesLogPrefix, fullname, ErrServiceNotFound)
	}

	proxy := *d
	proxy.ID = id
	proxy.Name = codec.GetName(fullname)
	proxy.FullName = fullname
	return rt.RegisterService(service.NewProxy(&proxy, rt)), nil
}

// UnregisterService removes fullname from the registry. released fires only
// when an entry was actually removed.
func (rt *Runtime) UnregisterService(fullname string) {
	if !rt.registry.Release(fullname) {
		return
	}
	rt.metrics.SetServices(rt.registry.Len())
	slog.Info(fmt.Sprintf("%s - Released %s", servicesLogPrefix, fullname))

	rt.Invoke(MethodReleased, fullname)
	rt.publishState(events.ReasonReleased, fullname, nil)
}

// ReleaseServiceByName releases a local service. The runtime itself and
// services of other runtimes are refused.
func (rt *Runtime) ReleaseServiceByName(name string) error {
	fullname := codec.GetFullName(name, rt.ID())
	if fullname == rt.FullName() {
		return fmt.Errorf("%s - %s: %w", servicesLogPrefix, fullname, ErrProtectedService)
	}
	if id, _ := codec.GetID(fullname); id != rt.ID() {
		return fmt.Errorf("%s - %s: %w", servicesLogPrefix, fullname, ErrRemoteService)
	}
	svc, ok := rt.registry.GetService(fullname)
	if !ok {
		return fmt.Errorf("%s - %s: %w", servicesLogPrefix, fullname, ErrServiceNotFound)
	}

	svc.ReleaseService()
	rt.UnregisterService(fullname)
	return nil
}

// GetService looks up a service; a bare name is qualified with the local id.
func (rt *Runtime) GetService(name string) (service.Interface, bool) {
	return rt.registry.GetService(codec.GetFullName(name, rt.ID()))
}

// GetRegistry returns a descriptor for every registered service.
func (rt *Runtime) GetRegistry() map[string]*service.Data {
	entries := rt.registry.GetRegistry()
	out := make(map[string]*service.Data, len(entries))
	for name, svc := range entries {
		out[name] = svc.Data()
	}
	return out
}

// GetServiceNames returns every registered fullname, sorted.
func (rt *Runtime) GetServiceNames() []string {
	return rt.registry.GetServiceNames()
}

// GetLocalServiceNames returns the fullnames hosted by this runtime, sorted.
func (rt *Runtime) GetLocalServiceNames() []string {
	var out []string
	for _, name := range rt.registry.GetServiceNames() {
		if id, _ := codec.GetID(name); id == rt.ID() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// startLocal starts or stops a local service by name.
func (rt *Runtime) startLocal(name string, start bool) error {
	fullname := codec.GetFullName(name, rt.ID())
	if id, _ := codec.GetID(fullname); id != rt.ID() {
		return fmt.Errorf("%s - %s: %w", servicesLogPrefix, fullname, ErrRemoteService)
	}
	svc, ok := rt.registry.GetService(fullname)
	if !ok {
		return fmt.Errorf("%s - %s: %w", servicesLogPrefix, fullname, ErrServiceNotFound)
	}
	if start {
		svc.StartService()
	} else {
		svc.StopService()
	}
	return nil
}

// releaseRemote drops a proxy after its runtime released the service.
func (rt *Runtime) releaseRemote(fullname string) bool {
	id, ok := codec.GetID(fullname)
	if !ok || id == rt.ID() {
		return false
	}
	if _, ok := rt.registry.GetService(fullname); !ok {
		return false
	}
	rt.UnregisterService(fullname)
	return true
}
