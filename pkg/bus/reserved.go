package bus

import (
	"fmt"
	"log/slog"

	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/semver"
	"github.com/morezero/servicebus/pkg/service"
)

const reservedLogPrefix = "bus:reserved"

// Methods answered by every runtime in addition to the service built-ins.
const (
	MethodRegister             = "register"
	MethodRegisterProcess      = "registerProcess"
	MethodRegisterHost         = "registerHost"
	MethodStartServiceType     = "startServiceType"
	MethodGetRegistry          = "getRegistry"
	MethodGetServiceNames      = "getServiceNames"
	MethodGetLocalServiceNames = "getLocalServiceNames"
	MethodGetRepo              = "getRepo"
	MethodGetServicePackage    = "getServicePackage"
	MethodGetID                = "getId"
	MethodGetRouteTable        = "getRouteTable"
	MethodGetConnections       = "getConnections"
	MethodGetProcesses         = "getProcesses"
	MethodGetHosts             = "getHosts"
	MethodOnRegistry           = "onRegistry"
	MethodOnReleased           = "onReleased"
)

func (rt *Runtime) registerHandlers() {
	rt.Handle(MethodRegister, func(args []any) (any, error) {
		var d service.Data
		if err := codec.Decode(args, 0, &d); err != nil {
			return nil, err
		}
		svc, err := rt.Register(&d)
		if err != nil {
			return nil, err
		}
		return svc.Data(), nil
	})

	rt.Handle(MethodRegisterProcess, func(args []any) (any, error) {
		var p ProcessData
		if err := codec.Decode(args, 0, &p); err != nil {
			return nil, err
		}
		return rt.RegisterProcess(p), nil
	})

	rt.Handle(MethodRegisterHost, func(args []any) (any, error) {
		var h HostData
		if err := codec.Decode(args, 0, &h); err != nil {
			return nil, err
		}
		rt.RegisterHost(h)
		return h.Hostname, nil
	})

	rt.Handle(service.MethodRelease, func(args []any) (any, error) {
		name, err := codec.String(args, 0)
		if err != nil {
			return nil, err
		}
		if err := rt.ReleaseServiceByName(name); err != nil {
			return nil, err
		}
		return true, nil
	})

	// Without a name these act on the runtime itself.
	rt.Handle(service.MethodStartService, func(args []any) (any, error) {
		return rt.startOrStop(args, true)
	})
	rt.Handle(service.MethodStopService, func(args []any) (any, error) {
		return rt.startOrStop(args, false)
	})

	rt.Handle(MethodStartServiceType, func(args []any) (any, error) {
		name, err := codec.String(args, 0)
		if err != nil {
			return nil, err
		}
		typeKey, err := codec.String(args, 1)
		if err != nil {
			return nil, err
		}
		svc, err := rt.StartServiceType(name, typeKey)
		if err != nil {
			return nil, err
		}
		return svc.Data(), nil
	})

	rt.Handle(MethodGetRegistry, func([]any) (any, error) { return rt.GetRegistry(), nil })
	rt.Handle(MethodGetServiceNames, func([]any) (any, error) { return rt.GetServiceNames(), nil })
	rt.Handle(MethodGetLocalServiceNames, func([]any) (any, error) { return rt.GetLocalServiceNames(), nil })
	rt.Handle(service.MethodBroadcastState, func([]any) (any, error) { return rt.broadcastState(), nil })

	rt.Handle(MethodGetRepo, func([]any) (any, error) {
		if rt.repo == nil {
			return nil, ErrNoRepo
		}
		return rt.repo.Packages()
	})

	rt.Handle(MethodGetServicePackage, func(args []any) (any, error) {
		if rt.repo == nil {
			return nil, ErrNoRepo
		}
		name, err := codec.String(args, 0)
		if err != nil {
			return nil, err
		}
		ref, err := semver.ParsePackageRef(name)
		if err != nil {
			return nil, err
		}
		rng, err := codec.OptionalString(args, 1, ref.Range)
		if err != nil {
			return nil, err
		}
		return rt.repo.GetServicePackage(ref.TypeKey, rng)
	})

	rt.Handle(MethodGetID, func([]any) (any, error) { return rt.ID(), nil })
	rt.Handle(MethodGetRouteTable, func([]any) (any, error) { return rt.RouteTable(), nil })
	rt.Handle(MethodGetConnections, func([]any) (any, error) { return rt.Connections(), nil })
	rt.Handle(MethodGetProcesses, func([]any) (any, error) { return rt.Processes(), nil })
	rt.Handle(MethodGetHosts, func([]any) (any, error) { return rt.Hosts(), nil })

	// A peer's registry arrives here after getRegistry. Known entries are
	// left alone, so two runtimes importing each other settle.
	rt.Handle(MethodOnRegistry, func(args []any) (any, error) {
		var reg map[string]*service.Data
		if err := codec.Decode(args, 0, &reg); err != nil {
			return nil, err
		}
		for fullname, d := range reg {
			if d == nil {
				continue
			}
			if d.FullName == "" {
				d.FullName = fullname
			}
			if _, err := rt.Register(d); err != nil {
				slog.Debug(fmt.Sprintf("%s - skipping %s: %v", reservedLogPrefix, fullname, err))
			}
		}
		return nil, nil
	})

	// State broadcast by a peer; local subscribers of onBroadcastState get it.
	rt.Handle(MethodOnBroadcastState, func(args []any) (any, error) {
		return codec.Arg(args, 0), nil
	})

	// Registry change topics. The result is the argument so listeners
	// receive the descriptor or fullname.
	rt.Handle(MethodRegistered, func(args []any) (any, error) { return codec.Arg(args, 0), nil })
	rt.Handle(MethodReleased, func(args []any) (any, error) {
		return codec.String(args, 0)
	})

	rt.Handle(MethodOnReleased, func(args []any) (any, error) {
		fullname, err := codec.String(args, 0)
		if err != nil {
			return nil, err
		}
		return rt.releaseRemote(fullname), nil
	})
}

func (rt *Runtime) startOrStop(args []any, start bool) (any, error) {
	if !codec.Has(args, 0) {
		if start {
			rt.Service.StartService()
		} else {
			rt.Service.StopService()
		}
		return true, nil
	}
	name, err := codec.String(args, 0)
	if err != nil {
		return nil, err
	}
	if err := rt.startLocal(name, start); err != nil {
		return nil, err
	}
	return true, nil
}
