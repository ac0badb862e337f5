package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/launch"
	"github.com/morezero/servicebus/pkg/semver"
	"github.com/morezero/servicebus/pkg/service"
)

const factoryLogPrefix = "bus:factory"

// Factory builds a service of one type. fullname is already qualified with
// the runtime id and host is the runtime that will own the service.
type Factory func(host service.Host, fullname string) (service.Interface, error)

// RegisterFactory makes typeKey startable through StartServiceType and
// launch files. A later registration replaces an earlier one.
func (rt *Runtime) RegisterFactory(typeKey string, f Factory) {
	rt.factoriesMu.Lock()
	rt.factories[typeKey] = f
	rt.factoriesMu.Unlock()
	slog.Debug(fmt.Sprintf("%s - Factory registered for %s", factoryLogPrefix, typeKey))
}

// FactoryTypes returns the type keys with a registered factory, sorted.
func (rt *Runtime) FactoryTypes() []string {
	rt.factoriesMu.RLock()
	defer rt.factoriesMu.RUnlock()
	out := make([]string, 0, len(rt.factories))
	for k := range rt.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StartServiceType creates, registers and starts a local service of
// typeKey. An existing service of the same type is started and returned.
func (rt *Runtime) StartServiceType(name, typeKey string) (service.Interface, error) {
	svc, _, err := rt.createService(name, typeKey)
	if err != nil {
		return nil, err
	}
	svc.StartService()
	return svc, nil
}

// createService registers a new, not yet started service. created is false
// when a service of the same type already held the name.
func (rt *Runtime) createService(name, typeKey string) (svc service.Interface, created bool, err error) {
	fullname := codec.GetFullName(name, rt.ID())
	if id, _ := codec.GetID(fullname); id != rt.ID() {
		return nil, false, fmt.Errorf("%s - %s: %w", factoryLogPrefix, fullname, ErrRemoteService)
	}

	if existing, ok := rt.registry.GetService(fullname); ok {
		if existing.TypeKey() != typeKey {
			return nil, false, fmt.Errorf("%s - %s is a %s, not a %s: %w", factoryLogPrefix, fullname, existing.TypeKey(), typeKey, ErrServiceExists)
		}
		return existing, false, nil
	}

	rt.factoriesMu.RLock()
	f, ok := rt.factories[typeKey]
	rt.factoriesMu.RUnlock()
	if !ok {
		return nil, false, fmt.Errorf("%s - %s: %w", factoryLogPrefix, typeKey, ErrUnknownType)
	}

	built, err := f(rt, fullname)
	if err != nil {
		return nil, false, fmt.Errorf("%s - failed to create %s (%s): %w", factoryLogPrefix, fullname, typeKey, err)
	}
	if built.FullName() != fullname {
		return nil, false, fmt.Errorf("%s - factory for %s returned %s, expected %s", factoryLogPrefix, typeKey, built.FullName(), fullname)
	}

	// Another caller may have won the race for the name.
	svc = rt.RegisterService(built)
	return svc, svc == built, nil
}

// Launch applies a launch description: each action's service is created,
// configured, wired to its listeners and started. Actions fail
// independently; the joined errors are returned.
func (rt *Runtime) Launch(desc *launch.Description) error {
	if desc == nil {
		return nil
	}
	slog.Info(fmt.Sprintf("%s - Launching %s (%d actions)", factoryLogPrefix, desc.Name, len(desc.Actions)))

	var errs []error
	for _, a := range desc.Actions {
		if err := rt.launchAction(a); err != nil {
			slog.Error(fmt.Sprintf("%s - action %s failed: %v", factoryLogPrefix, a.Name, err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (rt *Runtime) launchAction(a launch.Action) error {
	ref, err := semver.ParsePackageRef(a.Package)
	if err != nil {
		return err
	}

	installed := false
	if rt.repo != nil {
		pkg, err := rt.repo.GetServicePackage(ref.TypeKey, ref.Range)
		if err != nil {
			return fmt.Errorf("%s - %s: %w", factoryLogPrefix, a.Name, err)
		}
		slog.Debug(fmt.Sprintf("%s - %s resolved to %s %s", factoryLogPrefix, a.Name, pkg.TypeKey, pkg.Version))
		installed = true
	}

	svc, created, err := rt.createService(a.Name, ref.TypeKey)
	if err != nil {
		return err
	}
	if !created && ref.Range != "" {
		if v := svc.Data().Version; v != "" && !semver.SatisfiesRange(v, ref.Range) {
			slog.Warn(fmt.Sprintf("%s - %s already runs %s %s, outside %s", factoryLogPrefix, svc.FullName(), ref.TypeKey, v, ref.Range))
		}
	}
	if s, ok := svc.(interface{ SetInstalled(bool) }); ok && installed {
		s.SetInstalled(true)
	}
	if created && len(a.Config) > 0 {
		svc.ApplyConfig(a.Config)
	}
	for method, listeners := range a.Listeners {
		for _, l := range listeners {
			svc.AddListener(method, codec.GetFullName(l.Name, rt.ID()), l.Method)
		}
	}
	svc.StartService()
	return nil
}
