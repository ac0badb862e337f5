// Package bus implements the runtime: the process-level service that owns
// the registry, learns routes from inbound traffic, keeps the live
// connections to peer runtimes and decides between local dispatch and
// forwarding.
package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/morezero/servicebus/pkg/events"
	"github.com/morezero/servicebus/pkg/metrics"
	"github.com/morezero/servicebus/pkg/registry"
	"github.com/morezero/servicebus/pkg/repo"
	"github.com/morezero/servicebus/pkg/service"
)

const logPrefix = "bus:runtime"

const (
	// DefaultName is the role name every runtime registers itself under.
	// Peers address each other as DefaultName@<id>.
	DefaultName = "runtime"
	// DefaultQueueSize bounds each connection's outbound queue.
	DefaultQueueSize = 256
	// TypeKey is the service type of a runtime.
	TypeKey = "Runtime"
)

var (
	ErrServiceNotFound  = errors.New("service not found")
	ErrRemoteService    = errors.New("service is hosted by another runtime")
	ErrProtectedService = errors.New("the runtime cannot release itself")
	ErrUnknownType      = errors.New("no factory for service type")
	ErrServiceExists    = errors.New("service already exists with another type")
	ErrNoRepo           = errors.New("no package repository configured")
)

// Options configures New. Zero values use defaults.
type Options struct {
	ID       string
	Hostname string
	Version  string

	Registry  *registry.Registry
	Store     ConfigStore
	Repo      *repo.Repository
	Publisher events.EventPublisher
	Metrics   *metrics.Metrics

	QueueSize               int
	PruneRoutesOnDisconnect bool
}

// Runtime is a Service that routes messages for every service it hosts.
type Runtime struct {
	*service.Service

	registry    *registry.Registry
	store       ConfigStore
	repo        *repo.Repository
	publisher   events.EventPublisher
	metrics     *metrics.Metrics
	queueSize   int
	pruneRoutes bool

	routesMu     sync.RWMutex
	routes       map[string]RouteEntry
	defaultRoute *RouteEntry

	connsMu sync.RWMutex
	conns   map[string]*Connection

	inventoryMu sync.RWMutex
	processes   map[string]ProcessData
	hosts       map[string]HostData
	process     ProcessData

	factoriesMu sync.RWMutex
	factories   map[string]Factory
}

var (
	instance     *Runtime
	instanceOnce sync.Once
)

// GetInstance returns the process runtime, constructing it from opts on
// the first call. Later calls ignore opts.
func GetInstance(opts Options) *Runtime {
	instanceOnce.Do(func() {
		instance = New(opts)
	})
	return instance
}

// resetInstance is for tests.
func resetInstance() {
	instance = nil
	instanceOnce = sync.Once{}
}

// New builds a runtime. It registers itself, then records its own process
// and host.
func New(opts Options) *Runtime {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	pub := opts.Publisher
	if pub == nil {
		pub = events.Discard
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	rt := &Runtime{
		registry:    reg,
		store:       store,
		repo:        opts.Repo,
		publisher:   pub,
		metrics:     opts.Metrics,
		queueSize:   queueSize,
		pruneRoutes: opts.PruneRoutesOnDisconnect,
		routes:      make(map[string]RouteEntry),
		conns:       make(map[string]*Connection),
		processes:   make(map[string]ProcessData),
		hosts:       make(map[string]HostData),
		factories:   make(map[string]Factory),
	}
	rt.Service = service.New(service.Options{
		ID:       id,
		Name:     DefaultName,
		TypeKey:  TypeKey,
		Version:  opts.Version,
		Hostname: opts.Hostname,
		Host:     rt,
	})
	rt.registerHandlers()

	rt.registry.Register(rt.FullName(), rt)
	rt.metrics.SetServices(rt.registry.Len())
	rt.StartService()

	rt.process = LocalProcess(id)
	rt.RegisterProcess(rt.process)
	rt.RegisterHost(LocalHost())

	slog.Info(fmt.Sprintf("%s - Runtime %s ready", logPrefix, rt.FullName()))
	return rt
}

// Registry returns the runtime's service registry.
func (rt *Runtime) Registry() *registry.Registry { return rt.registry }

// Repo returns the package repository, or nil.
func (rt *Runtime) Repo() *repo.Repository { return rt.repo }

// Close stops the runtime and closes every connection.
func (rt *Runtime) Close() {
	rt.connsMu.Lock()
	conns := make([]*Connection, 0, len(rt.conns))
	for id, c := range rt.conns {
		conns = append(conns, c)
		delete(rt.conns, id)
	}
	rt.connsMu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			slog.Debug(fmt.Sprintf("%s - close %s: %v", logPrefix, c.ClientID(), err))
		}
	}
	rt.metrics.SetConnections(0)
	rt.StopService()
	slog.Info(fmt.Sprintf("%s - Runtime %s closed", logPrefix, rt.FullName()))
}
