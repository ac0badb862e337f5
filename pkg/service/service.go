// Package service implements the addressable unit of behavior hosted by a
// runtime: a method dispatch table, a notify list for pub/sub fan-out,
// lifecycle state and status reporting.
package service

import (
	"os"
	"sort"
	"sync"
	"time"

	"github.com/morezero/servicebus/pkg/codec"
	"github.com/morezero/servicebus/pkg/message"
)

const logPrefix = "service:service"

// HandlerFunc handles one method call with positional arguments.
type HandlerFunc func(args []any) (any, error)

// Interface is what a registry stores and a runtime dispatches to.
type Interface interface {
	ID() string
	Name() string
	FullName() string
	TypeKey() string
	InvokeMsg(msg *message.Message) any
	AddListener(method, remoteName, remoteMethod string) Listener
	RemoveListener(method, remoteName, remoteMethod string) bool
	ApplyConfig(cfg map[string]any)
	StartService()
	StopService()
	ReleaseService()
	Data() *Data
}

// Host is the runtime a service lives in.
type Host interface {
	ID() string
	// Route delivers msg to the service it names, local or remote.
	Route(msg *message.Message) any
	UnregisterService(fullname string)
	SaveServiceConfig(fullname, typeKey string, config map[string]any) error
	LoadServiceConfig(fullname string) (map[string]any, error)
}

// Hooks let concrete services react to lifecycle transitions.
type Hooks struct {
	OnStart   func() error
	OnStop    func()
	OnRelease func()
	OnConfig  func(cfg map[string]any)
}

// Options configures New. ID defaults to the host id.
type Options struct {
	ID       string
	Name     string
	TypeKey  string
	Version  string
	Hostname string
	Config   map[string]any
	Host     Host
	Hooks    Hooks
}

type handler struct {
	name string
	fn   HandlerFunc
}

// Service is the base every hosted service embeds.
type Service struct {
	id       string
	name     string
	fullname string
	typeKey  string
	version  string
	hostname string
	host     Host
	hooks    Hooks

	mu         sync.RWMutex
	handlers   map[string]handler
	config     map[string]any
	notifyList map[string][]Listener
	ready      bool
	installed  bool
	startTime  time.Time

	releaseOnce sync.Once
}

// New creates a service and its built-in dispatch table.
func New(opts Options) *Service {
	id := opts.ID
	name := opts.Name
	if qualified, ok := codec.GetID(name); ok {
		if id == "" {
			id = qualified
		}
		name = codec.GetName(name)
	}
	if id == "" && opts.Host != nil {
		id = opts.Host.ID()
	}
	hostname := opts.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}
	typeKey := opts.TypeKey
	if typeKey == "" {
		typeKey = "Service"
	}

	s := &Service{
		id:         id,
		name:       name,
		fullname:   codec.GetFullName(name, id),
		typeKey:    typeKey,
		version:    opts.Version,
		hostname:   hostname,
		host:       opts.Host,
		hooks:      opts.Hooks,
		handlers:   make(map[string]handler),
		config:     copyConfig(opts.Config),
		notifyList: make(map[string][]Listener),
	}
	s.registerBuiltins()
	return s
}

// ID returns the id of the hosting runtime.
func (s *Service) ID() string { return s.id }

// Name returns the local role name.
func (s *Service) Name() string { return s.name }

// FullName returns name@id.
func (s *Service) FullName() string { return s.fullname }

// TypeKey returns the service type.
func (s *Service) TypeKey() string { return s.typeKey }

// Version returns the service version.
func (s *Service) Version() string { return s.version }

// Hostname returns the host the service runs on.
func (s *Service) Hostname() string { return s.hostname }

// Host returns the hosting runtime, or nil for a standalone service.
func (s *Service) Host() Host { return s.host }

// Handle adds or replaces the handler for method. Lookups are
// case-style-insensitive, so "setCamera" also answers "set_camera".
func (s *Service) Handle(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[codec.NormalizeMethod(method)] = handler{name: method, fn: fn}
}

// HasMethod reports whether method resolves to a handler.
func (s *Service) HasMethod(method string) bool {
	_, ok := s.lookup(method)
	return ok
}

// Methods returns the canonical method names, sorted.
func (s *Service) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.handlers))
	for _, h := range s.handlers {
		names = append(names, h.name)
	}
	sort.Strings(names)
	return names
}

// SetInstalled records whether the service's package is installed.
func (s *Service) SetInstalled(installed bool) {
	s.mu.Lock()
	s.installed = installed
	s.mu.Unlock()
}

func (s *Service) lookup(method string) (handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[codec.NormalizeMethod(method)]
	return h, ok
}

// canonical maps any spelling of a method onto its registered name.
func (s *Service) canonical(method string) string {
	if h, ok := s.lookup(method); ok {
		return h.name
	}
	return method
}

func copyConfig(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}
