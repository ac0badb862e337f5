package service

import (
	"time"
)

// Data is the serializable snapshot of a service exchanged between
// runtimes.
type Data struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	TypeKey    string                `json:"typeKey"`
	Version    string                `json:"version,omitempty"`
	Hostname   string                `json:"hostname,omitempty"`
	FullName   string                `json:"fullname"`
	Config     map[string]any        `json:"config"`
	NotifyList map[string][]Listener `json:"notifyList"`
	Ready      bool                  `json:"ready"`
	Installed  bool                  `json:"installed"`
	StartTime  int64                 `json:"startTime,omitempty"`
}

// Data returns a snapshot of the service.
func (s *Service) Data() *Data {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := &Data{
		ID:         s.id,
		Name:       s.name,
		TypeKey:    s.typeKey,
		Version:    s.version,
		Hostname:   s.hostname,
		FullName:   s.fullname,
		Config:     copyConfig(s.config),
		NotifyList: copyNotifyList(s.notifyList),
		Ready:      s.ready,
		Installed:  s.installed,
	}
	if !s.startTime.IsZero() {
		d.StartTime = s.startTime.UnixMilli()
	}
	return d
}

// NewProxy builds a local stand-in for a service hosted by another
// runtime. Its fullname keeps the remote id, so a host routes calls on it
// to the remote side.
func NewProxy(d *Data, host Host) *Service {
	id := d.ID
	name := d.Name
	if name == "" {
		name = d.FullName
	}
	s := New(Options{
		ID:       id,
		Name:     name,
		TypeKey:  d.TypeKey,
		Version:  d.Version,
		Hostname: d.Hostname,
		Config:   d.Config,
		Host:     host,
	})
	s.ready = d.Ready
	s.installed = d.Installed
	if d.StartTime > 0 {
		s.startTime = time.UnixMilli(d.StartTime)
	}
	if d.NotifyList != nil {
		s.notifyList = copyNotifyList(d.NotifyList)
	}
	return s
}
