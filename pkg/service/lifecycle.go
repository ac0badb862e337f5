package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoHost is returned by operations that need a hosting runtime.
var ErrNoHost = errors.New("service has no host")

// StartService marks the service ready and runs the OnStart hook.
func (s *Service) StartService() {
	s.mu.Lock()
	s.ready = true
	s.startTime = time.Now()
	s.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - Started %s", logPrefix, s.fullname))
	if s.hooks.OnStart != nil {
		if err := s.hooks.OnStart(); err != nil {
			s.Report(LevelError, KeyInvocationFailure, fmt.Sprintf("failed to start %s: %v", s.fullname, err))
		}
	}
}

// StopService marks the service not ready, clears its start time and runs
// the OnStop hook.
func (s *Service) StopService() {
	s.mu.Lock()
	wasReady := s.ready
	s.ready = false
	s.startTime = time.Time{}
	s.mu.Unlock()

	if !wasReady {
		return
	}
	slog.Info(fmt.Sprintf("%s - Stopped %s", logPrefix, s.fullname))
	if s.hooks.OnStop != nil {
		s.hooks.OnStop()
	}
}

// ReleaseService stops the service and removes it from its host. Only the
// first call has any effect.
func (s *Service) ReleaseService() {
	s.releaseOnce.Do(func() {
		s.StopService()
		if s.hooks.OnRelease != nil {
			s.hooks.OnRelease()
		}
		if s.host != nil {
			s.host.UnregisterService(s.fullname)
		}
		slog.Info(fmt.Sprintf("%s - Released %s", logPrefix, s.fullname))
	})
}

// IsReady reports whether the service has been started.
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Uptime returns the time since the last start, zero when stopped.
func (s *Service) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready || s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}

// Config returns a copy of the current configuration.
func (s *Service) Config() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyConfig(s.config)
}

// ApplyConfig replaces the configuration and runs the OnConfig hook.
func (s *Service) ApplyConfig(cfg map[string]any) {
	s.mu.Lock()
	s.config = copyConfig(cfg)
	s.mu.Unlock()

	if s.hooks.OnConfig != nil {
		s.hooks.OnConfig(s.Config())
	}
}

// Save persists the configuration through the host.
func (s *Service) Save() error {
	if s.host == nil {
		return fmt.Errorf("%s - cannot save %s: %w", logPrefix, s.fullname, ErrNoHost)
	}
	if err := s.host.SaveServiceConfig(s.fullname, s.typeKey, s.Config()); err != nil {
		return fmt.Errorf("%s - failed to save %s: %w", logPrefix, s.fullname, err)
	}
	return nil
}
