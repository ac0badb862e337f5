package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const statusLogPrefix = "service:status"

// Status levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Status keys identify the failure class of an error status.
const (
	KeyUnknownTarget     = "UNKNOWN_TARGET"
	KeyInvocationFailure = "INVOCATION_FAILURE"
	KeyMethodNotFound    = "METHOD_NOT_FOUND"
	KeyMalformedMessage  = "MALFORMED_MESSAGE"
	KeyDeliveryFailure   = "DELIVERY_FAILURE"
)

// Status is the event a service publishes through publishStatus.
type Status struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Level  string `json:"level"`
	Key    string `json:"key,omitempty"`
	Detail string `json:"detail"`
	Source string `json:"source,omitempty"`
	TS     int64  `json:"ts"`
}

// Report logs a status and publishes it to publishStatus listeners.
func (s *Service) Report(level, key, detail string) *Status {
	st := &Status{
		ID:     uuid.NewString(),
		Name:   s.fullname,
		Level:  level,
		Key:    key,
		Detail: detail,
		Source: s.fullname,
		TS:     time.Now().UnixMilli(),
	}

	line := fmt.Sprintf("%s - %s: %s", statusLogPrefix, s.fullname, detail)
	switch level {
	case LevelError:
		slog.Error(line, "key", key)
	case LevelWarn:
		slog.Warn(line, "key", key)
	default:
		slog.Info(line)
	}

	s.Invoke(MethodPublishStatus, st)
	return st
}

// Info publishes an info status.
func (s *Service) Info(detail string) *Status { return s.Report(LevelInfo, "", detail) }

// Warn publishes a warning status.
func (s *Service) Warn(detail string) *Status { return s.Report(LevelWarn, "", detail) }

// Error publishes an error status.
func (s *Service) Error(key, detail string) *Status { return s.Report(LevelError, key, detail) }
