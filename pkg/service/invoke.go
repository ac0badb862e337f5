package service

import (
	"fmt"
	"log/slog"

	"github.com/morezero/servicebus/pkg/message"
)

const invokeLogPrefix = "service:invoke"

// Invoke calls one of this service's own methods, as if sent by itself.
func (s *Service) Invoke(method string, args ...any) any {
	msg := message.New(s.fullname, method, args...)
	msg.Sender = s.fullname
	return s.InvokeMsg(msg)
}

// InvokeMsg dispatches msg to the matching handler, then fans the result
// out to every listener of the method. Failures are reported as status and
// produce a nil result; they never propagate to the caller.
func (s *Service) InvokeMsg(msg *message.Message) any {
	if msg == nil {
		return nil
	}

	h, ok := s.lookup(msg.Method)
	if !ok {
		s.fail(msg, KeyMethodNotFound, fmt.Sprintf("method %s not found on %s", msg.Method, s.fullname))
		return nil
	}

	result := s.call(h, msg)
	s.notify(h.name, result)
	return result
}

func (s *Service) call(h handler, msg *message.Message) (result any) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(msg, KeyInvocationFailure, fmt.Sprintf("failed to invoke %s.%s: panic: %v", s.fullname, h.name, r))
			result = nil
		}
	}()

	out, err := h.fn(msg.Args())
	if err != nil {
		s.fail(msg, KeyInvocationFailure, fmt.Sprintf("failed to invoke %s.%s: %v", s.fullname, h.name, err))
		return nil
	}
	return out
}

// notify sends result to every listener of topic. No lock is held while
// the callbacks run; they may re-enter this service.
func (s *Service) notify(topic string, result any) {
	listeners := s.listenersFor(topic)
	for _, l := range listeners {
		out := message.New(l.CallbackName, l.CallbackMethod, result)
		out.Sender = s.fullname
		if topic == MethodPublishStatus {
			out.Type = message.TypeStatus
		}
		s.route(out)
	}
}

func (s *Service) route(msg *message.Message) any {
	if s.host != nil {
		return s.host.Route(msg)
	}
	if msg.Name == s.fullname {
		return s.InvokeMsg(msg)
	}
	slog.Warn(fmt.Sprintf("%s - %s has no host, dropping %s.%s", invokeLogPrefix, s.fullname, msg.Name, msg.Method))
	return nil
}

// fail reports a dispatch failure. Failures while handling a status
// message are only logged so a broken status subscriber cannot loop.
func (s *Service) fail(msg *message.Message, key, detail string) {
	if msg.Type == message.TypeStatus {
		slog.Warn(fmt.Sprintf("%s - %s (status delivery, not re-published)", invokeLogPrefix, detail))
		return
	}
	s.Report(LevelError, key, detail)
}
