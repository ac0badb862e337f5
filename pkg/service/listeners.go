package service

import (
	"github.com/morezero/servicebus/pkg/codec"
)

// Listener subscribes CallbackName.CallbackMethod to TopicMethod.
type Listener struct {
	TopicMethod    string `json:"topicMethod"`
	CallbackName   string `json:"callbackName"`
	CallbackMethod string `json:"callbackMethod"`
}

// AddListener subscribes remoteName.remoteMethod to method. remoteName is
// qualified with the local runtime id when it has none and remoteMethod
// defaults to the conventional callback name. Identical subscriptions are
// stored once.
func (s *Service) AddListener(method, remoteName, remoteMethod string) Listener {
	l := s.listener(method, remoteName, remoteMethod)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.notifyList[l.TopicMethod] {
		if existing == l {
			return l
		}
	}
	s.notifyList[l.TopicMethod] = append(s.notifyList[l.TopicMethod], l)
	return l
}

// RemoveListener removes a matching subscription and reports whether one
// was present.
func (s *Service) RemoveListener(method, remoteName, remoteMethod string) bool {
	l := s.listener(method, remoteName, remoteMethod)

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.notifyList[l.TopicMethod]
	for i, existing := range list {
		if existing != l {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(s.notifyList, l.TopicMethod)
		} else {
			s.notifyList[l.TopicMethod] = list
		}
		return true
	}
	return false
}

// NotifyList returns a copy of the subscriptions keyed by topic method.
func (s *Service) NotifyList() map[string][]Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyNotifyList(s.notifyList)
}

func (s *Service) listenersFor(topic string) []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.notifyList[topic]
	if len(list) == 0 {
		return nil
	}
	out := make([]Listener, len(list))
	copy(out, list)
	return out
}

func (s *Service) listener(method, remoteName, remoteMethod string) Listener {
	topic := s.canonical(method)
	if remoteMethod == "" {
		remoteMethod = codec.GetCallbackTopicName(topic)
	}
	return Listener{
		TopicMethod:    topic,
		CallbackName:   codec.GetFullName(remoteName, s.id),
		CallbackMethod: remoteMethod,
	}
}

func copyNotifyList(in map[string][]Listener) map[string][]Listener {
	out := make(map[string][]Listener, len(in))
	for topic, list := range in {
		cp := make([]Listener, len(list))
		copy(cp, list)
		out[topic] = cp
	}
	return out
}
