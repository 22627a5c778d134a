package event

import (
	"slices"
	"sync"

	"github.com/municipal/backoffice/internal/domain/shared"
)

// subscription binds a handler to a set of event types; an empty set matches
// every event
type subscription struct {
	handler shared.EventHandler
	types   map[string]struct{}
}

func (s subscription) matches(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// subscriptions keeps handlers in registration order. Subscribing the same
// handler twice merges the event types.
type subscriptions struct {
	mu   sync.RWMutex
	list []subscription
}

func (s *subscriptions) add(handler shared.EventHandler, eventTypes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.list, func(sub subscription) bool { return sub.handler == handler })
	if idx < 0 {
		s.list = append(s.list, subscription{handler: handler, types: map[string]struct{}{}})
		idx = len(s.list) - 1
	}
	sub := s.list[idx]
	if len(eventTypes) == 0 {
		clear(sub.types)
		return
	}
	for _, t := range eventTypes {
		sub.types[t] = struct{}{}
	}
}

func (s *subscriptions) remove(handler shared.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = slices.DeleteFunc(s.list, func(sub subscription) bool { return sub.handler == handler })
}

// match returns the handlers subscribed to eventType
func (s *subscriptions) match(eventType string) []shared.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var handlers []shared.EventHandler
	for _, sub := range s.list {
		if sub.matches(eventType) {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}
