// Package topic tracks subscriptions and service registrations by name
// and routes inbound topic frames to their callbacks.
package topic

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/perchlabs/buslink/internal/observability"
	"github.com/perchlabs/buslink/internal/protocol"
)

var ErrNoHandler = errors.New("topic: no handler registered")

// MessageFunc consumes one raw topic payload.
type MessageFunc func(payload []byte)

// ServiceFunc answers one raw service request.
type ServiceFunc func(request []byte) ([]byte, error)

// Registry is safe for use from caller goroutines and the dispatcher.
type Registry struct {
	mu       sync.RWMutex
	subs     map[string][]MessageFunc
	services map[string]ServiceFunc
	logger   zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		subs:     make(map[string][]MessageFunc),
		services: make(map[string]ServiceFunc),
		logger:   logger.With().Str("component", "topic").Logger(),
	}
}

func (r *Registry) Subscribe(name string, fn MessageFunc) error {
	if err := protocol.CheckTopicName(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: nil callback for %q", ErrNoHandler, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[name] = append(r.subs[name], fn)
	return nil
}

// Unsubscribe drops every callback for the topic.
func (r *Registry) Unsubscribe(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, name)
}

func (r *Registry) RegisterService(name string, fn ServiceFunc) error {
	if err := protocol.CheckTopicName(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrNoHandler, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = fn
	return nil
}

func (r *Registry) UnregisterService(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, name)
}

func (r *Registry) Service(name string) (ServiceFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.services[name]
	return fn, ok
}

// Dispatch invokes every subscriber for the topic and reports how many
// ran. Each callback is recovered individually so one panicking
// subscriber never starves the rest.
func (r *Registry) Dispatch(name string, payload []byte) int {
	r.mu.RLock()
	fns := r.subs[name]
	r.mu.RUnlock()
	for _, fn := range fns {
		r.invoke(name, fn, payload)
	}
	return len(fns)
}

func (r *Registry) invoke(name string, fn MessageFunc, payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Str("topic", name).Interface("panic", rec).Msg("subscriber panicked")
			observability.RecordCallbackPanic()
		}
	}()
	fn(payload)
}

// Topics returns a sorted snapshot of subscribed topic names.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.subs))
	for name := range r.subs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Services returns a sorted snapshot of registered service names.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.services))
	for name := range r.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
