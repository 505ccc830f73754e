package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/edusync/pkg/provider/llm"
	"github.com/MrWong99/edusync/pkg/provider/stt"
	"github.com/MrWong99/edusync/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when no factory exists for a
// provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factorySet is one named set of factories for a provider kind.
type factorySet[P any] struct {
	kind   string
	mu     sync.RWMutex
	byName map[string]Factory[P]
}

func newFactorySet[P any](kind string) *factorySet[P] {
	return &factorySet[P]{kind: kind, byName: make(map[string]Factory[P])}
}

func (s *factorySet[P]) register(name string, f Factory[P]) {
	s.mu.Lock()
	s.byName[name] = f
	s.mu.Unlock()
}

func (s *factorySet[P]) create(entry ProviderEntry) (P, error) {
	s.mu.RLock()
	f, ok := s.byName[entry.Name]
	s.mu.RUnlock()
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, s.kind, entry.Name)
	}
	return f(entry)
}

// Registry resolves provider names from the config file to constructors.
// Registering a name twice replaces the earlier factory. It is safe for
// concurrent use.
type Registry struct {
	llm *factorySet[llm.Provider]
	stt *factorySet[stt.Provider]
	tts *factorySet[tts.Provider]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		llm: newFactorySet[llm.Provider]("llm"),
		stt: newFactorySet[stt.Provider]("stt"),
		tts: newFactorySet[tts.Provider]("tts"),
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { r.llm.register(name, f) }
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) { r.stt.register(name, f) }
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) { r.tts.register(name, f) }

// CreateLLM builds the completion provider named by entry.Name. It wraps
// [ErrProviderNotRegistered] for unknown names.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) { return r.llm.create(entry) }

// CreateSTT builds the speech recognition provider named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) { return r.stt.create(entry) }

// CreateTTS builds the speech synthesis provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) { return r.tts.create(entry) }
