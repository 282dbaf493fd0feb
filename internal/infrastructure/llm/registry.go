package llm

import (
	"fmt"
	"strings"
	"sync"

	"ContentRewriter/internal/ports"
)

// Registry keeps a mapping from provider names to their adapters.
type Registry struct {
	mu       sync.RWMutex
	fallback string
	text     map[string]ports.TextGenerator
	image    map[string]ports.ImageGenerator
}

var _ ports.ProviderResolver = (*Registry)(nil)

// NewRegistry builds an empty registry; fallback is used for empty names.
func NewRegistry(fallback string) *Registry {
	return &Registry{
		fallback: normalize(fallback),
		text:     map[string]ports.TextGenerator{},
		image:    map[string]ports.ImageGenerator{},
	}
}

// RegisterText adds or replaces a text adapter.
func (r *Registry) RegisterText(name string, gen ports.TextGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[normalize(name)] = gen
}

// RegisterImage adds or replaces an image adapter.
func (r *Registry) RegisterImage(name string, gen ports.ImageGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[normalize(name)] = gen
}

// Text returns the text adapter by name, the fallback for "".
func (r *Registry) Text(name string) (ports.TextGenerator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := r.key(name)
	if gen, ok := r.text[key]; ok {
		return gen, nil
	}
	return nil, fmt.Errorf("text provider %s is not registered", key)
}

// Image returns the image adapter by name; providers without image support
// resolve to the fallback's image adapter.
func (r *Registry) Image(name string) (ports.ImageGenerator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := r.key(name)
	if gen, ok := r.image[key]; ok {
		return gen, nil
	}
	if gen, ok := r.image[r.fallback]; ok {
		return gen, nil
	}
	return nil, fmt.Errorf("image provider %s is not registered", key)
}

func (r *Registry) key(name string) string {
	if n := normalize(name); n != "" {
		return n
	}
	return r.fallback
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
