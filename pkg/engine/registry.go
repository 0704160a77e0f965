package engine

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/polisai/polis-sequence/pkg/domain"
)

// HandlerRegistry stores named handlers for declarative sequence files.
// Names are "kind" or "kind@version"; aliases map to a canonical name.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]domain.Handler
	aliases  map[string]string
}

// HandlerMetadata describes how a name resolved.
type HandlerMetadata struct {
	Kind      string
	Version   string
	Canonical string
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string]domain.Handler),
		aliases:  make(map[string]string),
	}
}

// Register stores handler under kind@version. The bare kind becomes an alias
// for the first version registered.
func (r *HandlerRegistry) Register(kind, version string, handler domain.Handler, aliases ...string) error {
	if handler == nil {
		return fmt.Errorf("register %q: %w", canonicalKey(kind, version), domain.ErrNilHandler)
	}
	canonical := canonicalKey(kind, version)
	if canonical == "" {
		return fmt.Errorf("register handler: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[canonical] = handler
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		r.aliases[alias] = canonical
	}
	kind = strings.TrimSpace(kind)
	if _, exists := r.aliases[kind]; !exists && kind != canonical {
		r.aliases[kind] = canonical
	}
	return nil
}

// Resolve looks up a handler by canonical name, alias, or bare kind.
func (r *HandlerRegistry) Resolve(raw string) (domain.Handler, HandlerMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	raw = strings.TrimSpace(raw)
	kind, version := parseHandlerName(raw)
	canonical := canonicalKey(kind, version)
	if handler, ok := r.handlers[canonical]; ok {
		return handler, HandlerMetadata{Kind: kind, Version: version, Canonical: canonical}, true
	}
	if alias, ok := r.aliases[raw]; ok {
		if handler, ok := r.handlers[alias]; ok {
			return handler, metadataFor(alias), true
		}
	}
	if version == "" {
		if alias, ok := r.aliases[kind]; ok {
			if handler, ok := r.handlers[alias]; ok {
				return handler, metadataFor(alias), true
			}
		}
	}
	return nil, HandlerMetadata{}, false
}

// MustResolve is Resolve for names known to be registered. It panics otherwise.
func (r *HandlerRegistry) MustResolve(raw string) domain.Handler {
	handler, _, ok := r.Resolve(raw)
	if !ok {
		panic(fmt.Sprintf("engine: no handler registered for %q", raw))
	}
	return handler
}

// Names returns the canonical handler names in sorted order.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.handlers))
}

func metadataFor(canonical string) HandlerMetadata {
	kind, version := parseHandlerName(canonical)
	return HandlerMetadata{Kind: kind, Version: version, Canonical: canonical}
}

func parseHandlerName(raw string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(raw), "@", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

func canonicalKey(kind, version string) string {
	kind = strings.TrimSpace(kind)
	version = strings.TrimSpace(version)
	if version == "" {
		return kind
	}
	return kind + "@" + version
}
