package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quantfeed/avwap/internal/session"
	"github.com/quantfeed/avwap/pkg/indicator"
)

// Metadata contains information about a registered anchor preset
type Metadata struct {
	Name        string
	AnchorKind  session.AnchorKind
	PriceSource string
	Description string
}

// registration binds a preset name to its anchor rule and price selector
type registration struct {
	anchor   session.AnchorFunc
	price    indicator.PriceSelector
	metadata Metadata
}

// Registry manages the anchored VWAP presets the engine instantiates per symbol
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// NewRegistry creates a new preset registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]registration),
	}
}

// Register registers an anchor preset
func (r *Registry) Register(
	name string,
	anchor session.AnchorFunc,
	price indicator.PriceSelector,
	metadata Metadata,
) error {
	if anchor == nil {
		return fmt.Errorf("preset %q requires an anchor function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("preset %q already registered", name)
	}

	r.entries[name] = registration{
		anchor:   anchor,
		price:    price,
		metadata: metadata,
	}
	return nil
}

// ResolveAnchor returns the anchor a preset resolves to for a reference time
func (r *Registry) ResolveAnchor(name string, ref time.Time) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[name]
	if !exists {
		return time.Time{}, false
	}
	return entry.anchor(ref), true
}

// CreateCalculator builds a calculator for a preset, anchored for the
// reference time
func (r *Registry) CreateCalculator(name string, ref time.Time) (indicator.Calculator, error) {
	r.mu.RLock()
	entry, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("preset %q not registered", name)
	}
	return indicator.NewAnchoredVWAPNamed(name, entry.anchor(ref), entry.price), nil
}

// EarliestAnchor returns the earliest anchor any preset resolves to for a
// reference time. Reports false when nothing is registered.
func (r *Registry) EarliestAnchor(ref time.Time) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var earliest time.Time
	found := false
	for _, entry := range r.entries {
		anchor := entry.anchor(ref)
		if !found || anchor.Before(earliest) {
			earliest = anchor
			found = true
		}
	}
	return earliest, found
}

// ListAvailable returns all registered preset names in stable order
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetMetadata returns metadata for a preset
func (r *Registry) GetMetadata(name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[name]
	return entry.metadata, exists
}

// GetAllMetadata returns all preset metadata
func (r *Registry) GetAllMetadata() map[string]Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Metadata, len(r.entries))
	for name, entry := range r.entries {
		result[name] = entry.metadata
	}
	return result
}
