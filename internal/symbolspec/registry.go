package symbolspec

import (
	"fmt"
	"sort"
)

// Registry owns registered symbol specifications. It is mutated only by the
// engine's processing goroutine and is not safe for concurrent use.
type Registry struct {
	specs map[int32]Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[int32]Spec)}
}

// RegisterBatch validates every spec of the batch and then registers all of
// them. Nothing is registered when any entry fails.
func (r *Registry) RegisterBatch(batch []Spec) error {
	if len(batch) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidSpec)
	}
	seen := make(map[int32]struct{}, len(batch))
	for _, spec := range batch {
		if err := spec.Validate(); err != nil {
			return err
		}
		if _, exists := r.specs[spec.SymbolID]; exists {
			return fmt.Errorf("%w: %d", ErrSymbolAlreadyExists, spec.SymbolID)
		}
		if _, dup := seen[spec.SymbolID]; dup {
			return fmt.Errorf("%w: %d repeated in batch", ErrSymbolAlreadyExists, spec.SymbolID)
		}
		seen[spec.SymbolID] = struct{}{}
	}

	for _, spec := range batch {
		r.specs[spec.SymbolID] = spec
	}
	return nil
}

// Get returns the spec registered under symbolID.
func (r *Registry) Get(symbolID int32) (Spec, error) {
	spec, ok := r.specs[symbolID]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %d", ErrUnknownSymbol, symbolID)
	}
	return spec, nil
}

// Symbols returns registered ids in ascending order.
func (r *Registry) Symbols() []int32 {
	ids := make([]int32, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered symbols.
func (r *Registry) Len() int {
	return len(r.specs)
}
