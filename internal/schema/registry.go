package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/charlesng35/estatehub/internal/docstore"
	apperrors "github.com/charlesng35/estatehub/pkg/errors"
)

// ErrRegistrySealed is returned when registering after Seal.
var ErrRegistrySealed = errors.New("schema: registry is sealed")

// Registry holds the compiled models of a process. It is filled during
// startup, sealed, and read concurrently afterwards.
type Registry struct {
	compiler *Compiler
	store    docstore.Store

	mu     sync.RWMutex
	models map[string]*Model
	sealed bool
}

// NewRegistry creates a registry compiling through compiler.
func NewRegistry(store docstore.Store, opts ...CompilerOption) *Registry {
	return &Registry{
		compiler: NewCompiler(store, opts...),
		store:    store,
		models:   make(map[string]*Model),
	}
}

// Compiler exposes the compiler backing the registry.
func (r *Registry) Compiler() *Compiler { return r.compiler }

// Register compiles cfg and stores the model under name.
func (r *Registry) Register(name string, cfg *ModelConfig) (*Model, error) {
	return r.add(func() (*Model, error) { return r.compiler.Compile(name, cfg) })
}

// RegisterDeclaration compiles a loosely typed declaration.
func (r *Registry) RegisterDeclaration(name any, raw any, extend ...func(*ModelConfig)) (*Model, error) {
	return r.add(func() (*Model, error) { return r.compiler.CompileDeclaration(name, raw, extend...) })
}

func (r *Registry) add(compile func() (*Model, error)) (*Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil, ErrRegistrySealed
	}
	m, err := compile()
	if err != nil {
		return nil, err
	}
	if _, exists := r.models[m.name]; exists {
		return nil, apperrors.NewConflict(fmt.Sprintf("Model %s is already registered", m.name))
	}
	r.models[m.name] = m
	return m, nil
}

// Model returns the model called name.
func (r *Registry) Model(name string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// MustModel returns the model called name or panics.
func (r *Registry) MustModel(name string) *Model {
	m, ok := r.Model(name)
	if !ok {
		panic(fmt.Sprintf("schema: model %s is not registered", name))
	}
	return m
}

// Names lists the registered models in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Seal makes the registry read only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal was called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// SyncIndexes creates the indexes of every model.
func (r *Registry) SyncIndexes(ctx context.Context) error {
	var errs error
	for _, name := range r.Names() {
		m, _ := r.Model(name)
		errs = multierr.Append(errs, m.SyncIndexes(ctx))
	}
	return errs
}

// Close drops every model and closes the store.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.models = make(map[string]*Model)
	r.sealed = true
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	return r.store.Close(ctx)
}
