package jira

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrNotInitialized is returned when project keys are read before
	// Initialize has succeeded.
	ErrNotInitialized = errors.New("jira projects have not been initialized")
	// ErrInitialization wraps any failure to load the project list.
	ErrInitialization = errors.New("failed to initialize jira projects")
)

// ProjectLister lists the projects visible to the configured credentials.
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]Project, error)
}

// Registry holds the project keys loaded once at startup. After a
// successful Initialize it is read-only and safe for concurrent use.
type Registry struct {
	lister ProjectLister
	keys   atomic.Pointer[[]string]
}

func NewRegistry(lister ProjectLister) *Registry {
	return &Registry{lister: lister}
}

// LoadRegistry creates a Registry and initializes it.
func LoadRegistry(ctx context.Context, lister ProjectLister) (*Registry, error) {
	r := NewRegistry(lister)
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Initialize fetches the project list. On failure nothing is stored.
func (r *Registry) Initialize(ctx context.Context) error {
	projects, err := r.lister.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	keys := make([]string, 0, len(projects))
	for _, p := range projects {
		if p.Key != "" {
			keys = append(keys, p.Key)
		}
	}
	r.keys.Store(&keys)
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (r *Registry) Initialized() bool {
	return r.keys.Load() != nil
}

// ProjectKeys returns a copy of the loaded keys in the order Jira returned them.
func (r *Registry) ProjectKeys() ([]string, error) {
	keys := r.keys.Load()
	if keys == nil {
		return nil, ErrNotInitialized
	}
	out := make([]string, len(*keys))
	copy(out, *keys)
	return out, nil
}
