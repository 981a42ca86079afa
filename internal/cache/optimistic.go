package cache

import (
	"context"
	"fmt"

	"agora/gateway/internal/space"
)

// Transform mutates a copy of the cached space. It must be pure: the
// argument is a private clone, so returning an error leaves the cache
// untouched.
type Transform func(current *space.Space) (*space.Space, error)

// Rollback restores the pre-transform snapshot in a single write.
// Discard it when the triggering network call succeeds.
type Rollback func(ctx context.Context) error

func noopRollback(context.Context) error { return nil }

// Optimistic applies speculative mutations to the space cache and
// hands back the undo path. Callers must invoke the rollback before
// surfacing an error for the network operation that triggered the
// write, so the cache never holds a mutation the server rejected.
type Optimistic struct {
	store Store
}

func NewOptimistic(store Store) *Optimistic {
	return &Optimistic{store: store}
}

// Apply reads the current entry, runs the transform on a clone, and
// writes the result. A missing entry is a no-op update: nothing is
// written and the returned rollback does nothing.
func (o *Optimistic) Apply(ctx context.Context, key string, transform Transform) (Rollback, error) {
	snapshot, err := o.store.GetSpace(ctx, key)
	if err == ErrNotFound {
		return noopRollback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache snapshot: %w", err)
	}

	next, err := transform(snapshot.Clone())
	if err != nil {
		return nil, fmt.Errorf("apply optimistic transform: %w", err)
	}
	if err := o.store.SetSpace(ctx, key, next); err != nil {
		return nil, fmt.Errorf("write optimistic value: %w", err)
	}

	return func(ctx context.Context) error {
		if err := o.store.SetSpace(ctx, key, snapshot); err != nil {
			return fmt.Errorf("restore cache snapshot: %w", err)
		}
		return nil
	}, nil
}

// Invalidate drops the cached entry to force an authoritative refetch.
func (o *Optimistic) Invalidate(ctx context.Context, key string) error {
	return o.store.DeleteSpace(ctx, key)
}
