package gate

import (
	"context"
	"sync"

	"agora/gateway/internal/space"
)

type participateAPI interface {
	ParticipateSpace(ctx context.Context, spacePK, verifiablePresentation string) error
}

// Authorizer is what gets prompted when a participation attempt is
// rejected upstream, typically because the viewer's credentials are
// stale.
type Authorizer interface {
	RequestAuthorization(spacePK string)
}

type AuthorizerFunc func(spacePK string)

func (f AuthorizerFunc) RequestAuthorization(spacePK string) { f(spacePK) }

// Invalidator drops the cached entry for a space so the next read
// refetches fresh participation state.
type Invalidator interface {
	Invalidate(ctx context.Context, spacePK string) error
}

// AutoParticipant joins the viewer into a space the first time an
// eligible space is seen. It fires at most once per instance: a failed
// attempt does not retry, it asks for authorization instead.
type AutoParticipant struct {
	api        participateAPI
	cache      Invalidator
	authorizer Authorizer

	mu        sync.Mutex
	attempted bool
	inFlight  bool
}

func NewAutoParticipant(api participateAPI, cache Invalidator, authorizer Authorizer) *AutoParticipant {
	return &AutoParticipant{api: api, cache: cache, authorizer: authorizer}
}

// MaybeParticipate attempts participation for s if the viewer is
// eligible and no attempt was made before. It returns true when an
// attempt was actually issued.
func (a *AutoParticipant) MaybeParticipate(ctx context.Context, s *space.Space) bool {
	if s == nil || s.Participated || !s.CanParticipate || s.BlockParticipate {
		return false
	}

	a.mu.Lock()
	if a.attempted || a.inFlight {
		a.mu.Unlock()
		return false
	}
	a.attempted = true
	a.inFlight = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.inFlight = false
		a.mu.Unlock()
	}()

	// Automatic joins carry no presentation; the authorize prompt is
	// the path for spaces that demand one.
	if err := a.api.ParticipateSpace(ctx, s.PK, ""); err != nil {
		if a.authorizer != nil {
			a.authorizer.RequestAuthorization(s.PK)
		}
		return true
	}

	if a.cache != nil {
		_ = a.cache.Invalidate(ctx, s.PK)
	}
	return true
}

// Attempted reports whether this instance has already fired.
func (a *AutoParticipant) Attempted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempted
}
