package lifecycle

import (
	"context"
	"time"

	"agora/gateway/internal/space"
)

// Action is one invokable entry in an action menu. Label is a
// translation key.
type Action struct {
	Label string
	Run   func(ctx context.Context) error
}

// ActionHandlers binds the derived actions to their implementations.
// The derivation itself stays a pure function of space state.
type ActionHandlers struct {
	Delete      func(ctx context.Context) error
	ToPrivate   func(ctx context.Context) error
	ToPublic    func(ctx context.Context) error
	Start       func(ctx context.Context) error
	Finish      func(ctx context.Context) error
	Publish     func(ctx context.Context) error
	Participate func(ctx context.Context) error
	Credentials func(ctx context.Context) error
}

// AdminActions computes the ordered action list for a space admin.
// Each conditional action is prepended, so the last applicable branch
// ends up first: finish before start, start before the visibility
// toggles, toggles before delete. This ordering is deliberate UX
// priority; keep the prepend sequence intact.
func AdminActions(s *space.Space, now time.Time, h ActionHandlers) []Action {
	actions := []Action{
		{Label: "action_admin_delete", Run: h.Delete},
	}

	if s.IsInProgress() && s.IsPublic() && s.ChangeVisibility {
		actions = prepend(actions, Action{Label: "action_admin_to_private", Run: h.ToPrivate})
	}
	if s.IsInProgress() && !s.IsPublic() && s.ChangeVisibility {
		actions = prepend(actions, Action{Label: "action_admin_to_public", Run: h.ToPublic})
	}
	if s.IsInProgress() && s.SpaceType == space.TypeDeliberation {
		actions = prepend(actions, Action{Label: "action_admin_start", Run: h.Start})
	}
	if s.IsStarted(now) {
		actions = prepend(actions, Action{Label: "action_admin_finish", Run: h.Finish})
	}
	if s.IsDraft() {
		actions = prepend(actions, Action{Label: "action_admin_publish", Run: h.Publish})
	}

	return actions
}

// ViewerActions lists what a non-participant viewer can do: join the
// space, or go acquire the credential participation requires.
func ViewerActions(h ActionHandlers) []Action {
	return []Action{
		{Label: "action_viewer_participate", Run: h.Participate},
		{Label: "action_viewer_credentials", Run: h.Credentials},
	}
}

func prepend(actions []Action, action Action) []Action {
	return append([]Action{action}, actions...)
}
