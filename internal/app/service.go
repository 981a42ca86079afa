package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agora/gateway/internal/auth"
	"agora/gateway/internal/cache"
	"agora/gateway/internal/gate"
	"agora/gateway/internal/lifecycle"
	"agora/gateway/internal/remote"
	"agora/gateway/internal/space"
)

type Session struct {
	UserPK string
	Name   string
	Role   space.Role
}

// Service glues the cache, the upstream client, the lifecycle
// operations and the requirement gate behind one surface the HTTP
// layer calls into.
type Service struct {
	store      cache.Store
	optimistic *cache.Optimistic
	api        *remote.Client
	jwtSecret  []byte

	toasts   lifecycle.Toasts
	popup    lifecycle.Popup
	nav      lifecycle.Navigator
	tr       lifecycle.Translator
	contract lifecycle.ContractCaller

	mu    sync.Mutex
	autos map[string]*gate.AutoParticipant
}

func NewService(
	store cache.Store,
	api *remote.Client,
	jwtSecret []byte,
	toasts lifecycle.Toasts,
	popup lifecycle.Popup,
	nav lifecycle.Navigator,
	tr lifecycle.Translator,
	contract lifecycle.ContractCaller,
) *Service {
	return &Service{
		store:      store,
		optimistic: cache.NewOptimistic(store),
		api:        api,
		jwtSecret:  jwtSecret,
		toasts:     toasts,
		popup:      popup,
		nav:        nav,
		tr:         tr,
		contract:   contract,
		autos:      make(map[string]*gate.AutoParticipant),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.jwtSecret, token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserPK: claims.Subject,
		Name:   claims.Name,
		Role:   space.NormalizeRole(claims.Role),
	}, nil
}

func (s *Service) apiFor(token string) *remote.Client {
	return s.api.WithToken(token)
}

// loadSpace is the read-through path: cache hit wins, a miss fetches
// upstream and populates the cache.
func (s *Service) loadSpace(ctx context.Context, api *remote.Client, spacePK string) (*space.Space, error) {
	cached, err := s.store.GetSpace(ctx, cache.Key(spacePK))
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("cache read %s: %w", spacePK, err)
	}

	fetched, err := api.GetSpace(ctx, spacePK)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetSpace(ctx, cache.Key(spacePK), fetched); err != nil {
		return nil, fmt.Errorf("cache fill %s: %w", spacePK, err)
	}
	return fetched, nil
}

func (s *Service) ops(api *remote.Client) *lifecycle.Operations {
	return lifecycle.NewOperations(s.optimistic, api, s.toasts, s.popup, s.nav, s.tr, s.contract)
}

func (s *Service) handlers(api *remote.Client, spacePK string) lifecycle.ActionHandlers {
	ops := s.ops(api)
	return lifecycle.ActionHandlers{
		Delete: func(ctx context.Context) error { return ops.Delete(ctx, spacePK) },
		ToPrivate: func(ctx context.Context) error {
			return ops.UpdateVisibility(ctx, spacePK, space.PrivateVisibility())
		},
		ToPublic: func(ctx context.Context) error {
			return ops.UpdateVisibility(ctx, spacePK, space.PublicVisibility())
		},
		Start:  func(ctx context.Context) error { return ops.Start(ctx, spacePK, false) },
		Finish: func(ctx context.Context) error { return ops.Finish(ctx, spacePK, true) },
		Publish: func(ctx context.Context) error {
			return ops.Publish(ctx, spacePK, space.PublicVisibility())
		},
		Participate: func(ctx context.Context) error { return api.ParticipateSpace(ctx, spacePK, "") },
		Credentials: func(ctx context.Context) error { s.nav.Navigate("/credentials"); return nil },
	}
}

func (s *Service) autoFor(session Session, spacePK string, api *remote.Client) *gate.AutoParticipant {
	key := session.UserPK + "|" + spacePK
	s.mu.Lock()
	defer s.mu.Unlock()
	auto, ok := s.autos[key]
	if !ok {
		auto = gate.NewAutoParticipant(api, spaceInvalidator{s.optimistic}, gate.AuthorizerFunc(func(pk string) {
			s.toasts.Warning(s.tr.T("toast_authorize_required"))
		}))
		s.autos[key] = auto
	}
	return auto
}

// spaceInvalidator adapts the optimistic cache to the gate package,
// which speaks space PKs rather than cache keys.
type spaceInvalidator struct {
	optimistic *cache.Optimistic
}

func (i spaceInvalidator) Invalidate(ctx context.Context, spacePK string) error {
	return i.optimistic.Invalidate(ctx, cache.Key(spacePK))
}

// SpaceView assembles everything the client renders for one space: the
// masked entity, the viewer role, side menus, the applicable actions
// and the requirement-gate state. Viewing also triggers the one-shot
// auto-participation attempt.
func (s *Service) SpaceView(ctx context.Context, session Session, token, spacePK string) (map[string]any, error) {
	api := s.apiFor(token)
	current, err := s.loadSpace(ctx, api, spacePK)
	if err != nil {
		return nil, err
	}

	if s.autoFor(session, spacePK, api).MaybeParticipate(ctx, current) {
		// The attempt invalidated the cache entry; re-read so the view
		// reflects the new participation state.
		if refreshed, err := s.loadSpace(ctx, api, spacePK); err == nil {
			current = refreshed
		}
	}

	view := maskAnonymous(current)
	role := view.ViewerRole()

	menus := make([]map[string]any, 0)
	for _, menu := range space.SideMenus(view) {
		menus = append(menus, map[string]any{
			"label": s.tr.T(menu.Label),
			"path":  menu.Path,
		})
	}

	var actions []string
	switch {
	case view.IsAdmin():
		for _, action := range lifecycle.AdminActions(view, time.Now(), s.handlers(api, spacePK)) {
			actions = append(actions, action.Label)
		}
	case !view.Participated:
		for _, action := range lifecycle.ViewerActions(s.handlers(api, spacePK)) {
			actions = append(actions, action.Label)
		}
	}

	controller := gate.NewController(spacePK, view.Requirements, api)
	gateState := map[string]any{
		"done":        controller.Done(),
		"hide_layout": controller.ShouldHideLayout() && view.PreTaskRequired(),
		"cursor":      controller.Cursor(),
	}
	if active, ok := controller.Current(); ok {
		gateState["current"] = map[string]any{
			"kind":           string(active.Kind),
			"requirement_sk": active.Requirement.SK,
			"poll_sk":        active.PollSK,
		}
	}

	return map[string]any{
		"space":             view,
		"role":              string(role),
		"pre_task_required": view.PreTaskRequired(),
		"side_menus":        menus,
		"actions":           actions,
		"gate":              gateState,
	}, nil
}

// maskAnonymous blanks participant identity on anonymous spaces for
// everyone but the admin.
func maskAnonymous(s *space.Space) *space.Space {
	if !s.AnonymousParticipation || s.IsAdmin() {
		return s
	}
	masked := s.Clone()
	masked.ParticipantDisplayName = "anonymous"
	masked.ParticipantUsername = ""
	masked.ParticipantProfileURL = ""
	return masked
}

// requireAdmin loads the space and rejects viewers without the admin
// capability. Authority comes from the space's own capability object,
// not from the token.
func (s *Service) requireAdmin(ctx context.Context, api *remote.Client, spacePK string) (*space.Space, error) {
	current, err := s.loadSpace(ctx, api, spacePK)
	if err != nil {
		return nil, err
	}
	if !current.IsAdmin() {
		return nil, errForbidden()
	}
	return current, nil
}

func (s *Service) Publish(ctx context.Context, token, spacePK string, visibility space.Visibility) error {
	api := s.apiFor(token)
	current, err := s.requireAdmin(ctx, api, spacePK)
	if err != nil {
		return err
	}
	if !current.IsDraft() {
		return domainError(http.StatusConflict, "ALREADY_PUBLISHED", "Space is already published", nil)
	}
	return s.ops(api).Publish(ctx, spacePK, visibility)
}

func (s *Service) Start(ctx context.Context, token, spacePK string, block bool) error {
	api := s.apiFor(token)
	current, err := s.requireAdmin(ctx, api, spacePK)
	if err != nil {
		return err
	}
	if !space.CanTransition(current.Status, space.StatusInProgress) {
		return errInvalidTransition(string(current.Status), string(space.StatusInProgress))
	}
	return s.ops(api).Start(ctx, spacePK, block)
}

func (s *Service) Finish(ctx context.Context, token, spacePK string, block bool) error {
	api := s.apiFor(token)
	current, err := s.requireAdmin(ctx, api, spacePK)
	if err != nil {
		return err
	}
	if !space.CanTransition(current.Status, space.StatusFinished) {
		return errInvalidTransition(string(current.Status), string(space.StatusFinished))
	}
	return s.ops(api).Finish(ctx, spacePK, block)
}

func (s *Service) Delete(ctx context.Context, token, spacePK string) error {
	api := s.apiFor(token)
	if _, err := s.requireAdmin(ctx, api, spacePK); err != nil {
		return err
	}
	return s.ops(api).Delete(ctx, spacePK)
}

func (s *Service) UpdateVisibility(ctx context.Context, token, spacePK string, visibility space.Visibility) error {
	api := s.apiFor(token)
	current, err := s.requireAdmin(ctx, api, spacePK)
	if err != nil {
		return err
	}
	if !current.ChangeVisibility {
		return errForbidden()
	}
	return s.ops(api).UpdateVisibility(ctx, spacePK, visibility)
}

func (s *Service) UpdateAnonymousParticipation(ctx context.Context, token, spacePK string, anonymous bool) error {
	api := s.apiFor(token)
	if _, err := s.requireAdmin(ctx, api, spacePK); err != nil {
		return err
	}
	return s.ops(api).UpdateAnonymousParticipation(ctx, spacePK, anonymous)
}

func (s *Service) UpdateTitle(ctx context.Context, token, spacePK, title string) error {
	if title == "" {
		return errValidation("title is required")
	}
	api := s.apiFor(token)
	if _, err := s.requireAdmin(ctx, api, spacePK); err != nil {
		return err
	}
	return s.ops(api).UpdateTitle(ctx, spacePK, title)
}

func (s *Service) Participate(ctx context.Context, token, spacePK, verifiablePresentation string) error {
	api := s.apiFor(token)
	if err := api.ParticipateSpace(ctx, spacePK, verifiablePresentation); err != nil {
		return err
	}
	if err := s.optimistic.Invalidate(ctx, cache.Key(spacePK)); err != nil {
		return fmt.Errorf("invalidate after participate: %w", err)
	}
	return nil
}

// GatePoll returns the poll behind the currently active PrePoll gate.
func (s *Service) GatePoll(ctx context.Context, token, spacePK string) (*space.Poll, error) {
	api := s.apiFor(token)
	current, err := s.loadSpace(ctx, api, spacePK)
	if err != nil {
		return nil, err
	}
	controller := gate.NewController(spacePK, current.Requirements, api)
	poll, err := controller.CurrentPoll(ctx)
	if err != nil {
		return nil, domainError(http.StatusConflict, "NO_ACTIVE_GATE", err.Error(), nil)
	}
	return poll, nil
}

// SubmitGateResponse answers the current PrePoll gate. The requirement
// key in the request must match the gate the cursor sits on; answering
// out of order is rejected. On success the cached requirement is
// marked responded so the next view advances without a refetch.
func (s *Service) SubmitGateResponse(ctx context.Context, token, spacePK, requirementSK string, answers []space.Answer) (map[string]any, error) {
	api := s.apiFor(token)
	current, err := s.loadSpace(ctx, api, spacePK)
	if err != nil {
		return nil, err
	}

	controller := gate.NewController(spacePK, current.Requirements, api)
	active, ok := controller.Current()
	if !ok {
		return nil, domainError(http.StatusConflict, "NO_ACTIVE_GATE", "All requirements satisfied", nil)
	}
	if requirementSK != "" && requirementSK != active.Requirement.SK {
		return nil, domainError(http.StatusConflict, "GATE_ORDER", "Requirements must be answered in order", map[string]any{
			"expected": active.Requirement.SK,
		})
	}
	if active.Kind != gate.GatePrePoll {
		return nil, domainError(http.StatusConflict, "GATE_NOT_ANSWERABLE", "Current requirement takes no answers", nil)
	}

	if err := controller.SubmitCurrent(ctx, answers); err != nil {
		return nil, err
	}

	// The upstream accepted the answer; this write is confirmation, not
	// speculation, so the rollback handle is discarded.
	if _, err := s.optimistic.Apply(ctx, cache.Key(spacePK), func(cached *space.Space) (*space.Space, error) {
		for i := range cached.Requirements {
			if cached.Requirements[i].SK == active.Requirement.SK {
				cached.Requirements[i].Responded = true
			}
		}
		return cached, nil
	}); err != nil {
		return nil, fmt.Errorf("mark requirement responded: %w", err)
	}

	state := map[string]any{
		"done":   controller.Done(),
		"cursor": controller.Cursor(),
	}
	if next, ok := controller.Current(); ok {
		state["current"] = map[string]any{
			"kind":           string(next.Kind),
			"requirement_sk": next.Requirement.SK,
			"poll_sk":        next.PollSK,
		}
	}
	return state, nil
}
