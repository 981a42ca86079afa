package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"agora/gateway/internal/auth"
	"agora/gateway/internal/cache"
	"agora/gateway/internal/lifecycle"
	"agora/gateway/internal/remote"
	"agora/gateway/internal/space"
)

var testSecret = []byte("test-secret")

type fakeUpstream struct {
	mu               sync.Mutex
	space            *space.Space
	poll             *space.Poll
	getSpaceCalls    int
	participateCalls int
	pollResponses    []string
	publishCalls     int
	startCalls       int
	patchCalls       []map[string]any
	deleteCalls      int
}

func (u *fakeUpstream) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// Everything below /v3/spaces/{pk}.
		if len(parts) < 3 || parts[0] != "v3" || parts[1] != "spaces" {
			http.NotFound(w, r)
			return
		}
		rest := parts[3:]

		switch {
		case len(rest) == 0 && r.Method == http.MethodGet:
			u.getSpaceCalls++
			_ = json.NewEncoder(w).Encode(u.space)
		case len(rest) == 0 && r.Method == http.MethodPatch:
			var patch map[string]any
			_ = json.NewDecoder(r.Body).Decode(&patch)
			u.patchCalls = append(u.patchCalls, patch)
			w.WriteHeader(http.StatusOK)
		case len(rest) == 0 && r.Method == http.MethodDelete:
			u.deleteCalls++
			w.WriteHeader(http.StatusOK)
		case len(rest) == 1 && rest[0] == "publish":
			u.publishCalls++
			u.space.PublishState = space.PublishStatePublished
			w.WriteHeader(http.StatusOK)
		case len(rest) == 1 && rest[0] == "start":
			u.startCalls++
			u.space.Status = space.StatusInProgress
			w.WriteHeader(http.StatusOK)
		case len(rest) == 1 && rest[0] == "participate":
			u.participateCalls++
			u.space.Participated = true
			w.WriteHeader(http.StatusOK)
		case len(rest) == 2 && rest[0] == "polls" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(u.poll)
		case len(rest) == 3 && rest[0] == "polls" && rest[2] == "responses":
			u.pollResponses = append(u.pollResponses, rest[1])
			for i := range u.space.Requirements {
				if u.space.Requirements[i].RelatedSK == rest[1] {
					u.space.Requirements[i].Responded = true
				}
			}
			w.WriteHeader(http.StatusOK)
		case len(rest) == 2 && rest[0] == "incentives" && rest[1] == "candidates":
			_ = json.NewEncoder(w).Encode(remote.IncentiveCandidates{})
		case len(rest) == 2 && rest[0] == "incentives" && rest[1] == "user":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	})
}

type recordingNav struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNav) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

type nopContract struct{}

func (nopContract) SelectIncentives(context.Context, string, []remote.IncentiveCandidate) error {
	return nil
}

type gatewayFixture struct {
	handler  http.Handler
	upstream *fakeUpstream
	nav      *recordingNav
	token    string
}

func newGateway(t *testing.T, entity *space.Space) *gatewayFixture {
	t.Helper()

	upstream := &fakeUpstream{space: entity, poll: &space.Poll{SK: "poll-1", Questions: []space.Question{{Title: "entry survey"}}}}
	upstreamServer := httptest.NewServer(upstream.handler())
	t.Cleanup(upstreamServer.Close)

	nav := &recordingNav{}
	service := NewService(
		cache.NewMemory(),
		remote.NewClient(upstreamServer.URL, time.Second),
		testSecret,
		lifecycle.NewLogToasts(),
		lifecycle.NewNoopPopup(),
		nav,
		lifecycle.KeyTranslator{},
		nopContract{},
	)

	token, err := auth.IssueToken(testSecret, "USER#1", "Avery", "participant", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	return &gatewayFixture{
		handler:  NewHTTPServer(service, "*").Handler(),
		upstream: upstream,
		nav:      nav,
		token:    token,
	}
}

func (f *gatewayFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeView(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func participantSpace() *space.Space {
	return &space.Space{
		PK:           "space-1",
		SpaceType:    space.TypeDeliberation,
		Title:        "Budget deliberation",
		Status:       space.StatusInProgress,
		PublishState: space.PublishStatePublished,
		Visibility:   space.PublicVisibility(),
		Participated: true,
		Capability:   space.Capability{Role: space.RoleParticipant},
	}
}

func adminSpace() *space.Space {
	s := participantSpace()
	s.Capability = space.Capability{Role: space.RoleAdmin}
	s.ChangeVisibility = true
	return s
}

func TestHealthEndpoint(t *testing.T) {
	f := newGateway(t, participantSpace())
	f.token = ""
	recorder := f.do(t, http.MethodGet, "/api/health", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestSpaceViewRequiresToken(t *testing.T) {
	f := newGateway(t, participantSpace())
	f.token = ""
	recorder := f.do(t, http.MethodGet, "/api/spaces/space-1", "")
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
}

func TestSpaceViewCachesUpstreamRead(t *testing.T) {
	f := newGateway(t, participantSpace())

	for i := 0; i < 3; i++ {
		recorder := f.do(t, http.MethodGet, "/api/spaces/space-1", "")
		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d", recorder.Code)
		}
	}
	if f.upstream.getSpaceCalls != 1 {
		t.Fatalf("upstream reads = %d, want 1", f.upstream.getSpaceCalls)
	}
}

func TestSpaceViewAutoParticipates(t *testing.T) {
	entity := participantSpace()
	entity.Participated = false
	entity.CanParticipate = true
	f := newGateway(t, entity)

	recorder := f.do(t, http.MethodGet, "/api/spaces/space-1", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if f.upstream.participateCalls != 1 {
		t.Fatalf("participate calls = %d, want 1", f.upstream.participateCalls)
	}
	view := decodeView(t, recorder)
	entityView := view["space"].(map[string]any)
	if entityView["participated"] != true {
		t.Fatal("view should reflect the joined state after auto-participation")
	}

	// Attempted flag holds across views.
	f.do(t, http.MethodGet, "/api/spaces/space-1", "")
	if f.upstream.participateCalls != 1 {
		t.Fatalf("participate calls = %d after second view, want 1", f.upstream.participateCalls)
	}
}

func TestAdminActionOrdering(t *testing.T) {
	f := newGateway(t, adminSpace())

	recorder := f.do(t, http.MethodGet, "/api/spaces/space-1", "")
	view := decodeView(t, recorder)
	raw := view["actions"].([]any)
	actions := make([]string, 0, len(raw))
	for _, item := range raw {
		actions = append(actions, item.(string))
	}
	want := []string{"action_admin_start", "action_admin_to_private", "action_admin_delete"}
	if len(actions) != len(want) {
		t.Fatalf("actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("actions = %v, want %v", actions, want)
		}
	}
}

func TestPublishRequiresAdmin(t *testing.T) {
	entity := participantSpace()
	entity.PublishState = space.PublishStateDraft
	f := newGateway(t, entity)

	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/publish", `{"visibility":"Public"}`)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
	if f.upstream.publishCalls != 0 {
		t.Fatal("upstream publish must not run for non-admins")
	}
}

func TestPublishDraft(t *testing.T) {
	entity := adminSpace()
	entity.PublishState = space.PublishStateDraft
	entity.Status = ""
	f := newGateway(t, entity)

	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/publish", `{"visibility":"Public"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	if f.upstream.publishCalls != 1 {
		t.Fatalf("publish calls = %d, want 1", f.upstream.publishCalls)
	}

	// The cache entry was invalidated, so the next view refetches the
	// published state.
	before := f.upstream.getSpaceCalls
	view := decodeView(t, f.do(t, http.MethodGet, "/api/spaces/space-1", ""))
	if f.upstream.getSpaceCalls != before+1 {
		t.Fatal("expected a refetch after publish invalidated the cache")
	}
	entityView := view["space"].(map[string]any)
	if entityView["publish_state"] != string(space.PublishStatePublished) {
		t.Fatalf("publish_state = %v", entityView["publish_state"])
	}
}

func TestPublishAlreadyPublished(t *testing.T) {
	f := newGateway(t, adminSpace())
	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/publish", `{"visibility":"Public"}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
	view := decodeView(t, recorder)
	if view["code"] != "ALREADY_PUBLISHED" {
		t.Fatalf("code = %v", view["code"])
	}
}

func TestStartInvalidTransition(t *testing.T) {
	entity := adminSpace()
	entity.Status = space.StatusFinished
	f := newGateway(t, entity)

	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/start", `{}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
	view := decodeView(t, recorder)
	if view["code"] != "INVALID_TRANSITION" {
		t.Fatalf("code = %v", view["code"])
	}
	if f.upstream.startCalls != 0 {
		t.Fatal("upstream start must not run on an invalid transition")
	}
}

func TestStartFromWaiting(t *testing.T) {
	entity := adminSpace()
	entity.Status = space.StatusWaiting
	f := newGateway(t, entity)

	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/start", `{"block_participate":true}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	if f.upstream.startCalls != 1 {
		t.Fatalf("start calls = %d, want 1", f.upstream.startCalls)
	}

	view := decodeView(t, f.do(t, http.MethodGet, "/api/spaces/space-1", ""))
	entityView := view["space"].(map[string]any)
	if entityView["status"] != string(space.StatusInProgress) {
		t.Fatalf("status after start = %v", entityView["status"])
	}
}

func TestFinishMarksSpaceFinished(t *testing.T) {
	f := newGateway(t, adminSpace())

	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/finish", `{"block_participate":true}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	if len(f.upstream.patchCalls) != 1 {
		t.Fatalf("patch calls = %d, want 1", len(f.upstream.patchCalls))
	}
	if f.upstream.patchCalls[0]["finished"] != true {
		t.Fatalf("patch body = %v", f.upstream.patchCalls[0])
	}

	view := decodeView(t, f.do(t, http.MethodGet, "/api/spaces/space-1", ""))
	entityView := view["space"].(map[string]any)
	if entityView["status"] != string(space.StatusFinished) {
		t.Fatalf("status after finish = %v", entityView["status"])
	}
}

func TestDeleteNavigatesHome(t *testing.T) {
	f := newGateway(t, adminSpace())

	recorder := f.do(t, http.MethodDelete, "/api/spaces/space-1", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	if f.upstream.deleteCalls != 1 {
		t.Fatalf("delete calls = %d, want 1", f.upstream.deleteCalls)
	}
	if len(f.nav.paths) != 1 || f.nav.paths[0] != "/" {
		t.Fatalf("navigations = %v", f.nav.paths)
	}
}

func TestVisibilityRejectsUnknownKind(t *testing.T) {
	f := newGateway(t, adminSpace())
	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/visibility", `{"type":"Cloaked"}`)
	if recorder.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", recorder.Code)
	}
}

func TestVisibilityRequiresCapability(t *testing.T) {
	entity := adminSpace()
	entity.ChangeVisibility = false
	f := newGateway(t, entity)

	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/visibility", `{"type":"Private"}`)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
}

func TestAnonymousSpaceMasksParticipant(t *testing.T) {
	entity := participantSpace()
	entity.AnonymousParticipation = true
	entity.ParticipantDisplayName = "Avery Doe"
	entity.ParticipantUsername = "avery"
	entity.ParticipantProfileURL = "https://cdn.example/avery.png"
	f := newGateway(t, entity)

	view := decodeView(t, f.do(t, http.MethodGet, "/api/spaces/space-1", ""))
	entityView := view["space"].(map[string]any)
	if entityView["participant_display_name"] != "anonymous" {
		t.Fatalf("display name = %v", entityView["participant_display_name"])
	}
	if _, ok := entityView["participant_username"]; ok {
		t.Fatal("username must be dropped on anonymous spaces")
	}
}

func gatedSpace() *space.Space {
	s := participantSpace()
	s.Requirements = []space.Requirement{
		{PK: "space-1", SK: "req-2", Order: 2, Type: space.RequirementPrePoll, RelatedSK: "poll-2"},
		{PK: "space-1", SK: "req-1", Order: 1, Type: space.RequirementPrePoll, RelatedSK: "poll-1"},
	}
	return s
}

func TestGateOrderEnforced(t *testing.T) {
	f := newGateway(t, gatedSpace())

	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/gate/responses", `{"requirement_sk":"req-2","answers":[]}`)
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
	view := decodeView(t, recorder)
	if view["code"] != "GATE_ORDER" {
		t.Fatalf("code = %v", view["code"])
	}
	if len(f.upstream.pollResponses) != 0 {
		t.Fatal("out-of-order answers must not reach upstream")
	}
}

func TestGateSubmitAdvancesCursor(t *testing.T) {
	f := newGateway(t, gatedSpace())

	recorder := f.do(t, http.MethodPost, "/api/spaces/space-1/gate/responses", `{"requirement_sk":"req-1","answers":[]}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	state := decodeView(t, recorder)
	if state["done"] != false {
		t.Fatal("expected a second gate after the first answer")
	}
	next := state["current"].(map[string]any)
	if next["requirement_sk"] != "req-2" {
		t.Fatalf("next gate = %v", next["requirement_sk"])
	}
	if len(f.upstream.pollResponses) != 1 || f.upstream.pollResponses[0] != "poll-1" {
		t.Fatalf("poll responses = %v", f.upstream.pollResponses)
	}

	recorder = f.do(t, http.MethodPost, "/api/spaces/space-1/gate/responses", `{"requirement_sk":"req-2","answers":[]}`)
	state = decodeView(t, recorder)
	if state["done"] != true {
		t.Fatalf("state = %v, want done", state)
	}
}

func TestGatePoll(t *testing.T) {
	f := newGateway(t, gatedSpace())

	recorder := f.do(t, http.MethodGet, "/api/spaces/space-1/gate/poll", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	view := decodeView(t, recorder)
	poll := view["poll"].(map[string]any)
	if poll["sk"] != "poll-1" {
		t.Fatalf("poll = %v", poll)
	}
}

func TestGatePollNoneActive(t *testing.T) {
	f := newGateway(t, participantSpace())

	recorder := f.do(t, http.MethodGet, "/api/spaces/space-1/gate/poll", "")
	if recorder.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", recorder.Code)
	}
}

func TestPreTaskGateReplacesMenus(t *testing.T) {
	f := newGateway(t, gatedSpace())

	view := decodeView(t, f.do(t, http.MethodGet, "/api/spaces/space-1", ""))
	if view["pre_task_required"] != true {
		t.Fatal("expected pre-task gating for a participant with pending requirements")
	}
	menus := view["side_menus"].([]any)
	first := menus[0].(map[string]any)
	if first["label"] != "menu_requirements" {
		t.Fatalf("first menu = %v", first["label"])
	}
}
