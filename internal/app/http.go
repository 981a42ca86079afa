package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"agora/gateway/internal/auth"
	"agora/gateway/internal/cache"
	"agora/gateway/internal/remote"
	"agora/gateway/internal/space"
	"agora/gateway/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.corsOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(requestLogger)

	router.Get("/api/health", s.handleHealth)
	router.Head("/api/health", s.handleHealth)
	router.Get("/api/ready", s.handleReady)

	router.Route("/api/spaces/{spacePK}", func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Get("/", s.handleSpaceView)
		r.Delete("/", s.handleDelete)
		r.Post("/publish", s.handlePublish)
		r.Post("/start", s.handleStart)
		r.Post("/finish", s.handleFinish)
		r.Post("/visibility", s.handleVisibility)
		r.Post("/anonymity", s.handleAnonymity)
		r.Post("/title", s.handleTitle)
		r.Post("/participate", s.handleParticipate)
		r.Get("/gate/poll", s.handleGatePoll)
		r.Post("/gate/responses", s.handleGateResponse)
	})

	return router
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"cache": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["cache"] = map[string]any{"status": "error", "error": err.Error()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSpaceView(w http.ResponseWriter, r *http.Request) {
	session, token := sessionFrom(r)
	payload, err := s.service.SpaceView(r.Context(), session, token, spacePK(r))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Visibility space.Visibility `json:"visibility"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.Visibility.Kind == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "visibility is required", nil)
		return
	}
	_, token := sessionFrom(r)
	if err := s.service.Publish(r.Context(), token, spacePK(r), body.Visibility); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BlockParticipate bool `json:"block_participate"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	_, token := sessionFrom(r)
	if err := s.service.Start(r.Context(), token, spacePK(r), body.BlockParticipate); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleFinish(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BlockParticipate bool `json:"block_participate"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	_, token := sessionFrom(r)
	if err := s.service.Finish(r.Context(), token, spacePK(r), body.BlockParticipate); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	_, token := sessionFrom(r)
	if err := s.service.Delete(r.Context(), token, spacePK(r)); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type   string `json:"type"`
		TeamPK string `json:"team_pk"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	visibility, err := space.ParseVisibility(body.Type, body.TeamPK)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	_, token := sessionFrom(r)
	if err := s.service.UpdateVisibility(r.Context(), token, spacePK(r), visibility); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAnonymity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AnonymousParticipation bool `json:"anonymous_participation"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	_, token := sessionFrom(r)
	if err := s.service.UpdateAnonymousParticipation(r.Context(), token, spacePK(r), body.AnonymousParticipation); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleTitle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	_, token := sessionFrom(r)
	if err := s.service.UpdateTitle(r.Context(), token, spacePK(r), strings.TrimSpace(body.Title)); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleParticipate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VerifiablePresentation string `json:"verifiable_presentation"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	_, token := sessionFrom(r)
	if err := s.service.Participate(r.Context(), token, spacePK(r), body.VerifiablePresentation); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleGatePoll(w http.ResponseWriter, r *http.Request) {
	_, token := sessionFrom(r)
	poll, err := s.service.GatePoll(r.Context(), token, spacePK(r))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"poll": poll})
}

func (s *HTTPServer) handleGateResponse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequirementSK string         `json:"requirement_sk"`
		Answers       []space.Answer `json:"answers"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	_, token := sessionFrom(r)
	state, err := s.service.SubmitGateResponse(r.Context(), token, spacePK(r), body.RequirementSK, body.Answers)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type sessionKey struct{}

type sessionContext struct {
	session Session
	token   string
}

func (s *HTTPServer) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, sessionContext{session: session, token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) (Session, string) {
	value, _ := r.Context().Value(sessionKey{}).(sessionContext)
	return value.session, value.token
}

func spacePK(r *http.Request) string {
	return chi.URLParam(r, "spacePK")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr.Code, apiErr.Message, nil
	}
	if errors.Is(err, cache.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
