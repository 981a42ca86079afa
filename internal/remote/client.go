// Package remote is the HTTP client for the upstream /v3 spaces API.
// The upstream is the authority for every mutation; the gateway only
// mirrors its state optimistically.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"agora/gateway/internal/space"
)

// APIError is a non-2xx upstream response decoded from the error
// envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("upstream %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithToken returns a copy of the client that sends the viewer's
// bearer token with every request.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// SpacePatch is the PATCH body for a space. Nil fields are omitted so
// single-field patches stay single-field on the wire.
type SpacePatch struct {
	Finished               *bool             `json:"finished,omitempty"`
	BlockParticipate       *bool             `json:"block_participate,omitempty"`
	Visibility             *space.Visibility `json:"visibility,omitempty"`
	AnonymousParticipation *bool             `json:"anonymous_participation,omitempty"`
	Title                  *string           `json:"title,omitempty"`
}

type IncentiveCandidate struct {
	UserPK  string  `json:"user_pk"`
	Address string  `json:"evm_address"`
	Score   float64 `json:"score"`
}

type IncentiveCandidates struct {
	IncentiveAddress string               `json:"incentive_address"`
	Candidates       []IncentiveCandidate `json:"candidates"`
}

func (c *Client) GetSpace(ctx context.Context, spacePK string) (*space.Space, error) {
	var out space.Space
	if err := c.call(ctx, http.MethodGet, c.spacePath(spacePK), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PatchSpace(ctx context.Context, spacePK string, patch SpacePatch) error {
	return c.call(ctx, http.MethodPatch, c.spacePath(spacePK), patch, nil)
}

func (c *Client) PublishSpace(ctx context.Context, spacePK string, visibility space.Visibility) error {
	body := map[string]any{"visibility": visibility}
	return c.call(ctx, http.MethodPost, c.spacePath(spacePK, "publish"), body, nil)
}

func (c *Client) StartSpace(ctx context.Context, spacePK string, block bool) error {
	body := map[string]any{"block": block}
	return c.call(ctx, http.MethodPost, c.spacePath(spacePK, "start"), body, nil)
}

func (c *Client) DeleteSpace(ctx context.Context, spacePK string) error {
	return c.call(ctx, http.MethodDelete, c.spacePath(spacePK), nil, nil)
}

func (c *Client) ParticipateSpace(ctx context.Context, spacePK, verifiablePresentation string) error {
	body := map[string]any{"verifiable_presentation": verifiablePresentation}
	return c.call(ctx, http.MethodPost, c.spacePath(spacePK, "participate"), body, nil)
}

func (c *Client) GetPoll(ctx context.Context, spacePK, pollSK string) (*space.Poll, error) {
	var out space.Poll
	if err := c.call(ctx, http.MethodGet, c.spacePath(spacePK, "polls", pollSK), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SubmitPollResponse(ctx context.Context, spacePK, pollSK string, answers []space.Answer) error {
	body := map[string]any{"answers": answers}
	return c.call(ctx, http.MethodPost, c.spacePath(spacePK, "polls", pollSK, "responses"), body, nil)
}

func (c *Client) GetIncentiveCandidates(ctx context.Context, spacePK string) (*IncentiveCandidates, error) {
	var out IncentiveCandidates
	if err := c.call(ctx, http.MethodGet, c.spacePath(spacePK, "incentives", "candidates"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SelectIncentiveUsers(ctx context.Context, spacePK string, addresses []string) error {
	body := map[string]any{"incentive_addresses": addresses}
	return c.call(ctx, http.MethodPost, c.spacePath(spacePK, "incentives", "user"), body, nil)
}

func (c *Client) spacePath(spacePK string, parts ...string) string {
	segments := append([]string{"v3", "spaces", spacePK}, parts...)
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return "/" + strings.Join(segments, "/")
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Code: "UPSTREAM_ERROR"}
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		if envelope.Code != "" {
			apiErr.Code = envelope.Code
		}
		apiErr.Message = envelope.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
