// Package lifecycle implements the named Space transitions (publish,
// start, finish, delete, field updates) and derives the actions an
// admin may invoke. Every mutation writes the cache optimistically and
// rolls the write back when the upstream rejects it.
package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"agora/gateway/internal/remote"
)

// Toasts is the user-visible notification surface. Presentation is
// external; the gateway only emits translated messages.
type Toasts interface {
	Success(message string)
	Error(message string)
	Info(message string)
	Warning(message string)
}

// Popup is whatever action popup triggered the transition. Close is
// called unconditionally when the operation settles.
type Popup interface {
	Close()
}

// Navigator moves the viewer after transitions that destroy the
// current surface (delete).
type Navigator interface {
	Navigate(path string)
}

// Translator resolves message keys. Localized content is out of scope;
// implementations may echo the key.
type Translator interface {
	T(key string, vars ...any) string
}

// ContractCaller drives the external incentive-selection smart
// contract during Finish. The chain integration itself is an external
// collaborator.
type ContractCaller interface {
	SelectIncentives(ctx context.Context, contractAddress string, candidates []remote.IncentiveCandidate) error
}

type logToasts struct{}

// NewLogToasts returns a Toasts sink that writes to the process log.
// Used when no presentation layer is attached (CLI runs, tests of
// wiring).
func NewLogToasts() Toasts { return logToasts{} }

func (logToasts) Success(message string) { log.Printf("toast success: %s", message) }
func (logToasts) Error(message string)   { log.Printf("toast error: %s", message) }
func (logToasts) Info(message string)    { log.Printf("toast info: %s", message) }
func (logToasts) Warning(message string) { log.Printf("toast warning: %s", message) }

type noopPopup struct{}

func NewNoopPopup() Popup { return noopPopup{} }
func (noopPopup) Close() {}

// KeyTranslator echoes translation keys. The gateway ships keys over
// the wire; clients localize.
type KeyTranslator struct{}

func (KeyTranslator) T(key string, _ ...any) string { return key }

// rpcContractCaller relays incentive selection to an external signer
// service that submits the on-chain transaction.
type rpcContractCaller struct {
	url  string
	http *http.Client
}

func NewRPCContractCaller(url string, timeout time.Duration) ContractCaller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &rpcContractCaller{url: url, http: &http.Client{Timeout: timeout}}
}

func (c *rpcContractCaller) SelectIncentives(ctx context.Context, contractAddress string, candidates []remote.IncentiveCandidate) error {
	body, err := json.Marshal(map[string]any{
		"contract_address": contractAddress,
		"candidates":       candidates,
	})
	if err != nil {
		return fmt.Errorf("marshal incentive selection: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build incentive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("incentive selection call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("incentive selection rejected: status %d", resp.StatusCode)
	}
	return nil
}
