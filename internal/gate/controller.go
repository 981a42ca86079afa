// Package gate walks a Space's ordered requirements and holds the
// viewer on the current unsatisfied one until it is answered. Gates are
// strictly sequential: the next requirement is never presented before
// the current one has completed.
package gate

import (
	"context"
	"fmt"

	"agora/gateway/internal/space"
)

type GateKind string

const (
	// GatePrePoll collects answers for the poll the requirement points
	// at.
	GatePrePoll GateKind = "pre_poll"
	// GateOpaque is a requirement type this client does not know how to
	// render. It yields no gate content and passes through on advance.
	GateOpaque GateKind = "opaque"
)

// Gate describes the content to present for the current requirement.
type Gate struct {
	Kind        GateKind
	Requirement space.Requirement
	PollSK      string
}

type gateAPI interface {
	GetPoll(ctx context.Context, spacePK, pollSK string) (*space.Poll, error)
	SubmitPollResponse(ctx context.Context, spacePK, pollSK string, answers []space.Answer) error
}

// Controller is the requirement cursor state machine. The hosting
// layer owns when to construct and drop it; the controller itself only
// moves forward.
type Controller struct {
	spacePK      string
	requirements []space.Requirement
	cursor       int
	api          gateAPI
}

func NewController(spacePK string, requirements []space.Requirement, api gateAPI) *Controller {
	sorted := space.SortRequirements(requirements)
	return &Controller{
		spacePK:      spacePK,
		requirements: sorted,
		cursor:       space.FirstPendingIndex(sorted),
		api:          api,
	}
}

// Done reports whether the cursor has passed the last requirement.
func (c *Controller) Done() bool {
	return c.cursor >= len(c.requirements)
}

// ShouldHideLayout tells the surrounding layout to hide itself while
// gating is active.
func (c *Controller) ShouldHideLayout() bool {
	return !c.Done()
}

// Cursor exposes the current requirement index for the hosting layer.
func (c *Controller) Cursor() int {
	return c.cursor
}

// Current returns the gate for the requirement at the cursor, or
// ok=false when gating is complete.
func (c *Controller) Current() (Gate, bool) {
	if c.Done() {
		return Gate{}, false
	}
	requirement := c.requirements[c.cursor]
	switch requirement.Type {
	case space.RequirementPrePoll:
		return Gate{
			Kind:        GatePrePoll,
			Requirement: requirement,
			PollSK:      pollKey(requirement),
		}, true
	default:
		return Gate{Kind: GateOpaque, Requirement: requirement}, true
	}
}

// CurrentPoll loads the poll behind the current PrePoll gate.
func (c *Controller) CurrentPoll(ctx context.Context) (*space.Poll, error) {
	gate, ok := c.Current()
	if !ok {
		return nil, fmt.Errorf("no active gate")
	}
	if gate.Kind != GatePrePoll {
		return nil, fmt.Errorf("gate %s has no poll", gate.Kind)
	}
	return c.api.GetPoll(ctx, c.spacePK, gate.PollSK)
}

// SubmitCurrent sends the answers for the current PrePoll gate and
// advances only on success. A failed submission leaves the cursor in
// place so the same gate is re-presented.
func (c *Controller) SubmitCurrent(ctx context.Context, answers []space.Answer) error {
	gate, ok := c.Current()
	if !ok {
		return fmt.Errorf("no active gate")
	}
	if gate.Kind != GatePrePoll {
		return fmt.Errorf("gate %s does not take answers", gate.Kind)
	}

	if err := c.api.SubmitPollResponse(ctx, c.spacePK, gate.PollSK, answers); err != nil {
		return err
	}

	c.requirements[c.cursor].Responded = true
	c.Advance()
	return nil
}

// Advance moves the cursor to the next requirement. It is also the
// pass-through for opaque gates.
func (c *Controller) Advance() {
	if !c.Done() {
		c.cursor++
	}
}

func pollKey(requirement space.Requirement) string {
	if requirement.RelatedSK != "" {
		return requirement.RelatedSK
	}
	return requirement.RelatedPK
}
