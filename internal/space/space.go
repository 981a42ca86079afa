// Package space holds the Space entity model: lifecycle attributes,
// participation state, ordered gating requirements, and the derived
// predicates the controllers dispatch on. Spaces are only ever built
// from upstream JSON; the gateway never constructs one from scratch.
package space

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusInProgress Status = "InProgress"
	StatusFinished   Status = "Finished"
)

// StatusRank orders lifecycle states. The empty status ("not yet
// started/applicable") ranks before Waiting.
func StatusRank(s Status) int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusInProgress:
		return 2
	case StatusFinished:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether moving from one status to another keeps
// the Waiting -> InProgress -> Finished ordering monotonic.
func CanTransition(from, to Status) bool {
	return StatusRank(to) > StatusRank(from)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	if raw == nil || *raw == "" {
		*s = ""
		return nil
	}
	switch Status(*raw) {
	case StatusWaiting, StatusInProgress, StatusFinished:
		*s = Status(*raw)
		return nil
	default:
		return fmt.Errorf("unknown space status %q", *raw)
	}
}

type PublishState string

const (
	PublishStateDraft     PublishState = "Draft"
	PublishStatePublished PublishState = "Published"
)

func (p *PublishState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode publish state: %w", err)
	}
	switch PublishState(raw) {
	case PublishStateDraft, PublishStatePublished, "":
		*p = PublishState(raw)
		return nil
	default:
		return fmt.Errorf("unknown publish state %q", raw)
	}
}

type Type string

const (
	TypeDeliberation Type = "Deliberation"
	TypePoll         Type = "Poll"
	TypeNotice       Type = "Notice"
	TypeDao          Type = "Dao"
)

// Capability is the permission object embedded in a Space response.
type Capability struct {
	Role Role `json:"role"`
}

// Space is the central entity. Field names mirror the upstream /v3
// wire format; derived state lives in methods, never in fields.
type Space struct {
	PK string `json:"pk"`
	SK string `json:"sk,omitempty"`

	SpaceType Type   `json:"space_type"`
	Title     string `json:"title"`

	Status       Status       `json:"status,omitempty"`
	PublishState PublishState `json:"publish_state"`
	Visibility   Visibility   `json:"visibility"`

	StartedAt int64 `json:"started_at,omitempty"`
	EndedAt   int64 `json:"ended_at,omitempty"`
	CreatedAt int64 `json:"created_at,omitempty"`

	Participated           bool `json:"participated"`
	CanParticipate         bool `json:"can_participate"`
	AnonymousParticipation bool `json:"anonymous_participation"`
	BlockParticipate       bool `json:"block_participate"`
	ChangeVisibility       bool `json:"change_visibility"`
	Quota                  int64 `json:"quota"`
	Remains                int64 `json:"remains"`

	Requirements []Requirement `json:"requirements,omitempty"`

	Capability Capability `json:"capability"`

	ParticipantDisplayName string `json:"participant_display_name,omitempty"`
	ParticipantUsername    string `json:"participant_username,omitempty"`
	ParticipantProfileURL  string `json:"participant_profile_url,omitempty"`
}

func (s *Space) IsDraft() bool {
	return s.PublishState == PublishStateDraft
}

func (s *Space) IsPublic() bool {
	return s.Visibility.Kind == VisibilityPublic
}

func (s *Space) IsInProgress() bool {
	return s.Status == StatusInProgress
}

func (s *Space) IsFinished() bool {
	return s.Status == StatusFinished
}

// IsStarted reports whether the space's scheduled start time has
// passed. This is wall-clock state, distinct from the lifecycle status.
func (s *Space) IsStarted(now time.Time) bool {
	return s.StartedAt > 0 && now.Unix() >= s.StartedAt
}

// HavePreTasks reports whether any gating requirement is still
// unresponded.
func (s *Space) HavePreTasks() bool {
	for _, r := range s.Requirements {
		if !r.Responded {
			return true
		}
	}
	return false
}

func (s *Space) IsAdmin() bool {
	return NormalizeRole(string(s.Capability.Role)).Can(ActionAdmin)
}

// PreTaskRequired reports whether the viewer must be held on the
// requirement gate instead of the full space surface.
func (s *Space) PreTaskRequired() bool {
	return s.Participated && s.HavePreTasks() && !s.IsAdmin() && !s.IsFinished()
}

// Clone returns a deep copy. Optimistic transforms operate on clones so
// a rollback can restore the untouched snapshot.
func (s *Space) Clone() *Space {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Requirements != nil {
		clone.Requirements = make([]Requirement, len(s.Requirements))
		copy(clone.Requirements, s.Requirements)
	}
	return &clone
}
