package space

import "sort"

type RequirementType string

const (
	// RequirementPrePoll gates space access behind answering a poll.
	RequirementPrePoll RequirementType = "PrePoll"
)

// Requirement is one gating task attached to a Space. Requirements are
// created server-side; the gateway only reads Responded and walks them
// in ascending Order.
type Requirement struct {
	PK        string          `json:"pk"`
	SK        string          `json:"sk,omitempty"`
	Order     int             `json:"order"`
	Type      RequirementType `json:"typ"`
	RelatedPK string          `json:"related_pk"`
	RelatedSK string          `json:"related_sk,omitempty"`
	Responded bool            `json:"responded"`
}

// SortRequirements returns the requirements in evaluation sequence.
// The input slice is not modified.
func SortRequirements(requirements []Requirement) []Requirement {
	sorted := make([]Requirement, len(requirements))
	copy(sorted, requirements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

// FirstPendingIndex returns the index of the first unresponded
// requirement in the given (already sorted) slice, or len(requirements)
// when none are pending.
func FirstPendingIndex(requirements []Requirement) int {
	for i, r := range requirements {
		if !r.Responded {
			return i
		}
	}
	return len(requirements)
}
