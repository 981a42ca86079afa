package space

import (
	"encoding/json"
	"fmt"
)

type VisibilityKind string

const (
	VisibilityPrivate VisibilityKind = "Private"
	VisibilityPublic  VisibilityKind = "Public"
	VisibilityTeam    VisibilityKind = "Team"
)

// Visibility is a tagged union: Private, Public, or Team(team_pk).
// Decoding fails closed: an unknown shape or kind is an error, never a
// silent zero value.
type Visibility struct {
	Kind   VisibilityKind
	TeamPK string
}

func PrivateVisibility() Visibility {
	return Visibility{Kind: VisibilityPrivate}
}

func PublicVisibility() Visibility {
	return Visibility{Kind: VisibilityPublic}
}

func TeamVisibility(teamPK string) Visibility {
	return Visibility{Kind: VisibilityTeam, TeamPK: teamPK}
}

type visibilityWire struct {
	Type   VisibilityKind `json:"type"`
	TeamPK string         `json:"team_pk,omitempty"`
}

func (v Visibility) MarshalJSON() ([]byte, error) {
	kind := v.Kind
	if kind == "" {
		kind = VisibilityPrivate
	}
	return json.Marshal(visibilityWire{Type: kind, TeamPK: v.TeamPK})
}

func (v *Visibility) UnmarshalJSON(data []byte) error {
	// The upstream emits either a bare string ("Public") or the object
	// form {"type":"Team","team_pk":"..."}.
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parsed, err := ParseVisibility(asString, "")
		if err != nil {
			return err
		}
		*v = parsed
		return nil
	}

	var wire visibilityWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode visibility: %w", err)
	}
	parsed, err := ParseVisibility(string(wire.Type), wire.TeamPK)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVisibility validates a kind/team pair into a Visibility value.
func ParseVisibility(kind, teamPK string) (Visibility, error) {
	switch VisibilityKind(kind) {
	case VisibilityPrivate:
		return PrivateVisibility(), nil
	case VisibilityPublic:
		return PublicVisibility(), nil
	case VisibilityTeam:
		if teamPK == "" {
			return Visibility{}, fmt.Errorf("team visibility requires team_pk")
		}
		return TeamVisibility(teamPK), nil
	default:
		return Visibility{}, fmt.Errorf("unknown visibility %q", kind)
	}
}
