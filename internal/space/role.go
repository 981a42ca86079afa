package space

type Role string
type Action string

const (
	RoleViewer      Role = "viewer"
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

const (
	ActionRead        Action = "read"
	ActionParticipate Action = "participate"
	ActionAdmin       Action = "admin"
)

func (r Role) Can(action Action) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleParticipant:
		return action == ActionRead || action == ActionParticipate
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func NormalizeRole(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleParticipant, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}

// ViewerRole derives the effective role of the current viewer from the
// space itself: admin capability wins, then prior participation.
func (s *Space) ViewerRole() Role {
	if s.IsAdmin() {
		return RoleAdmin
	}
	if s.Participated {
		return RoleParticipant
	}
	return RoleViewer
}
