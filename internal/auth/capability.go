package auth

import "github.com/intermernet/clubportal/internal/database"

// Capability is something a portal user may be allowed to do.
type Capability int

const (
	// ViewRoster lets any signed-in member see the visible roster, the
	// attendance lists and the statistics.
	ViewRoster Capability = iota
	// ManageEvents covers creating, editing and deleting events, their
	// exceptions, attendance on behalf of others and match results.
	ManageEvents
	// ManageMembers covers roster edits.
	ManageMembers
	// RunImports allows CSV uploads and the import history.
	RunImports
	// ViewHidden reveals members flagged hidden.
	ViewHidden
)

func (c Capability) String() string {
	switch c {
	case ViewRoster:
		return "view roster"
	case ManageEvents:
		return "manage events"
	case ManageMembers:
		return "manage members"
	case RunImports:
		return "run imports"
	case ViewHidden:
		return "view hidden members"
	}
	return "unknown"
}

var grants = map[database.Role][]Capability{
	database.RoleMember: {ViewRoster},
	database.RoleCoach:  {ViewRoster, ManageEvents},
	database.RoleBoard:  {ViewRoster, ManageEvents, ManageMembers, RunImports},
	database.RoleAdmin:  {ViewRoster, ManageEvents, ManageMembers, RunImports, ViewHidden},
}

// Principal is the authenticated caller of a request.
type Principal struct {
	MemberID int64
	Role     database.Role
}

// PrincipalFromClaims builds the principal a validated token describes.
func PrincipalFromClaims(c *Claims) Principal {
	return Principal{MemberID: c.MemberID, Role: c.Role}
}

// Can reports whether the principal's role grants c.
func (p Principal) Can(c Capability) bool {
	for _, g := range grants[p.Role] {
		if g == c {
			return true
		}
	}
	return false
}
