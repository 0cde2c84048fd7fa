package domain

import "github.com/google/uuid"

// RoleSystem is the role granted to the dispatcher's own internal control
// loop, authorizing request_driver/release_driver on trips it does not own.
const RoleSystem = "system"

// User is the authenticated caller, resolved upstream and injected into
// every request. Roles are checked by internal/authz alongside the current
// state of the resource being acted on.
type User struct {
	ID    uuid.UUID `json:"id"`
	Roles []string  `json:"roles"`
}

// HasRole reports whether the user carries the given role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
