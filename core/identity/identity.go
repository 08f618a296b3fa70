// Package identity carries the "who is calling" context every engine
// operation receives explicitly. Nothing in the engine reads ambient state.
package identity

const (
	RoleCivilian  = "CIVILIAN"
	RoleVolunteer = "VOLUNTEER"
	RoleAdmin     = "ADMIN"
)

type Actor struct {
	UserID int64
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsVolunteer() bool {
	return a.Role == RoleVolunteer
}

func ValidRole(role string) bool {
	switch role {
	case RoleCivilian, RoleVolunteer, RoleAdmin:
		return true
	}
	return false
}
