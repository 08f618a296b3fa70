package missions

// Mission statuses. The chain is strictly linear; every advance moves to
// the immediate successor and there is no way back.
const (
	StatusAssigned  = "ASSIGNED"
	StatusAccepted  = "ACCEPTED"
	StatusEnRoute   = "EN_ROUTE"
	StatusOnSite    = "ON_SITE"
	StatusCompleted = "COMPLETED"
)

var successor = map[string]string{
	StatusAssigned: StatusAccepted,
	StatusAccepted: StatusEnRoute,
	StatusEnRoute:  StatusOnSite,
	StatusOnSite:   StatusCompleted,
}

// Assignment roles.
const (
	RoleLeader = "LEADER"
	RoleMember = "MEMBER"
)

// Mission log actions for the two seed entries. Status transitions log
// the reached status itself as the action.
const (
	LogCreated  = "CREATED"
	LogAssigned = "ASSIGNED"
)

func ValidStatus(status string) bool {
	if status == StatusCompleted {
		return true
	}
	_, ok := successor[status]
	return ok
}

// Next returns the immediate successor of a status, "" for COMPLETED.
func Next(status string) string {
	return successor[status]
}

func ValidAssignmentRole(role string) bool {
	return role == RoleLeader || role == RoleMember
}
