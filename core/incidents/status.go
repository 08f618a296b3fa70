package incidents

// Incident lifecycle statuses.
const (
	StatusReported             = "REPORTED"
	StatusAwaitingVerification = "AWAITING_VERIFICATION"
	StatusVerified             = "VERIFIED"
	StatusUnreachable          = "UNREACHABLE"
	StatusFalseReport          = "FALSE_REPORT"
	StatusResolved             = "RESOLVED"
	StatusClosed               = "CLOSED"
)

// transitions is the adjacency table of the incident state machine. CLOSED
// is terminal: it has no outgoing edges and no edge leads out of it.
var transitions = map[string][]string{
	StatusReported:             {StatusAwaitingVerification, StatusClosed},
	StatusAwaitingVerification: {StatusVerified, StatusUnreachable, StatusFalseReport},
	StatusVerified:             {StatusResolved, StatusClosed},
	StatusUnreachable:          {StatusAwaitingVerification, StatusClosed},
	StatusFalseReport:          {StatusClosed},
	StatusResolved:             {StatusClosed},
	StatusClosed:               {},
}

// reporterCloseable lists the statuses from which the original reporter may
// close their own incident. Once field work has concluded (RESOLVED and
// beyond) closure belongs to administrators.
var reporterCloseable = map[string]bool{
	StatusReported:             true,
	StatusAwaitingVerification: true,
	StatusVerified:             true,
}

// verifiable lists the statuses in which a volunteer may file a
// verification record.
var verifiable = map[string]bool{
	StatusReported:             true,
	StatusAwaitingVerification: true,
}

// verification decisions
const (
	DecisionVerified    = "VERIFIED"
	DecisionUnreachable = "UNREACHABLE"
	DecisionFalseReport = "FALSE_REPORT"
)

func ValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidDecision(decision string) bool {
	switch decision {
	case DecisionVerified, DecisionUnreachable, DecisionFalseReport:
		return true
	}
	return false
}
