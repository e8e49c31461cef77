package domain

// Action names a state transition of a job or its match.
type Action string

const (
	ActionAccept     Action = "accept"
	ActionDepart     Action = "depart"
	ActionArrive     Action = "arrive"
	ActionStartWork  Action = "start_work"
	ActionComplete   Action = "complete"
	ActionClientSign Action = "client_sign"
	ActionCancel     Action = "cancel"
)

// matchTransitions is the only definition of legal match transitions.
// Signed and Cancelled have no outgoing edges.
var matchTransitions = map[MatchStatus]map[Action]MatchStatus{
	MatchAccepted: {
		ActionDepart: MatchEnRoute,
		ActionCancel: MatchCancelled,
	},
	MatchEnRoute: {
		ActionArrive: MatchArrived,
		ActionCancel: MatchCancelled,
	},
	MatchArrived: {
		ActionStartWork: MatchWorking,
		ActionCancel:    MatchCancelled,
	},
	MatchWorking: {
		ActionComplete: MatchCompleted,
		ActionCancel:   MatchCancelled,
	},
	MatchCompleted: {
		ActionClientSign: MatchSigned,
		ActionCancel:     MatchCancelled,
	},
}

// jobTransitions is the only definition of legal job transitions.
var jobTransitions = map[JobStatus]map[Action]JobStatus{
	JobOpen: {
		ActionAccept: JobMatched,
		ActionCancel: JobCancelled,
	},
	JobMatched: {
		ActionArrive: JobInProgress,
		ActionCancel: JobCancelled,
	},
	JobInProgress: {
		ActionClientSign: JobCompleted,
		ActionCancel:     JobCancelled,
	},
}

// NextMatchStatus returns the status reached by applying a to from, or
// ErrInvalidTransition.
func NextMatchStatus(from MatchStatus, a Action) (MatchStatus, error) {
	next, ok := matchTransitions[from][a]
	if !ok {
		return from, ErrInvalidTransition
	}
	return next, nil
}

// NextJobStatus returns the status reached by applying a to from, or
// ErrInvalidTransition.
func NextJobStatus(from JobStatus, a Action) (JobStatus, error) {
	next, ok := jobTransitions[from][a]
	if !ok {
		return from, ErrInvalidTransition
	}
	return next, nil
}

// AffectsJob reports whether a has a job-level effect.
func AffectsJob(a Action) bool {
	for _, edges := range jobTransitions {
		if _, ok := edges[a]; ok {
			return true
		}
	}
	return false
}
