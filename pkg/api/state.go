package api

import "fmt"

// IsTerminal reports whether the status is final. Terminal requests accept
// no further transitions.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusCompleted, RequestStatusFailed, RequestStatusPartial:
		return true
	}
	return false
}

// Valid reports whether s is one of the known request statuses.
func (s RequestStatus) Valid() bool {
	return s == RequestStatusRunning || s.IsTerminal()
}

// CanTransitionTo reports whether a request in status s may move to next.
// The empty status is the state before the request exists.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	valid := map[RequestStatus][]RequestStatus{
		"":                   {RequestStatusRunning},
		RequestStatusRunning: {RequestStatusCompleted, RequestStatusFailed, RequestStatusPartial},
	}
	for _, allowed := range valid[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateRequestTransition returns an invalid_request error when the
// transition from -> to is not permitted.
func ValidateRequestTransition(from, to RequestStatus) *APIError {
	if from.CanTransitionTo(to) {
		return nil
	}
	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", displayStatus(from), to))
}

func displayStatus(s RequestStatus) string {
	if s == "" {
		return "<new>"
	}
	return string(s)
}
