package domain

// ConnectionStatus is the outcome of an upstream availability check.
type ConnectionStatus int

const (
	StatusUnconfigured ConnectionStatus = iota
	StatusAvailable
	StatusUnauthorized
	StatusUnknown
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusUnconfigured:
		return "unconfigured"
	case StatusAvailable:
		return "available"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Reachable reports whether the widget should treat the endpoint as usable.
// Unknown counts as reachable: a failed probe other than 401 is not taken as
// proof the endpoint is down.
func (s ConnectionStatus) Reachable() bool {
	return s == StatusAvailable || s == StatusUnknown
}
