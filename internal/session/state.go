package session

// Role is the side a Session negotiates as.
type Role int

const (
	RoleUnassigned Role = iota
	RoleStreamer
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RoleUnassigned:
		return "Unassigned"
	case RoleStreamer:
		return "Streamer"
	case RoleViewer:
		return "Viewer"
	default:
		return "Unknown"
	}
}

// ParseRole maps "stream"/"streamer" and "view"/"viewer" to a Role.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "stream", "streamer":
		return RoleStreamer, true
	case "view", "viewer":
		return RoleViewer, true
	default:
		return RoleUnassigned, false
	}
}

// State is a step of the negotiation.
type State int

const (
	StateIdle State = iota
	StateOfferCreated
	StateOfferSent
	StateAwaitingOffer
	StateAwaitingAnswer
	StateAnswerCreated
	StateConnectedPending
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOfferCreated:
		return "OfferCreated"
	case StateOfferSent:
		return "OfferSent"
	case StateAwaitingOffer:
		return "AwaitingOffer"
	case StateAwaitingAnswer:
		return "AwaitingAnswer"
	case StateAnswerCreated:
		return "AnswerCreated"
	case StateConnectedPending:
		return "ConnectedPending"
	case StateConnected:
		return "Connected"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further negotiation step can follow.
func (s State) Terminal() bool {
	return s == StateConnected || s == StateFailed
}
