package domain

// Exchange is one archived user/assistant round trip.
type Exchange struct {
	PK        string
	SK        string
	SessionID string
	Question  string
	Answer    string
	Model     string
	Turn      int
	TTL       int64
}

// SessionMeta stores aggregate archive state for a session.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	LastActivity string
	Turns        int
	TTL          int64
}
