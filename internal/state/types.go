package state

// SessionStatus tracks whether the single live session is still usable.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
)

// Session is the single live, time-boxed grant of access to the monitored
// destination. At most one exists at any time, process-wide.
type Session struct {
	ID            string        `json:"id"`
	Purpose       string        `json:"purpose"`
	Minutes       int           `json:"minutes"`
	CreatedAt     int64         `json:"createdAt"`
	EndTime       int64         `json:"endTime"`
	AllowedTabIDs []int         `json:"allowedTabIds"`
	TargetURL     string        `json:"targetUrl"`
	Status        SessionStatus `json:"status"`
}

// PendingNavigation records a navigation that was deferred pending intention
// capture, keyed by the tab that attempted it.
type PendingNavigation struct {
	TargetURL       string `json:"targetUrl"`
	CreatedAt       int64  `json:"createdAt"`
	PreviousPurpose string `json:"previousPurpose,omitempty"`
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.AllowedTabIDs != nil {
		out.AllowedTabIDs = make([]int, len(s.AllowedTabIDs))
		copy(out.AllowedTabIDs, s.AllowedTabIDs)
	}
	return &out
}

// Allows reports whether tabID is currently permitted under this session.
func (s *Session) Allows(tabID int) bool {
	if s == nil {
		return false
	}
	for _, id := range s.AllowedTabIDs {
		if id == tabID {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the session has run out at the given wall-clock
// time in milliseconds. EndTime is the sole authority for expiry.
func (s *Session) ExpiredAt(nowMillis int64) bool {
	return nowMillis >= s.EndTime
}
