package entity

import "time"

// SessionStatus represents the lifecycle state of a browser session.
type SessionStatus string

const (
	SessionStatusStarting SessionStatus = "starting"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusStopping SessionStatus = "stopping"
	SessionStatusClosed   SessionStatus = "closed"
)

// Session is a live fingerprinted browser session bound to one account.
// Owned exclusively by the session manager; at most one non-closed session
// exists per account at any time.
type Session struct {
	AccountID  string        `json:"account_id"`
	ProfileRef string        `json:"profile_ref"`
	SessionID  string        `json:"session_id"`
	Endpoint   string        `json:"endpoint"`
	StartedAt  time.Time     `json:"started_at"`
	Status     SessionStatus `json:"status"`
}

// IsClosed reports whether the session has been fully torn down.
func (s *Session) IsClosed() bool {
	return s.Status == SessionStatusClosed
}

// Age returns how long the session has been alive at now.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}
