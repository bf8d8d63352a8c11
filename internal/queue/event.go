// Package queue defines the notification messages exchanged over RabbitMQ
// and the consumer that drains them.
package queue

// Queue names.
const (
	SessionClosedQueue = "session.closed"
	LoginCodeQueue     = "login.code"
)

// SessionClosedEvent is published when a session is closed on the
// subject's behalf, e.g. after the inactivity timeout.
type SessionClosedEvent struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	ClosedAt  string `json:"closed_at"`
	Reason    string `json:"reason"`
}

// LoginCodeEvent carries a one-time login code to be mailed.
type LoginCodeEvent struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
}
