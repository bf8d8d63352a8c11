// Package observability exposes the Prometheus collectors of the session
// subsystem.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce     sync.Once
	sessionTouches   prometheus.Counter
	sessionClosures  *prometheus.CounterVec
	tokenRejections  *prometheus.CounterVec
	sideEffectErrors *prometheus.CounterVec
)

// RegisterMetrics initialises and registers the collectors once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		sessionTouches = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_touches_total",
			Help: "Activity rows appended for authenticated requests.",
		})
		sessionClosures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_closures_total",
			Help: "Sessions closed, by cause.",
		}, []string{"cause"})
		tokenRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_rejections_total",
			Help: "Requests rejected during token decoding, by failed check.",
		}, []string{"reason"})
		sideEffectErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_side_effect_errors_total",
			Help: "Swallowed failures of non-critical session side effects.",
		}, []string{"effect"})

		prometheus.MustRegister(sessionTouches, sessionClosures, tokenRejections, sideEffectErrors)
	})
}

// SessionTouches counts activa rows written by the guard.
func SessionTouches() prometheus.Counter {
	RegisterMetrics()
	return sessionTouches
}

// SessionClosures counts cerrada rows by cause (inactivity, logout, new_code).
func SessionClosures() *prometheus.CounterVec {
	RegisterMetrics()
	return sessionClosures
}

// TokenRejections counts decode failures by reason. The reason never reaches
// the client.
func TokenRejections() *prometheus.CounterVec {
	RegisterMetrics()
	return tokenRejections
}

// SideEffectErrors counts swallowed touch, close and notification failures.
func SideEffectErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return sideEffectErrors
}
