package session

import (
	"net/http"
	"time"

	"github.com/tutorias-uni/tutorias-api/internal/clientip"
)

// Request carries the parts of an HTTP request the guard looks at. Now is
// the instant the request is evaluated at; a zero value means the guard's
// clock.
type Request struct {
	Header     http.Header
	RemoteAddr string
	Method     string
	Path       string
	UserAgent  string
	Now        time.Time
}

// RequestFromHTTP captures r at instant now.
func RequestFromHTTP(r *http.Request, now time.Time) Request {
	return Request{
		Header:     r.Header,
		RemoteAddr: r.RemoteAddr,
		Method:     r.Method,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		Now:        now,
	}
}

// ClientIP resolves the originating address through proxy headers.
func (r Request) ClientIP() string {
	return clientip.Resolve(r.Header, r.RemoteAddr)
}

func (r Request) describe() string {
	if r.Method == "" && r.Path == "" {
		return "actividad"
	}
	return r.Method + " " + r.Path
}
