// Package liveness enforces the session idle timeout.
//
// A session moves Fresh -> Active -> Expired. Transitions only happen when a
// request arrives; nothing sweeps idle sessions in the background. Only
// interactive requests extend the idle window: a page left open and polling
// the API must not keep a session alive on its own.
package liveness

import (
	"net/http"
	"strings"
	"time"

	"messenger/internal/session"
)

// DefaultIdleTimeout applies when no timeout is configured.
const DefaultIdleTimeout = 1800 * time.Second

// Channel is the logical origin of a request.
type Channel int

const (
	// Interactive covers page navigation and plain form posts.
	Interactive Channel = iota
	// Background covers API and XMLHttpRequest polling.
	Background
)

func (c Channel) String() string {
	if c == Background {
		return "background"
	}
	return "interactive"
}

// ChannelOf classifies a request: anything under /api/ or sent with
// X-Requested-With: XMLHttpRequest is background traffic.
func ChannelOf(r *http.Request) Channel {
	if strings.HasPrefix(r.URL.Path, "/api/") || r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return Background
	}
	return Interactive
}

// Outcome is the result of evaluating a request against the idle timeout.
type Outcome int

const (
	// PassThrough means no identity is attached, so there is nothing to expire.
	PassThrough Outcome = iota
	// Fresh means the session had no recorded activity yet.
	Fresh
	// Active means the session is within the idle window.
	Active
	// Expired means the idle window elapsed and the session must be invalidated.
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Fresh:
		return "fresh"
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return "pass_through"
	}
}

// Guard evaluates sessions against an idle timeout.
type Guard struct {
	timeout time.Duration
}

// NewGuard builds a Guard. A non-positive timeout falls back to DefaultIdleTimeout.
func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	return &Guard{timeout: timeout}
}

// Timeout returns the idle window.
func (g *Guard) Timeout() time.Duration { return g.timeout }

// Evaluate classifies the session at now and, for interactive requests that
// may proceed, records now as the last activity. Elapsed time equal to the
// timeout is still active.
func (g *Guard) Evaluate(authenticated bool, s *session.Session, ch Channel, now time.Time) Outcome {
	if !authenticated {
		return PassThrough
	}

	last, ok, err := LastActivity(s)
	if err != nil {
		return Expired
	}

	outcome := Fresh
	if ok {
		if now.Sub(last) > g.timeout {
			return Expired
		}
		outcome = Active
	}

	if ch == Interactive {
		Touch(s, now)
	}
	return outcome
}

// Touch records now as the session's last activity.
func Touch(s *session.Session, now time.Time) {
	s.Set(session.KeyLastActivity, now.UTC().Format(time.RFC3339Nano))
}

// LastActivity reads the recorded activity time. ok is false when none is recorded.
func LastActivity(s *session.Session) (last time.Time, ok bool, err error) {
	raw, ok := s.Get(session.KeyLastActivity)
	if !ok {
		return time.Time{}, false, nil
	}
	last, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, true, err
	}
	return last, true, nil
}
