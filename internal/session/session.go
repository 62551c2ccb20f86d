// Package session keeps per-client key-value state across requests. A session
// is an explicit object loaded by Manager and handed to handlers through the
// gin context.
package session

import "maps"

// Well-known session keys.
const (
	KeyUserID       = "user_id"
	KeyLastActivity = "last_activity"
	KeyFlash        = "flash"
)

// Session is the key-value state of one client.
type Session struct {
	id       string
	values   map[string]string
	modified bool
}

// New creates a session with the given id and values.
func New(id string, values map[string]string) *Session {
	if values == nil {
		values = map[string]string{}
	}
	return &Session{id: id, values: values}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Session) Set(key, value string) {
	if cur, ok := s.values[key]; ok && cur == value {
		return
	}
	s.values[key] = value
	s.modified = true
}

func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.modified = true
}

// Clear drops every value.
func (s *Session) Clear() {
	if len(s.values) == 0 {
		return
	}
	s.values = map[string]string{}
	s.modified = true
}

// Pop returns and removes a value.
func (s *Session) Pop(key string) (string, bool) {
	v, ok := s.values[key]
	if ok {
		s.Delete(key)
	}
	return v, ok
}

// Modified reports whether the session changed since it was loaded.
func (s *Session) Modified() bool { return s.modified }

// Values returns a copy of the session contents.
func (s *Session) Values() map[string]string {
	return maps.Clone(s.values)
}

func (s *Session) markSaved() { s.modified = false }
