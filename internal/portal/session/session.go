package session

import "time"

const maxFlashes = 5

// Flash is a one-shot notification carried to the next rendered page.
type Flash struct {
	Message string `json:"m"`
	Tone    string `json:"t"`
}

// state is the cookie payload. Keys are short because the whole value,
// after signing and encryption, has to fit in a single cookie.
type state struct {
	ID      string            `json:"i"`
	Created time.Time         `json:"c"`
	Seen    time.Time         `json:"s"`
	Values  map[string]string `json:"v,omitempty"`
	Flashes []Flash           `json:"f,omitempty"`
}

// Session is the per-browser state of one request. It is not safe for
// concurrent use; the middleware hands each request its own copy.
type Session struct {
	st    state
	dirty bool
}

// ID identifies the browser session across requests.
func (s *Session) ID() string {
	return s.st.ID
}

// Value returns the value stored under key.
func (s *Session) Value(key string) (string, bool) {
	v, ok := s.st.Values[key]
	return v, ok
}

// SetValue stores value under key.
func (s *Session) SetValue(key, value string) {
	if current, ok := s.st.Values[key]; ok && current == value {
		return
	}
	if s.st.Values == nil {
		s.st.Values = make(map[string]string)
	}
	s.st.Values[key] = value
	s.dirty = true
}

// DeleteValue removes key.
func (s *Session) DeleteValue(key string) {
	if _, ok := s.st.Values[key]; !ok {
		return
	}
	delete(s.st.Values, key)
	s.dirty = true
}

// AddFlash queues a notification for the next page render. Only the most
// recent flashes are kept.
func (s *Session) AddFlash(flash Flash) {
	if flash.Message == "" {
		return
	}
	s.st.Flashes = append(s.st.Flashes, flash)
	if over := len(s.st.Flashes) - maxFlashes; over > 0 {
		s.st.Flashes = s.st.Flashes[over:]
	}
	s.dirty = true
}

// ConsumeFlashes returns and clears queued flashes.
func (s *Session) ConsumeFlashes() []Flash {
	if len(s.st.Flashes) == 0 {
		return nil
	}
	out := s.st.Flashes
	s.st.Flashes = nil
	s.dirty = true
	return out
}

// Dirty reports whether the session changed since it was loaded or saved.
func (s *Session) Dirty() bool {
	return s.dirty
}
