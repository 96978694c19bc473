package monitor

import (
	"context"
	"net/http"
	"sync"
)

// session is the in-memory state of one running monitor. The durable row is
// the source of truth across restarts; the session only exists while this
// process is driving the poll loop.
type session struct {
	id         string
	ownerID    string
	videoID    string
	liveChatID string
	cancel     context.CancelFunc

	mu            sync.Mutex
	cursor        string
	active        bool
	client        *http.Client
	webhookURL    string
	webhookLoaded bool
}

func (s *session) isActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *session) markInactive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

func (s *session) getCursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// advanceCursor moves the continuation token forward. Empty tokens are
// ignored so the cursor never resets to the live edge mid-session.
func (s *session) advanceCursor(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = token
}

func (s *session) getClient() *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *session) setClient(hc *http.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = hc
}

func (s *session) destination() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhookURL, s.webhookLoaded
}

func (s *session) setDestination(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.webhookURL = url
	s.webhookLoaded = true
}

// registry maps session id to running session state. It is the single answer
// to "is this monitor currently driven by this process".
type registry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

func (r *registry) put(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *registry) get(id string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *registry) all() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
