package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/JonMunkholm/SqlAssist/internal/assistant"
)

const (
	cookieName   = "sqlassist"
	sessionIDKey = "sid"
	sessionTTL   = 24 * time.Hour
)

// sessionStore keeps each session's assistant.State server-side. The cookie
// carries only the session id.
type sessionStore struct {
	cookies *sessions.CookieStore

	mu     sync.Mutex
	states map[string]*sessionEntry
	now    func() time.Time
}

// sessionEntry serializes the actions of one session.
type sessionEntry struct {
	mu       sync.Mutex
	state    assistant.State
	lastSeen time.Time
}

func newSessionStore(secret string) *sessionStore {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	cookies := sessions.NewCookieStore(key)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &sessionStore{
		cookies: cookies,
		states:  make(map[string]*sessionEntry),
		now:     time.Now,
	}
}

// open returns the cookie session and the state entry for the request,
// creating both when needed. A cookie that fails to decode starts a new
// session.
func (s *sessionStore) open(r *http.Request) (*sessions.Session, *sessionEntry) {
	sess, _ := s.cookies.Get(r, cookieName)
	id, _ := sess.Values[sessionIDKey].(string)
	if id == "" {
		id = uuid.NewString()
		sess.Values[sessionIDKey] = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry, ok := s.states[id]
	if !ok {
		s.evictLocked(now)
		entry = &sessionEntry{state: assistant.NewState()}
		s.states[id] = entry
	}
	entry.lastSeen = now
	return sess, entry
}

func (s *sessionStore) evictLocked(now time.Time) {
	for id, e := range s.states {
		if now.Sub(e.lastSeen) > sessionTTL {
			delete(s.states, id)
		}
	}
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
