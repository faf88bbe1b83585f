package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Flash kinds understood by the templates.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

// SessionManager orchestrates cookie based sessions backed by Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	sealer     *Sealer

	mu        sync.RWMutex
	listeners []TokenListener
}

// Session holds per-request session data, including the upstream API token.
type Session struct {
	ID      string
	values  map[string]string
	userID  string
	token   string
	flashes []FlashMessage
	manager *SessionManager

	// state observed at load time, used to derive token events on commit
	loadedToken bool
	loadedUser  string

	isNew bool
	dirty bool
}

type sessionPayload struct {
	Values  map[string]string `json:"values"`
	UserID  string            `json:"user_id"`
	Token   string            `json:"token,omitempty"`
	Flashes []FlashMessage    `json:"flashes"`
}

// NewSessionManager constructs a SessionManager. The secret keys the sealer
// that encrypts API tokens at rest.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		sealer:     NewSealer(secret),
	}
}

// Subscribe registers a listener for token set/cleared transitions.
func (sm *SessionManager) Subscribe(l TokenListener) {
	if l == nil {
		return
	}
	sm.mu.Lock()
	sm.listeners = append(sm.listeners, l)
	sm.mu.Unlock()
}

// Load loads or creates a new session for request.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.newSession(), nil
		}
		return nil, err
	}

	payload, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Unknown or expired id: never adopt a client supplied id.
			return sm.newSession(), nil
		}
		return nil, err
	}

	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, err
	}

	sess := sm.newSession()
	sess.ID = cookie.Value
	if stored.Values != nil {
		sess.values = stored.Values
	}
	sess.userID = stored.UserID
	sess.flashes = stored.Flashes
	if stored.Token != "" {
		if token, err := sm.sealer.Open(stored.Token); err == nil {
			sess.token = token
		}
	}
	sess.loadedToken = sess.token != ""
	sess.loadedUser = sess.userID
	sess.isNew = false
	sess.dirty = false
	return sess, nil
}

// Commit persists the session and writes cookie headers as needed.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.ID == "" {
		sess.ID = sm.generateSessionID()
	}

	if sess.dirty || sess.isNew {
		payload := sessionPayload{Values: sess.values, UserID: sess.userID, Flashes: sess.flashes}
		if sess.token != "" {
			sealed, err := sm.sealer.Seal(sess.token)
			if err != nil {
				return err
			}
			payload.Token = sealed
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sm.redisKey(sess.ID), data, sm.ttl).Err(); err != nil {
			return err
		}
		sess.dirty = false
		sess.isNew = false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	sm.notify(ctx, sess)
	return nil
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

func (sm *SessionManager) notify(ctx context.Context, sess *Session) {
	has := sess.token != ""
	var kind TokenEventKind
	switch {
	case has && !sess.loadedToken:
		kind = TokenSet
	case !has && sess.loadedToken:
		kind = TokenCleared
	default:
		return
	}
	user := sess.userID
	if user == "" {
		user = sess.loadedUser
	}
	ev := TokenEvent{Kind: kind, SessionID: sess.ID, User: user, At: time.Now().UTC()}
	sess.loadedToken = has
	sess.loadedUser = sess.userID

	sm.mu.RLock()
	listeners := append([]TokenListener(nil), sm.listeners...)
	sm.mu.RUnlock()
	for _, l := range listeners {
		l.OnTokenEvent(ctx, ev)
	}
}

// Session helpers

// SetToken stores t as the active API credential, replacing any previous one.
func (s *Session) SetToken(t string) {
	s.token = t
	s.dirty = true
}

// Token returns the active API credential and whether one is present.
func (s *Session) Token() (string, bool) {
	if s == nil || s.token == "" {
		return "", false
	}
	return s.token, true
}

// ClearToken removes the API credential. Equivalent to logout.
func (s *Session) ClearToken() {
	if s.token == "" {
		return
	}
	s.token = ""
	s.dirty = true
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// SetUser records who logged in. The value is the login email.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the identity recorded at login.
func (s *Session) User() string {
	return s.userID
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if s == nil || len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		ID:      sm.generateSessionID(),
		values:  make(map[string]string),
		manager: sm,
		isNew:   true,
		dirty:   true,
	}
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}

func (sm *SessionManager) generateSessionID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
