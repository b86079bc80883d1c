// Package session tracks whether the user is browsing as a guest or as an
// authenticated account, and tells subscribers when that changes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/oauth2"

	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
)

// Status is the session mode
type Status string

const (
	StatusGuest         Status = "guest"
	StatusAuthenticated Status = "authenticated"
)

// Reason names the event behind a transition
type Reason string

const (
	ReasonHydrate       Reason = "hydrate"
	ReasonLogin         Reason = "login"
	ReasonRegister      Reason = "register"
	ReasonLogout        Reason = "logout"
	ReasonTokenRejected Reason = "token_rejected"
)

// Transition describes a session change. From and To are equal when an
// authenticated session switches to a different token.
type Transition struct {
	From   Status
	To     Status
	Reason Reason
}

// Listener receives transitions synchronously, after the new state is visible
type Listener func(ctx context.Context, t Transition)

// Identity is what the data layer knows about the signed-in account
type Identity struct {
	Token string
	User  *models.User
}

// ErrNoToken is returned by Token while in guest mode
var ErrNoToken = errors.New("no session token")

// Authenticator performs the account calls behind Login and Register
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, fullName, email, password string) (string, error)
	Profile(ctx context.Context, token string) (*models.User, error)
}

// State is the injectable session value
type State struct {
	mu     sync.RWMutex
	status Status
	token  string
	user   *models.User

	// serializes state change + notification so listeners see transitions in order
	transitionMu sync.Mutex

	listenerMu sync.Mutex
	listeners  map[int]Listener
	nextID     int

	store  SecureStore
	auth   Authenticator
	logger *observability.Logger
}

// New creates a guest session
func New(store SecureStore, auth Authenticator, logger *observability.Logger) *State {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = observability.Component("session")
	}
	return &State{
		status:    StatusGuest,
		listeners: make(map[int]Listener),
		store:     store,
		auth:      auth,
		logger:    logger,
	}
}

// Status returns the current session mode
func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Identity returns the signed-in identity; false in guest mode
func (s *State) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusAuthenticated {
		return Identity{}, false
	}
	return Identity{Token: s.token, User: s.user}, true
}

// Token implements oauth2.TokenSource so HTTP clients always send the
// current session token.
func (s *State) Token() (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusAuthenticated || s.token == "" {
		return nil, ErrNoToken
	}
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}

// Subscribe registers fn for future transitions and returns its unsubscribe func
func (s *State) Subscribe(fn Listener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

// Hydrate restores a persisted session at start-up
func (s *State) Hydrate(ctx context.Context) error {
	token, ok, err := s.store.Get(KeyToken)
	if err != nil {
		return fmt.Errorf("read session token: %w", err)
	}
	if !ok || token == "" {
		return nil
	}

	var user *models.User
	if raw, ok, err := s.store.Get(KeyUser); err == nil && ok && raw != "" {
		var u models.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.WithError(err).Warn("Ignoring unreadable stored user profile")
		} else {
			user = &u
		}
	}

	s.transition(ctx, StatusAuthenticated, token, user, ReasonHydrate)
	return nil
}

// Login authenticates, persists the token and profile, then transitions
func (s *State) Login(ctx context.Context, email, password string) error {
	if s.auth == nil {
		return fmt.Errorf("login: no authenticator configured")
	}
	token, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return s.signIn(ctx, token, ReasonLogin)
}

// Register creates an account and signs in with it
func (s *State) Register(ctx context.Context, fullName, email, password string) error {
	if s.auth == nil {
		return fmt.Errorf("register: no authenticator configured")
	}
	token, err := s.auth.Register(ctx, fullName, email, password)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return s.signIn(ctx, token, ReasonRegister)
}

func (s *State) signIn(ctx context.Context, token string, reason Reason) error {
	user, err := s.auth.Profile(ctx, token)
	if err != nil {
		return fmt.Errorf("%s: fetch profile: %w", reason, err)
	}

	if err := s.store.Set(KeyToken, token); err != nil {
		return fmt.Errorf("%s: persist token: %w", reason, err)
	}
	if data, err := json.Marshal(user); err == nil {
		if err := s.store.Set(KeyUser, string(data)); err != nil {
			s.logger.WithError(err).Warn("Failed to persist user profile")
		}
	}

	s.transition(ctx, StatusAuthenticated, token, user, reason)
	return nil
}

// Logout forgets the credentials and returns to guest mode
func (s *State) Logout(ctx context.Context) error {
	err := s.forget()
	s.transition(ctx, StatusGuest, "", nil, ReasonLogout)
	return err
}

// Expire is called when the photo service rejects the session token. It
// behaves like Logout; calling it in guest mode does nothing.
func (s *State) Expire(ctx context.Context) {
	if s.Status() == StatusGuest {
		return
	}
	if err := s.forget(); err != nil {
		s.logger.WithError(err).Warn("Failed to clear rejected session token")
	}
	s.transition(ctx, StatusGuest, "", nil, ReasonTokenRejected)
}

func (s *State) forget() error {
	return errors.Join(s.store.Delete(KeyToken), s.store.Delete(KeyUser))
}

func (s *State) transition(ctx context.Context, to Status, token string, user *models.User, reason Reason) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	from := s.status
	changed := from != to || (to == StatusAuthenticated && s.token != token)
	s.status = to
	s.token = token
	s.user = user
	s.mu.Unlock()

	if !changed {
		return
	}

	s.logger.WithFields(map[string]interface{}{
		"from":   string(from),
		"to":     string(to),
		"reason": string(reason),
	}).Info("Session transition")

	t := Transition{From: from, To: to, Reason: reason}
	for _, fn := range s.snapshotListeners() {
		fn(ctx, t)
	}
}

func (s *State) snapshotListeners() []Listener {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}
