// Package session owns the authenticated principal of one browser client.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/canteen-coders/canteen-client/internal/authclient"
	"github.com/canteen-coders/canteen-client/pkg/auth"
	"github.com/canteen-coders/canteen-client/pkg/enums"
	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/canteen-coders/canteen-client/pkg/kv"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/canteen-coders/canteen-client/pkg/metrics"
	"go.uber.org/multierr"
)

const (
	KeyToken     = "principal:token"
	KeyUserID    = "principal:userId"
	KeyRole      = "principal:role"
	KeyFirstName = "principal:firstName"

	DefaultLoginFailure        = "Login failed"
	DefaultRegistrationFailure = "Registration failed"
	RetryLaterMessage          = "Unable to reach the server. Please try again later."
)

// Principal is the authenticated identity. It exists only when token, user id
// and role are all present.
type Principal struct {
	Token     string     `json:"-"`
	UserID    string     `json:"userId"`
	Role      enums.Role `json:"role"`
	FirstName string     `json:"firstName,omitempty"`
}

func (p *Principal) clone() *Principal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func samePrincipal(a, b *Principal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Token == b.Token && a.UserID == b.UserID && a.Role == b.Role
}

// Authenticator is the remote login and registration collaborator.
type Authenticator interface {
	Login(ctx context.Context, creds authclient.Credentials) (*authclient.Identity, error)
	Register(ctx context.Context, reg authclient.Registration) error
}

// Listener receives every published principal, nil meaning logged out.
type Listener func(ctx context.Context, p *Principal)

type subscription struct {
	id int
	fn Listener
}

// LoginResult is the outcome of Login. Role is set only when OK; Unavailable
// marks network or server failures.
type LoginResult struct {
	OK          bool
	Role        enums.Role
	Message     string
	Unavailable bool
}

// RegisterResult is the outcome of Register.
type RegisterResult struct {
	OK          bool
	Message     string
	Unavailable bool
}

// Store holds the principal, persists it and notifies subscribers on change.
type Store struct {
	kv      kv.Store
	auth    Authenticator
	logg    *logger.Logger
	metrics *metrics.ClientMetrics
	now     func() time.Time

	publishMu sync.Mutex

	mu          sync.Mutex
	principal   *Principal
	initialized bool
	listeners   []subscription
	nextID      int
}

// Option configures optional store behavior.
type Option func(*Store)

func WithLogger(logg *logger.Logger) Option {
	return func(s *Store) { s.logg = logg }
}

func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a pending store. Call Initialize to resolve it.
func New(store kv.Store, authenticator Authenticator, opts ...Option) *Store {
	s := &Store{
		kv:   store,
		auth: authenticator,
		now:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	return s
}

// Principal returns a copy of the current principal, nil when logged out.
func (s *Store) Principal() *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal.clone()
}

// Pending reports whether Initialize has not resolved yet.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.initialized
}

// Subscribe registers fn for future publishes. Listeners run synchronously in
// registration order.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Initialize restores the persisted principal and publishes it. Only the first
// call has an effect.
func (s *Store) Initialize(ctx context.Context) *Principal {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	if s.initialized {
		p := s.principal.clone()
		s.mu.Unlock()
		return p
	}
	s.mu.Unlock()

	p := s.restore(ctx)
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	s.publishLocked(ctx, p)
	return p.clone()
}

// Refresh re-reads the persisted principal and publishes it when it differs
// from the one in memory. It does nothing while pending. The read happens under
// publishMu so it never observes a Login or Logout between write and publish.
func (s *Store) Refresh(ctx context.Context) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if s.Pending() {
		return
	}
	p := s.restore(ctx)
	if samePrincipal(s.Principal(), p) {
		return
	}
	s.logg.Info(s.logg.WithUserID(ctx, userIDOf(p)), "persisted principal changed outside this workspace")
	s.publishLocked(ctx, p)
}

// Login authenticates, persists the principal and then publishes it.
func (s *Store) Login(ctx context.Context, email, password string) LoginResult {
	identity, err := s.auth.Login(ctx, authclient.Credentials{Email: email, Password: password})
	if err != nil {
		s.metrics.IncAuthAttempt("login", resultLabel(err))
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "login failed")
		return LoginResult{Message: failureMessage(err, DefaultLoginFailure), Unavailable: unavailable(err)}
	}

	role, err := enums.ParseRole(identity.Role)
	if err != nil {
		s.metrics.IncAuthAttempt("login", "invalid_role")
		s.logg.Warn(s.logg.WithField(ctx, "role", identity.Role), "login returned unknown role")
		return LoginResult{Message: DefaultLoginFailure}
	}

	p := &Principal{
		Token:     identity.Token,
		UserID:    string(identity.UserID),
		Role:      role,
		FirstName: identity.FirstName,
	}
	s.publishMu.Lock()
	s.persist(ctx, p)
	s.resolveLocked(ctx, p)
	s.publishMu.Unlock()

	s.metrics.IncAuthAttempt("login", "success")
	ctx = s.logg.WithUserID(ctx, p.UserID)
	s.logg.Info(s.logg.WithActorRole(ctx, string(role)), "login succeeded")
	return LoginResult{OK: true, Role: role}
}

// Register creates an account without establishing a session.
func (s *Store) Register(ctx context.Context, firstName, lastName, email, password, phoneNumber string) RegisterResult {
	err := s.auth.Register(ctx, authclient.Registration{
		FirstName:   firstName,
		LastName:    lastName,
		Email:       email,
		Password:    password,
		PhoneNumber: phoneNumber,
	})
	if err != nil {
		s.metrics.IncAuthAttempt("register", resultLabel(err))
		s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "registration failed")
		return RegisterResult{Message: failureMessage(err, DefaultRegistrationFailure), Unavailable: unavailable(err)}
	}
	s.metrics.IncAuthAttempt("register", "success")
	return RegisterResult{OK: true}
}

// Logout clears the persisted principal and then publishes "no principal".
func (s *Store) Logout(ctx context.Context) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	var errs error
	for _, key := range []string{KeyToken, KeyUserID, KeyRole, KeyFirstName} {
		errs = multierr.Append(errs, s.kv.Remove(ctx, key))
	}
	if errs != nil {
		s.logg.Error(ctx, "clearing persisted principal", errs)
	}
	s.resolveLocked(ctx, nil)
	s.logg.Info(ctx, "logged out")
}

func (s *Store) restore(ctx context.Context) *Principal {
	values := make(map[string]string, 4)
	for _, key := range []string{KeyToken, KeyUserID, KeyRole, KeyFirstName} {
		val, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			s.logg.Error(ctx, "reading persisted principal", err)
			return nil
		}
		if ok {
			values[key] = strings.TrimSpace(val)
		}
	}

	token, userID, rawRole := values[KeyToken], values[KeyUserID], values[KeyRole]
	if token == "" || userID == "" || rawRole == "" {
		return nil
	}
	role, err := enums.ParseRole(rawRole)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "role", rawRole), "ignoring persisted principal with unknown role")
		return nil
	}
	if auth.Expired(token, s.now()) {
		s.logg.Info(s.logg.WithUserID(ctx, userID), "ignoring persisted principal with expired token")
		return nil
	}
	return &Principal{Token: token, UserID: userID, Role: role, FirstName: values[KeyFirstName]}
}

func (s *Store) persist(ctx context.Context, p *Principal) {
	errs := multierr.Combine(
		s.kv.Set(ctx, KeyToken, p.Token),
		s.kv.Set(ctx, KeyUserID, p.UserID),
		s.kv.Set(ctx, KeyRole, string(p.Role)),
	)
	if p.FirstName != "" {
		errs = multierr.Append(errs, s.kv.Set(ctx, KeyFirstName, p.FirstName))
	} else {
		errs = multierr.Append(errs, s.kv.Remove(ctx, KeyFirstName))
	}
	if errs != nil {
		s.logg.Error(s.logg.WithUserID(ctx, p.UserID), "persisting principal", errs)
	}
}

// resolveLocked marks the store resolved and notifies listeners. It requires
// publishMu.
func (s *Store) resolveLocked(ctx context.Context, p *Principal) {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	s.publishLocked(ctx, p)
}

// publishLocked requires publishMu.
func (s *Store) publishLocked(ctx context.Context, p *Principal) {
	s.mu.Lock()
	s.principal = p.clone()
	listeners := make([]subscription, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, sub := range listeners {
		sub.fn(ctx, p.clone())
	}
}

func unavailable(err error) bool {
	typed := pkgerrors.As(err)
	return typed == nil || typed.Code() == pkgerrors.CodeDependency || typed.Code() == pkgerrors.CodeInternal
}

func failureMessage(err error, fallback string) string {
	if unavailable(err) {
		return RetryLaterMessage
	}
	typed := pkgerrors.As(err)
	if msg := strings.TrimSpace(typed.Message()); msg != "" {
		return msg
	}
	return fallback
}

func resultLabel(err error) string {
	if unavailable(err) {
		return "unavailable"
	}
	return "rejected"
}

func userIDOf(p *Principal) string {
	if p == nil {
		return ""
	}
	return p.UserID
}
