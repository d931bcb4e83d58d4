// Package identity signs users in against Supabase or the local account table.
package identity

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
)

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrOAuthUnavailable   = errors.New("oauth login requires the remote auth provider")
)

const minPasswordLength = 6

// Session is an authenticated login.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// RegisterResult is the outcome of a signup. Session is nil when the provider
// wants the email confirmed first.
type RegisterResult struct {
	Session              *Session `json:"session,omitempty"`
	ConfirmationRequired bool     `json:"confirmation_required"`
	Message              string   `json:"message,omitempty"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name   *string `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
	// AccessToken is the caller's bearer token, needed by the remote provider.
	AccessToken string `json:"-"`
}

// Provider is one account backend.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, name, email, password string) (RegisterResult, error)
	SignOut(ctx context.Context, token string) error
	UpdateUser(ctx context.Context, userID string, upd ProfileUpdate) (models.User, error)
}

// TokenIssuer mints session tokens for locally authenticated users.
type TokenIssuer interface {
	Issue(userID, email, name string) (string, time.Time, error)
}

// OAuthProvider is implemented by providers that can start a browser OAuth flow.
type OAuthProvider interface {
	AuthorizeURL(provider, redirectTo string) (string, error)
}

type Service struct {
	provider Provider
	backend  store.Backend
}

// NewService uses remote when it is non-nil and the local account table otherwise.
func NewService(remote Provider, local *LocalProvider, backend store.Backend) *Service {
	s := &Service{backend: backend}
	if remote != nil {
		s.provider = remote
	} else {
		s.provider = local
	}
	return s
}

// Remote reports whether a hosted provider is configured.
func (s *Service) Remote() bool {
	_, ok := s.provider.(*SupabaseProvider)
	return ok
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	log.Printf("auth login start email=%s remote=%t", email, s.Remote())
	sess, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		log.Printf("auth login failed email=%s err=%v", email, err)
		return Session{}, err
	}
	s.Remember(ctx, sess.User)
	log.Printf("auth login ok user=%s", sess.User.ID)
	return sess, nil
}

func (s *Service) Register(ctx context.Context, name, email, password string) (RegisterResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return RegisterResult{}, ErrMissingCredentials
	}
	if len(password) < minPasswordLength {
		return RegisterResult{}, ErrWeakPassword
	}
	if name == "" {
		name = strings.Split(email, "@")[0]
	}
	log.Printf("auth register start email=%s remote=%t", email, s.Remote())
	res, err := s.provider.SignUp(ctx, name, email, password)
	if err != nil {
		log.Printf("auth register failed email=%s err=%v", email, err)
		return RegisterResult{}, err
	}
	if res.Session != nil {
		s.Remember(ctx, res.Session.User)
		log.Printf("auth register ok user=%s", res.Session.User.ID)
	} else {
		log.Printf("auth register pending confirmation email=%s", email)
	}
	return res, nil
}

// Logout clears the persisted user record and revokes the remote session.
func (s *Service) Logout(ctx context.Context, userID, token string) error {
	log.Printf("auth logout user=%s", userID)
	s.userValue(userID).Clear(ctx)
	if token == "" {
		return nil
	}
	return s.provider.SignOut(ctx, token)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (models.User, error) {
	log.Printf("auth profile update user=%s", userID)
	u, err := s.provider.UpdateUser(ctx, userID, upd)
	if err != nil {
		log.Printf("auth profile update failed user=%s err=%v", userID, err)
		return models.User{}, err
	}
	s.Remember(ctx, u)
	return u, nil
}

// CurrentUser returns the last persisted identity of userID.
func (s *Service) CurrentUser(ctx context.Context, userID string) (models.User, bool) {
	u := s.userValue(userID).Get(ctx)
	return u, u.ID != ""
}

func (s *Service) userValue(userID string) *store.Value[models.User] {
	return store.Bind(s.backend, store.UserKey(store.KeyUser, userID), models.User{})
}

// GoogleURL returns the URL that starts a Google OAuth login.
func (s *Service) GoogleURL(redirectTo string) (string, error) {
	oauth, ok := s.provider.(OAuthProvider)
	if !ok {
		return "", ErrOAuthUnavailable
	}
	return oauth.AuthorizeURL("google", redirectTo)
}

// Remember persists u as the current user of its ID.
func (s *Service) Remember(ctx context.Context, u models.User) {
	if u.ID == "" {
		return
	}
	s.userValue(u.ID).Set(ctx, u)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
