package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/BruksfildServices01/clinic-sync/internal/gateway"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*gateway.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*gateway.AuthResult, error)
}

// Identity is what the UI learns about the signed-in user.
type Identity struct {
	Role    models.Role `json:"role"`
	UserID  int64       `json:"userId"`
	Email   string      `json:"email"`
	Offline bool        `json:"offline"`
}

// Manager is the only writer of token state.
type Manager struct {
	auth  Authenticator
	store Store

	mu    sync.RWMutex
	state *State

	refresh singleflight.Group
}

func NewManager(auth Authenticator, store Store) *Manager {
	return &Manager{auth: auth, store: store}
}

// Restore loads the persisted session; a missing one is not an error.
func (m *Manager) Restore() error {
	s, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	return nil
}

// IsLoggedIn reports whether remote calls can be authorized.
func (m *Manager) IsLoggedIn() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state != nil && m.state.AccessToken != "" && !m.state.NeedsReauth
}

func (m *Manager) Role() models.Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return ""
	}
	return m.state.Role
}

func (m *Manager) CurrentUserID() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return 0
	}
	return m.state.UserID
}

// Owner is known even when re-authentication is required, so cached
// records stay readable.
func (m *Manager) Owner() (models.Owner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil || m.state.UserID == 0 {
		return models.Owner{}, false
	}
	return m.state.Owner(), true
}

func (m *Manager) Identity() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil || m.state.UserID == 0 {
		return Identity{}, false
	}
	return Identity{
		Role:    m.state.Role,
		UserID:  m.state.UserID,
		Email:   m.state.Email,
		Offline: m.state.NeedsReauth || m.state.AccessToken == "",
	}, true
}

func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil || m.state.NeedsReauth {
		return ""
	}
	return m.state.AccessToken
}

// Login authenticates against the remote service. When it is unreachable,
// the cached session of the same user is unlocked with the password hash
// kept from the last online login.
func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	res, err := m.auth.Login(ctx, email, password)
	switch {
	case err == nil:
	case httperr.IsKind(err, httperr.KindNetworkUnreachable):
		return m.unlockOffline(email, password, err)
	case httperr.IsKind(err, httperr.KindUnauthorized):
		return Identity{}, httperr.ErrBusiness(httperr.CodeInvalidCreds)
	default:
		return Identity{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, err
	}

	next := &State{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Role:         res.Role,
		UserID:       res.UserID,
		Email:        email,
		PasswordHash: hash,
		ExpiresAt:    tokenExpiry(res.AccessToken),
	}
	if res.Email != "" {
		next.Email = strings.ToLower(res.Email)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Save(next); err != nil {
		return Identity{}, err
	}
	m.state = next
	return Identity{Role: next.Role, UserID: next.UserID, Email: next.Email}, nil
}

func (m *Manager) unlockOffline(email, password string, cause error) (Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.state
	if s == nil || len(s.PasswordHash) == 0 || s.Email != email {
		return Identity{}, cause
	}
	if bcrypt.CompareHashAndPassword(s.PasswordHash, []byte(password)) != nil {
		return Identity{}, httperr.ErrBusiness(httperr.CodeInvalidCreds)
	}
	log.Printf("remote unreachable, unlocked cached session for %s", s.Owner())
	return Identity{Role: s.Role, UserID: s.UserID, Email: s.Email, Offline: true}, nil
}

// RefreshAccess rotates the token pair. Concurrent callers share one
// remote call, which is not cancelled when a caller gives up.
func (m *Manager) RefreshAccess(ctx context.Context) (string, error) {
	v, err, _ := m.refresh.Do("refresh", func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	var refreshToken string
	if m.state != nil {
		refreshToken = m.state.RefreshToken
	}
	m.mu.RUnlock()

	if refreshToken == "" {
		m.Invalidate()
		return "", httperr.New(httperr.KindUnauthorized, "refresh", errors.New("no refresh token"))
	}

	res, err := m.auth.Refresh(ctx, refreshToken)
	if err != nil {
		if httperr.IsKind(err, httperr.KindUnauthorized) {
			m.Invalidate()
		}
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		// logged out while refreshing
		return "", httperr.New(httperr.KindUnauthorized, "refresh", errors.New("session closed"))
	}
	next := *m.state
	next.AccessToken = res.AccessToken
	if res.RefreshToken != "" {
		next.RefreshToken = res.RefreshToken
	}
	next.ExpiresAt = tokenExpiry(res.AccessToken)
	next.NeedsReauth = false
	if err := m.store.Save(&next); err != nil {
		log.Printf("persist refreshed session: %v", err)
	}
	m.state = &next
	return next.AccessToken, nil
}

// Invalidate drops the tokens but keeps the identity for offline reads and
// offline unlock.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil || m.state.NeedsReauth {
		return
	}
	next := *m.state
	next.AccessToken = ""
	next.RefreshToken = ""
	next.NeedsReauth = true
	if err := m.store.Save(&next); err != nil {
		log.Printf("persist invalidated session: %v", err)
	}
	m.state = &next
}

func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return m.store.Clear()
}

// tokenExpiry reads exp without verifying the signature; only the remote
// service can verify its own tokens. Opaque tokens yield the zero time.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
