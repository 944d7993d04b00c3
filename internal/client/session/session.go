// Package session owns the current user. A Manager is built once per
// process and handed to every component that needs to know who is signed
// in; nothing here is global.
//
// With a remote backend the profile lives in the profiles collection and is
// mirrored to the local store so a restart can show it before the network
// answers. Without one, a synthetic local user stands in.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/common"
	"github.com/survivalcodex/codex/internal/cryptox"
	"github.com/survivalcodex/codex/internal/logging"
	"github.com/survivalcodex/codex/internal/netx"
)

var (
	ErrNoUser = errors.New("no user signed in")
	// ErrProfileUnresolved means the session is live but the profile could
	// not be fetched and none is cached. The manager stays in the loading
	// state until a later load succeeds.
	ErrProfileUnresolved = errors.New("profile not available yet")
)

// persisted is what survives a restart.
type persisted struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
}

type Options struct {
	Timeout    time.Duration
	Now        func() time.Time
	HTTPClient *http.Client
}

type Manager struct {
	gw      gateway.Gateway
	store   *store.Store
	timeout time.Duration
	now     func() time.Time
	http    *http.Client
	logger  logging.Logger

	mu      sync.RWMutex
	current *models.User // api key kept sealed
	loading bool

	sealerOnce sync.Once
	sealer     *cryptox.Sealer
	sealerErr  error
}

func NewManager(gw gateway.Gateway, s *store.Store, opts Options, l logging.Logger) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if l == nil {
		l = logging.Discard()
	}
	m := &Manager{
		gw:      gw,
		store:   s,
		timeout: opts.Timeout,
		now:     opts.Now,
		http:    opts.HTTPClient,
		logger:  l.With("module", "session"),
	}
	gw.OnSessionChange(m.sessionChanged)
	return m
}

// sessionChanged persists rotated refresh tokens. It must not take m.mu:
// gateways call it from inside SignIn and friends.
func (m *Manager) sessionChanged(s gateway.Session, ok bool) {
	if !ok {
		return
	}
	ctx := context.Background()
	p := persisted{UserID: s.UserID, Email: s.Email, RefreshToken: s.RefreshToken}
	if err := m.store.Set(ctx, store.KeySession, p); err != nil {
		m.logger.Error(ctx, "persisting session failed", "error", err)
	}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(ctx, m.timeout)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) remote() bool { return m.gw.Ready() }

func (m *Manager) set(u *models.User, loading bool) {
	m.mu.Lock()
	m.current = u
	m.loading = loading
	m.mu.Unlock()
}

// Start resolves the user at process start. A cached profile is shown
// first; the remote profile replaces it once the session is restored.
func (m *Manager) Start(ctx context.Context) error {
	if !m.remote() {
		var u models.User
		if ok, _ := m.store.Get(ctx, store.KeyLocalUser, &u); ok {
			m.set(&u, false)
		}
		return nil
	}

	var p persisted
	if ok, _ := m.store.Get(ctx, store.KeySession, &p); !ok || p.RefreshToken == "" {
		m.set(nil, false)
		return nil
	}

	cached := m.cachedProfile(ctx, p.UserID)
	m.set(cached, cached == nil)

	rctx, cancel := m.withTimeout(ctx)
	s, err := m.gw.RestoreSession(rctx, p.RefreshToken)
	cancel()
	switch {
	case err == nil:
	case gateway.Transient(err):
		m.logger.Warn(ctx, "session restore deferred, backend unreachable", "error", err)
		return nil
	default:
		m.logger.Info(ctx, "stored session rejected", "error", err)
		m.forget(ctx)
		m.set(nil, false)
		return nil
	}

	if err := m.loadProfile(ctx, s, ""); err != nil && !errors.Is(err, ErrProfileUnresolved) {
		return err
	}
	return nil
}

func (m *Manager) cachedProfile(ctx context.Context, userID string) *models.User {
	var u models.User
	ok, err := m.store.Get(ctx, store.KeyProfileCache, &u)
	if err != nil || !ok || u.ID != userID {
		return nil
	}
	return &u
}

// loadProfile fetches the profile of s, creating it on first sign-in.
func (m *Manager) loadProfile(ctx context.Context, s gateway.Session, name string) error {
	fctx, cancel := m.withTimeout(ctx)
	defer cancel()

	row, err := gateway.SelectOne(fctx, m.gw, ProfilesTable, gateway.Filter{"id": s.UserID})
	if errors.Is(err, gateway.ErrNotFound) {
		return m.provision(fctx, s, name)
	}
	if err != nil {
		cached := m.cachedProfile(ctx, s.UserID)
		m.set(cached, cached == nil)
		if gateway.Transient(err) {
			m.logger.Warn(ctx, "profile fetch failed, using cache", "error", err, "cached", cached != nil)
			if cached == nil {
				return fmt.Errorf("%w: %w", ErrProfileUnresolved, err)
			}
			return nil
		}
		return fmt.Errorf("fetch profile: %w", err)
	}

	u := profileFromRow(row)
	m.remember(ctx, &u)
	return nil
}

func (m *Manager) provision(ctx context.Context, s gateway.Session, name string) error {
	u := models.User{
		ID:               s.UserID,
		Email:            s.Email,
		Name:             name,
		SubscriptionTier: models.TierFree,
		Language:         common.DefaultLanguage,
	}
	if _, err := m.gw.Upsert(ctx, ProfilesTable, []gateway.Row{profileToRow(u)}, "id"); err != nil {
		m.set(nil, true)
		return fmt.Errorf("create profile: %w", err)
	}
	m.logger.Info(ctx, "profile created", "user_id", u.ID)
	m.remember(ctx, &u)
	return nil
}

func (m *Manager) remember(ctx context.Context, u *models.User) {
	m.set(u, false)
	if err := m.store.Set(ctx, store.KeyProfileCache, u); err != nil {
		m.logger.Warn(ctx, "caching profile failed", "error", err)
	}
}

func (m *Manager) forget(ctx context.Context) {
	for _, k := range []string{store.KeySession, store.KeyProfileCache, store.KeyLocalUser} {
		if err := m.store.Delete(ctx, k); err != nil {
			m.logger.Warn(ctx, "clearing session state failed", "key", k, "error", err)
		}
	}
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	if !m.remote() {
		return m.signInLocal(ctx, email, "")
	}
	actx, cancel := m.withTimeout(ctx)
	s, err := m.gw.SignIn(actx, email, password)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return m.signedIn(ctx, s, "")
}

func (m *Manager) SignUp(ctx context.Context, email, password, name string) (*models.User, error) {
	if !m.remote() {
		return m.signInLocal(ctx, email, name)
	}
	actx, cancel := m.withTimeout(ctx)
	s, err := m.gw.SignUp(actx, email, password, name)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	return m.signedIn(ctx, s, name)
}

func (m *Manager) SignInWithOAuth(ctx context.Context, provider, idToken string) (*models.User, error) {
	if !m.remote() {
		return nil, gateway.ErrNotConfigured
	}
	actx, cancel := m.withTimeout(ctx)
	s, err := m.gw.SignInWithOAuth(actx, provider, idToken)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("sign in with %s: %w", provider, err)
	}
	return m.signedIn(ctx, s, "")
}

// signedIn resolves the profile of a freshly opened session. It never
// returns a nil user without an error.
func (m *Manager) signedIn(ctx context.Context, s gateway.Session, name string) (*models.User, error) {
	if err := m.loadProfile(ctx, s, name); err != nil {
		return nil, err
	}
	u := m.Current()
	if u == nil {
		return nil, ErrProfileUnresolved
	}
	return u, nil
}

// signInLocal keeps the existing local user when the email matches so the
// local collections stay attached to the same id.
func (m *Manager) signInLocal(ctx context.Context, email, name string) (*models.User, error) {
	var u models.User
	ok, _ := m.store.Get(ctx, store.KeyLocalUser, &u)
	if !ok || !strings.EqualFold(u.Email, email) {
		u = models.User{
			ID:               uuid.NewString(),
			Email:            email,
			SubscriptionTier: models.TierFree,
			Language:         common.DefaultLanguage,
		}
	}
	if name != "" {
		u.Name = name
	}
	if err := m.store.Set(ctx, store.KeyLocalUser, u); err != nil {
		return nil, fmt.Errorf("save local user: %w", err)
	}
	m.set(&u, false)
	return m.Current(), nil
}

// UpdateProfile writes only the supplied fields. Remotely the profile is
// read back after the write, within the remote timeout.
func (m *Manager) UpdateProfile(ctx context.Context, patch models.ProfilePatch) (*models.User, error) {
	if patch.APIKey != nil && *patch.APIKey != "" {
		sealed, err := m.seal(ctx, *patch.APIKey)
		if err != nil {
			return nil, err
		}
		patch.APIKey = &sealed
	}

	if !m.remote() {
		return m.updateLocal(ctx, patch)
	}

	s, ok := m.gw.Session()
	if !ok {
		return nil, ErrNoUser
	}
	if patch.Empty() {
		return m.Current(), nil
	}

	wctx, cancel := m.withTimeout(ctx)
	defer cancel()
	n, err := m.gw.Update(wctx, ProfilesTable, gateway.Filter{"id": s.UserID}, patchToRow(patch, m.now()))
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("update profile %s: %w", s.UserID, gateway.ErrNotFound)
	}

	row, err := gateway.SelectOne(wctx, m.gw, ProfilesTable, gateway.Filter{"id": s.UserID})
	if err != nil {
		return nil, fmt.Errorf("read back profile: %w", err)
	}
	u := profileFromRow(row)
	m.remember(ctx, &u)
	return m.Current(), nil
}

func (m *Manager) updateLocal(ctx context.Context, patch models.ProfilePatch) (*models.User, error) {
	var u models.User
	if ok, _ := m.store.Get(ctx, store.KeyLocalUser, &u); !ok {
		return nil, ErrNoUser
	}
	patch.ApplyTo(&u)
	if err := m.store.Set(ctx, store.KeyLocalUser, u); err != nil {
		return nil, fmt.Errorf("save local user: %w", err)
	}
	m.set(&u, false)
	return m.Current(), nil
}

// SetAvatar uploads image to the storage bucket and points the profile at
// it.
func (m *Manager) SetAvatar(ctx context.Context, contentType string, image []byte) (*models.User, error) {
	if !m.remote() {
		return nil, gateway.ErrNotConfigured
	}
	if !m.gw.Authenticated() {
		return nil, ErrNoUser
	}
	tctx, cancel := m.withTimeout(ctx)
	ticket, err := m.gw.AvatarUploadURL(tctx, contentType)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("avatar upload url: %w", err)
	}
	if err := netx.UploadToPresignedURL(ctx, m.http, ticket.URL, contentType, image); err != nil {
		return nil, fmt.Errorf("avatar upload: %w", err)
	}
	url := ticket.PublicURL
	return m.UpdateProfile(ctx, models.ProfilePatch{AvatarURL: &url})
}

// SignOut forgets the session and every cached trace of the user. Without a
// user it does nothing.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.RLock()
	had := m.current != nil || m.loading
	m.mu.RUnlock()
	if !had && !m.gw.Authenticated() {
		return nil
	}

	if m.remote() {
		sctx, cancel := m.withTimeout(ctx)
		if err := m.gw.SignOut(sctx); err != nil {
			m.logger.Warn(ctx, "remote sign out failed", "error", err)
		}
		cancel()
	}
	m.forget(ctx)
	m.set(nil, false)
	return nil
}

// Current returns a copy of the current user, or nil while nobody is signed
// in or the profile is still unresolved.
func (m *Manager) Current() *models.User {
	m.mu.RLock()
	u := m.current.Clone()
	m.mu.RUnlock()
	if u == nil || u.APIKey == nil {
		return u
	}
	plain, ok := m.open(*u.APIKey)
	if !ok {
		u.APIKey = nil
		return u
	}
	u.APIKey = &plain
	return u
}

// Loading reports a session whose profile could not be resolved yet.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

func (m *Manager) Authenticated() bool {
	if m.remote() {
		return m.gw.Authenticated()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return ""
	}
	return m.current.ID
}

// RemoteUserID binds remote collections to the live session.
func (m *Manager) RemoteUserID() (string, bool) {
	if !m.remote() {
		return "", false
	}
	s, ok := m.gw.Session()
	if !ok || s.UserID == "" {
		return "", false
	}
	return s.UserID, true
}

// Tier is the effective subscription tier at now.
func (m *Manager) Tier(now time.Time) models.Tier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.EffectiveTier(now)
}

// APIKey returns the user's own assistant key, if set.
func (m *Manager) APIKey() (string, bool) {
	u := m.Current()
	if u == nil || u.APIKey == nil || *u.APIKey == "" {
		return "", false
	}
	return *u.APIKey, true
}
