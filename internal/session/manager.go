// File: internal/session/manager.go
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/identity"
	"lingualearn_backend/internal/media"
	"lingualearn_backend/internal/profile"
)

// reconcileTimeout bounds one ensure+fetch round trip. The managed services
// carry their own timeouts; this is a backstop so the event loop can never
// wedge on a single event.
const reconcileTimeout = 30 * time.Second

// Manager composes the identity provider and the profile store. It consumes
// the provider's session-change events one at a time, in arrival order,
// reconciling the profile document (create on first sign-in, touch last-seen
// otherwise) before exposing the merged identity+profile view. Actions
// delegate to the adapters and rely on the subscription callback to drive
// state transitions; no action sets Authenticated directly.
type Manager struct {
	provider identity.Provider
	store    profile.Store
	uploader media.Uploader
	logger   *zap.Logger

	mu           sync.RWMutex
	snap         Snapshot
	listeners    map[int]func(Snapshot)
	nextListener int
	publishMu    sync.Mutex

	events      chan *identity.Identity
	done        chan struct{}
	wg          sync.WaitGroup
	unsubscribe func()

	startOnce sync.Once
	closeOnce sync.Once
}

// NewManager creates a Manager in the Uninitialized phase. Call Start to
// subscribe to the provider and begin processing session-change events.
func NewManager(provider identity.Provider, store profile.Store, uploader media.Uploader, logger *zap.Logger) *Manager {
	return &Manager{
		provider:  provider,
		store:     store,
		uploader:  uploader,
		logger:    logger.Named("SessionManager"),
		snap:      Snapshot{Phase: PhaseUninitialized},
		listeners: make(map[int]func(Snapshot)),
		events:    make(chan *identity.Identity, 16),
		done:      make(chan struct{}),
	}
}

// Start moves the session to Loading and subscribes to the identity
// provider. The provider delivers the current identity immediately, so the
// first reconciliation begins before Start returns.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.setState(Snapshot{Phase: PhaseLoading})

		m.wg.Add(1)
		go m.run()

		m.unsubscribe = m.provider.Subscribe(func(ident *identity.Identity) {
			select {
			case m.events <- ident:
			case <-m.done:
			}
		})
	})
}

// Close tears the session down: unsubscribes from the provider, stops the
// event loop, and resets the state to Uninitialized. Any in-flight
// reconciliation completes but its result is discarded.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		close(m.done)
		m.wg.Wait()
		m.setState(Snapshot{Phase: PhaseUninitialized})
	})
}

// run drains session-change events strictly in arrival order, each one to
// completion including its profile round trip, so reconciliation outcomes
// are ordered exactly like the events that caused them.
func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case ident := <-m.events:
			m.reconcile(ident)
		}
	}
}

func (m *Manager) reconcile(ident *identity.Identity) {
	if ident == nil {
		m.logger.Info("Session ended, clearing cached profile")
		m.applyIfRunning(Snapshot{Phase: PhaseUnauthenticated})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	var prof *profile.UserProfile
	err := m.store.EnsureProfile(ctx, ident, nil)
	if err == nil {
		prof, err = m.store.GetProfile(ctx, ident.UID)
	}

	if err != nil {
		// Identity takes priority: a user is never logged out merely because
		// profile reconciliation failed. RefreshProfile is the recovery path.
		m.logger.Error("Profile reconciliation failed",
			zap.String("uid", ident.UID), zap.Error(err))
		m.applyIfRunning(Snapshot{
			Phase:    PhaseAuthenticated,
			Identity: ident,
			Err:      common.ErrProfileSync.WithDetails(err.Error()),
		})
		return
	}

	m.logger.Info("Session reconciled", zap.String("uid", ident.UID))
	m.applyIfRunning(Snapshot{
		Phase:    PhaseAuthenticated,
		Identity: ident,
		Profile:  prof,
	})
}

// applyIfRunning publishes snap unless the manager was closed while the
// reconciliation was in flight, in which case the result is discarded.
func (m *Manager) applyIfRunning(snap Snapshot) {
	select {
	case <-m.done:
		m.logger.Debug("Discarding reconciliation result after teardown")
	default:
		m.setState(snap)
	}
}

func (m *Manager) setState(snap Snapshot) {
	m.mutate(func(cur *Snapshot) { *cur = snap })
}

// mutate applies fn to the current snapshot under the state lock, then fans
// the result out to listeners in publish order.
func (m *Manager) mutate(fn func(*Snapshot)) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	fn(&m.snap)
	snap := m.snap
	targets := make([]func(Snapshot), 0, len(m.listeners))
	for _, l := range m.listeners {
		targets = append(targets, l)
	}
	m.mu.Unlock()

	for _, l := range targets {
		l(snap.clone())
	}
}

// setError records err on the current snapshot without changing phase,
// identity, or profile.
func (m *Manager) setError(err error) {
	apiErr, ok := common.IsAPIError(err)
	if !ok {
		apiErr = common.ErrInternalServer.WithDetails(err.Error())
	}
	m.mutate(func(cur *Snapshot) { cur.Err = apiErr })
}

// Snapshot returns a read-only copy of the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.clone()
}

// Subscribe registers a listener for session transitions. The current state
// is delivered immediately; subsequent deliveries follow publish order.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	snap := m.snap
	m.mu.Unlock()

	fn(snap.clone())

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// SignIn authenticates with email and password. On success the provider's
// session-change callback drives the Authenticated transition; on failure
// the error is surfaced on the session and the phase is left unchanged.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*identity.Token, error) {
	_, token, err := m.provider.PasswordSignIn(ctx, email, password)
	if err != nil {
		m.setError(err)
		return nil, err
	}
	return token, nil
}

// SignUp creates an account with the given username as display name.
func (m *Manager) SignUp(ctx context.Context, email, password, username string) (*identity.Token, error) {
	_, token, err := m.provider.CreateAccount(ctx, email, password, username)
	if err != nil {
		m.setError(err)
		return nil, err
	}
	return token, nil
}

// SignInWithGoogle signs in with a Google ID-token assertion from the
// on-device consent flow.
func (m *Manager) SignInWithGoogle(ctx context.Context, assertion string) (*identity.Token, error) {
	return m.oauthSignIn(ctx, identity.ProviderGoogle, assertion)
}

// SignInWithApple signs in with an Apple ID-token assertion.
func (m *Manager) SignInWithApple(ctx context.Context, assertion string) (*identity.Token, error) {
	return m.oauthSignIn(ctx, identity.ProviderApple, assertion)
}

func (m *Manager) oauthSignIn(ctx context.Context, provider identity.OAuthProvider, assertion string) (*identity.Token, error) {
	_, token, err := m.provider.OAuthSignIn(ctx, provider, assertion)
	if err != nil {
		m.setError(err)
		return nil, err
	}
	return token, nil
}

// SignOut clears the provider session. The Unauthenticated transition is
// driven by the subsequent identity-absent callback; the action itself does
// not mutate the profile preemptively.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.provider.SignOut(ctx); err != nil {
		m.setError(err)
		return err
	}
	return nil
}

// UpdateProfile merges patch into the current user's profile document and,
// on success, into the session's cached profile view. Update failures are
// returned to the caller and do not disturb session state.
func (m *Manager) UpdateProfile(ctx context.Context, patch *profile.Patch) error {
	snap := m.Snapshot()
	if snap.Identity == nil {
		return common.ErrUnauthorized.WithDetails("No active session.")
	}

	if err := m.store.UpdateProfile(ctx, snap.Identity.UID, patch); err != nil {
		return err
	}

	// The session may have moved on while the write was in flight; only the
	// matching identity's cached view is patched.
	m.mutate(func(cur *Snapshot) {
		if cur.Identity != nil && cur.Identity.UID == snap.Identity.UID && cur.Profile != nil {
			patched := cur.Profile.Clone()
			patch.ApplyTo(patched)
			cur.Profile = patched
		}
	})
	return nil
}

// UploadPhoto uploads an image and returns its public URL. A failed upload
// is reported to the caller only; retry policy and session state are the
// caller's concern.
func (m *Manager) UploadPhoto(ctx context.Context, localPath string) (string, error) {
	return m.uploader.UploadImage(ctx, localPath)
}

// RefreshProfile re-fetches the current user's profile, replacing the cached
// view on success. On failure the prior profile is left untouched and the
// error is surfaced on the session.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	snap := m.Snapshot()
	if snap.Identity == nil {
		return common.ErrUnauthorized.WithDetails("No active session.")
	}

	prof, err := m.store.GetProfile(ctx, snap.Identity.UID)
	if err != nil {
		m.setError(err)
		return err
	}

	m.mutate(func(cur *Snapshot) {
		if cur.Identity != nil && cur.Identity.UID == snap.Identity.UID {
			cur.Profile = prof
			cur.Err = nil
		}
	})
	return nil
}
