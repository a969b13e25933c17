// File: internal/session/manager_test.go
package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/identity"
	"lingualearn_backend/internal/profile"
)

// fakeProvider is an in-memory identity.Provider. Sign-in operations publish
// a session-change event on success, mirroring the production adapter.
type fakeProvider struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]func(*identity.Identity)
	current *identity.Identity

	signInErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subs: make(map[int]func(*identity.Identity))}
}

func (p *fakeProvider) publish(ident *identity.Identity) {
	p.mu.Lock()
	p.current = ident
	targets := make([]func(*identity.Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		targets = append(targets, fn)
	}
	p.mu.Unlock()

	for _, fn := range targets {
		fn(ident)
	}
}

func (p *fakeProvider) CreateAccount(_ context.Context, email, _, username string) (*identity.Identity, *identity.Token, error) {
	if p.signInErr != nil {
		return nil, nil, p.signInErr
	}
	ident := &identity.Identity{UID: "uid-" + email, Email: email, DisplayName: username}
	p.publish(ident)
	return ident, &identity.Token{IDToken: "fake-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (p *fakeProvider) PasswordSignIn(_ context.Context, email, _ string) (*identity.Identity, *identity.Token, error) {
	if p.signInErr != nil {
		return nil, nil, p.signInErr
	}
	ident := &identity.Identity{UID: "uid-" + email, Email: email}
	p.publish(ident)
	return ident, &identity.Token{IDToken: "fake-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (p *fakeProvider) OAuthSignIn(_ context.Context, _ identity.OAuthProvider, assertion string) (*identity.Identity, *identity.Token, error) {
	if assertion == "" {
		return nil, nil, common.ErrCancelled
	}
	if p.signInErr != nil {
		return nil, nil, p.signInErr
	}
	ident := &identity.Identity{UID: "uid-oauth", Email: "oauth@example.com", DisplayName: "OAuth User"}
	p.publish(ident)
	return ident, &identity.Token{IDToken: "fake-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.publish(nil)
	return nil
}

func (p *fakeProvider) Subscribe(fn func(*identity.Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	cur := p.current
	p.mu.Unlock()

	fn(cur)

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// flakyStore wraps a Store, counting calls and injecting outages.
type flakyStore struct {
	inner profile.Store

	mu          sync.Mutex
	ensureCalls int
	getCalls    int
	failEnsure  bool
	failGet     bool
}

func (s *flakyStore) EnsureProfile(ctx context.Context, ident *identity.Identity, defaults *profile.Patch) error {
	s.mu.Lock()
	s.ensureCalls++
	fail := s.failEnsure
	s.mu.Unlock()
	if fail {
		return common.ErrStoreUnavailable
	}
	return s.inner.EnsureProfile(ctx, ident, defaults)
}

func (s *flakyStore) GetProfile(ctx context.Context, uid string) (*profile.UserProfile, error) {
	s.mu.Lock()
	s.getCalls++
	fail := s.failGet
	s.mu.Unlock()
	if fail {
		return nil, common.ErrStoreUnavailable
	}
	return s.inner.GetProfile(ctx, uid)
}

func (s *flakyStore) UpdateProfile(ctx context.Context, uid string, patch *profile.Patch) error {
	return s.inner.UpdateProfile(ctx, uid, patch)
}

func (s *flakyStore) SyncPending(ctx context.Context) (int, error) {
	return s.inner.SyncPending(ctx)
}

func (s *flakyStore) setFailures(ensure, get bool) {
	s.mu.Lock()
	s.failEnsure = ensure
	s.failGet = get
	s.mu.Unlock()
}

func (s *flakyStore) ensureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureCalls
}

type managerTestSuite struct {
	manager  *Manager
	provider *fakeProvider
	store    *flakyStore
	memory   *profile.MemoryStore
}

func setupManagerTestSuite(t *testing.T) *managerTestSuite {
	t.Helper()
	ts := &managerTestSuite{
		provider: newFakeProvider(),
		memory:   profile.NewMemoryStore(),
	}
	ts.store = &flakyStore{inner: ts.memory}
	ts.manager = NewManager(ts.provider, ts.store, nil, zap.NewNop())
	t.Cleanup(ts.manager.Close)
	return ts
}

// waitFor polls the manager until cond holds or the deadline passes.
func waitFor(t *testing.T, m *Manager, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time; last snapshot: %+v", m.Snapshot())
	return Snapshot{}
}

func TestManager_StartWithNoSession_BecomesUnauthenticated(t *testing.T) {
	ts := setupManagerTestSuite(t)

	assert.Equal(t, PhaseUninitialized, ts.manager.Snapshot().Phase)
	ts.manager.Start()

	snap := waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })
	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
	assert.Nil(t, snap.Err)
}

func TestManager_SignIn_ReconcilesProfile(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	token, err := ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "fake-token", token.IDToken)

	snap := waitFor(t, ts.manager, func(s Snapshot) bool {
		return s.Phase == PhaseAuthenticated && s.Profile != nil
	})
	assert.Equal(t, "uid-learner@example.com", snap.Identity.UID)
	assert.Equal(t, "uid-learner@example.com", snap.Profile.UID)
	assert.Equal(t, "learner@example.com", snap.Profile.Email)
	assert.Equal(t, 1, snap.Profile.CurrentLevel)
	assert.Equal(t, 0, snap.Profile.StreakCount)
	assert.Equal(t, 1, ts.memory.Len())
}

func TestManager_RepeatedSignIn_KeepsSingleProfile(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	_, err := ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)
	first := waitFor(t, ts.manager, func(s Snapshot) bool { return s.Profile != nil })

	require.NoError(t, ts.manager.SignOut(context.Background()))
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	_, err = ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)
	second := waitFor(t, ts.manager, func(s Snapshot) bool { return s.Profile != nil })

	assert.Equal(t, 1, ts.memory.Len())
	// CreatedAt is write-once; only the last-login marker moves.
	assert.Equal(t, first.Profile.CreatedAt, second.Profile.CreatedAt)
	assert.False(t, second.Profile.LastLoginAt.Before(first.Profile.LastLoginAt))
}

func TestManager_SignInFailure_LeavesPhaseUntouched(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	ts.provider.signInErr = common.ErrCredential
	token, err := ts.manager.SignIn(context.Background(), "learner@example.com", "wrong")
	require.Error(t, err)
	assert.Nil(t, token)
	assert.ErrorIs(t, err, common.ErrCredential)

	snap := waitFor(t, ts.manager, func(s Snapshot) bool { return s.Err != nil })
	assert.Equal(t, PhaseUnauthenticated, snap.Phase)
	assert.Nil(t, snap.Identity)
	assert.Equal(t, common.ErrCredential.Code, snap.Err.Code)
	assert.Equal(t, 0, ts.memory.Len())
}

func TestManager_CancelledOAuth_SurfacesCancellation(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	_, err := ts.manager.SignInWithGoogle(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCancelled)

	snap := waitFor(t, ts.manager, func(s Snapshot) bool { return s.Err != nil })
	assert.Equal(t, PhaseUnauthenticated, snap.Phase)
	assert.Equal(t, common.ErrCancelled.Code, snap.Err.Code)
}

func TestManager_ProfileSyncFailure_StaysAuthenticated(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	ts.store.setFailures(true, true)
	_, err := ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)

	snap := waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseAuthenticated })
	assert.NotNil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
	require.NotNil(t, snap.Err)
	assert.Equal(t, common.ErrProfileSync.Code, snap.Err.Code)
}

func TestManager_RefreshProfile_RecoversAfterOutage(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	// Ensure succeeds but the follow-up read fails, so the document exists
	// while the session view is empty.
	ts.store.setFailures(false, true)
	_, err := ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseAuthenticated && s.Err != nil })

	ts.store.setFailures(false, false)
	require.NoError(t, ts.manager.RefreshProfile(context.Background()))

	snap := ts.manager.Snapshot()
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "uid-learner@example.com", snap.Profile.UID)
	assert.Nil(t, snap.Err)
}

func TestManager_RefreshProfile_FailureKeepsPriorProfile(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	_, err := ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Profile != nil })

	ts.store.setFailures(false, true)
	err = ts.manager.RefreshProfile(context.Background())
	require.Error(t, err)

	snap := ts.manager.Snapshot()
	assert.Equal(t, PhaseAuthenticated, snap.Phase)
	assert.NotNil(t, snap.Profile)
	require.NotNil(t, snap.Err)
	assert.Equal(t, common.ErrStoreUnavailable.Code, snap.Err.Code)
}

func TestManager_SignOut_ClearsProfileWithoutTouchingStore(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	_, err := ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Profile != nil })
	ensures := ts.store.ensureCount()

	require.NoError(t, ts.manager.SignOut(context.Background()))
	snap := waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
	// Sign-out must not trigger another reconciliation round trip.
	assert.Equal(t, ensures, ts.store.ensureCount())
	// The document itself survives sign-out.
	assert.Equal(t, 1, ts.memory.Len())
}

func TestManager_ListenersObserveTransitionsInOrder(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	var mu sync.Mutex
	var phases []Phase
	unsubscribe := ts.manager.Subscribe(func(s Snapshot) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})
	defer unsubscribe()

	_, err := ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseAuthenticated })
	require.NoError(t, ts.manager.SignOut(context.Background()))
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(phases), 3)
	// Immediate delivery of the current state, then each transition in order.
	assert.Equal(t, PhaseUnauthenticated, phases[0])
	assert.Contains(t, phases, PhaseAuthenticated)
	assert.Equal(t, PhaseUnauthenticated, phases[len(phases)-1])
}

func TestManager_UpdateProfile_RequiresSession(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	level := 2
	err := ts.manager.UpdateProfile(context.Background(), &profile.Patch{CurrentLevel: &level})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestManager_UpdateProfile_MergesIntoSnapshot(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	_, err := ts.manager.SignIn(context.Background(), "learner@example.com", "secret123")
	require.NoError(t, err)
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Profile != nil })

	native := "en"
	langs := []string{"es", "ja"}
	err = ts.manager.UpdateProfile(context.Background(), &profile.Patch{
		NativeLanguage:    &native,
		LearningLanguages: &langs,
	})
	require.NoError(t, err)

	snap := ts.manager.Snapshot()
	assert.Equal(t, "en", snap.Profile.NativeLanguage)
	assert.Equal(t, []string{"es", "ja"}, snap.Profile.LearningLanguages)

	stored, err := ts.memory.GetProfile(context.Background(), snap.Identity.UID)
	require.NoError(t, err)
	assert.Equal(t, "en", stored.NativeLanguage)
}

func TestManager_Close_ResetsToUninitialized(t *testing.T) {
	ts := setupManagerTestSuite(t)
	ts.manager.Start()
	waitFor(t, ts.manager, func(s Snapshot) bool { return s.Phase == PhaseUnauthenticated })

	ts.manager.Close()
	assert.Equal(t, PhaseUninitialized, ts.manager.Snapshot().Phase)
}
