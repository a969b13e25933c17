// File: internal/identity/provider.go
package identity

import (
	"context"
	"sync"
)

// Provider wraps the external authentication service behind a uniform
// interface. Sign-in style operations publish a session-change event on
// success rather than mutating any session state themselves; consumers
// observe transitions through Subscribe.
type Provider interface {
	// CreateAccount registers a new email/password account. The provider's
	// display name is set to username. Fails with common.ErrCredential on a
	// malformed or duplicate email, or a weak password.
	CreateAccount(ctx context.Context, email, password, username string) (*Identity, *Token, error)

	// PasswordSignIn fails with common.ErrCredential on a mismatch.
	PasswordSignIn(ctx context.Context, email, password string) (*Identity, *Token, error)

	// OAuthSignIn exchanges the assertion (an OpenID Connect ID token obtained
	// from the on-device consent flow) for a provider session. An empty
	// assertion means the user aborted the consent flow: common.ErrCancelled.
	OAuthSignIn(ctx context.Context, provider OAuthProvider, assertion string) (*Identity, *Token, error)

	// SignOut clears the provider session and publishes a nil identity.
	// It always succeeds locally.
	SignOut(ctx context.Context) error

	// Subscribe registers a session-change callback. The current identity is
	// delivered immediately, then once per transition, in event order, with
	// at most one callback in flight per subscription. The callback receives
	// nil when no user is signed in.
	Subscribe(fn func(*Identity)) (unsubscribe func())
}

// notifier implements Subscribe semantics shared by Provider implementations.
type notifier struct {
	mu      sync.Mutex
	pubMu   sync.Mutex
	nextID  int
	subs    map[int]*subscriber
	current *Identity
}

type subscriber struct {
	mu sync.Mutex // serializes callbacks for this subscription
	fn func(*Identity)
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[int]*subscriber)}
}

func (s *subscriber) deliver(ident *Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn(ident)
}

// Subscribe registers fn and delivers the current identity before returning.
func (n *notifier) Subscribe(fn func(*Identity)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	sub := &subscriber{fn: fn}
	n.subs[id] = sub
	cur := n.current
	n.mu.Unlock()

	sub.deliver(cur)

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// Identity returns the most recently published identity, or nil.
func (n *notifier) Identity() *Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// publish records ident as current and fans it out to every subscriber.
// The pubMu lock keeps event order identical across subscriptions even when
// sign-in and sign-out race.
func (n *notifier) publish(ident *Identity) {
	n.pubMu.Lock()
	defer n.pubMu.Unlock()

	n.mu.Lock()
	n.current = ident
	targets := make([]*subscriber, 0, len(n.subs))
	for _, sub := range n.subs {
		targets = append(targets, sub)
	}
	n.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(ident)
	}
}
