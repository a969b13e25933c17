// File: internal/identity/provider_test.go
package identity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_SubscribeDeliversCurrentImmediately(t *testing.T) {
	n := newNotifier()

	var got []*Identity
	unsubscribe := n.Subscribe(func(ident *Identity) {
		got = append(got, ident)
	})
	defer unsubscribe()

	// No session yet: the immediate delivery is nil.
	require.Len(t, got, 1)
	assert.Nil(t, got[0])

	ident := &Identity{UID: "u1"}
	n.publish(ident)
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[1].UID)

	// A late subscriber sees the current identity right away.
	var late *Identity
	unsub2 := n.Subscribe(func(ident *Identity) { late = ident })
	defer unsub2()
	require.NotNil(t, late)
	assert.Equal(t, "u1", late.UID)
}

func TestNotifier_UnsubscribeStopsDelivery(t *testing.T) {
	n := newNotifier()

	calls := 0
	unsubscribe := n.Subscribe(func(*Identity) { calls++ })
	require.Equal(t, 1, calls)

	unsubscribe()
	n.publish(&Identity{UID: "u1"})
	assert.Equal(t, 1, calls)
}

func TestNotifier_PublishOrderIsSharedAcrossSubscribers(t *testing.T) {
	n := newNotifier()

	var mu sync.Mutex
	var a, b []string
	uid := func(ident *Identity) string {
		if ident == nil {
			return "<nil>"
		}
		return ident.UID
	}
	unsubA := n.Subscribe(func(ident *Identity) {
		mu.Lock()
		a = append(a, uid(ident))
		mu.Unlock()
	})
	defer unsubA()
	unsubB := n.Subscribe(func(ident *Identity) {
		mu.Lock()
		b = append(b, uid(ident))
		mu.Unlock()
	})
	defer unsubB()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				n.publish(&Identity{UID: "u1"})
			} else {
				n.publish(nil)
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	// Both subscriptions observe the same event sequence after their own
	// initial delivery.
	require.Equal(t, len(a), len(b))
	assert.Equal(t, a[1:], b[1:])
	assert.Equal(t, uid(n.Identity()), a[len(a)-1])
}

func TestNotifier_IdentityTracksLastPublish(t *testing.T) {
	n := newNotifier()
	assert.Nil(t, n.Identity())

	n.publish(&Identity{UID: "u1"})
	require.NotNil(t, n.Identity())
	assert.Equal(t, "u1", n.Identity().UID)

	n.publish(nil)
	assert.Nil(t, n.Identity())
}
