// File: internal/profile/store.go
package profile

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/config"
	"lingualearn_backend/internal/firebase"
	"lingualearn_backend/internal/identity"
)

// Store defines the interface for profile document operations.
type Store interface {
	// EnsureProfile creates the document for ident.UID with defaults if it
	// does not exist, otherwise touches lastLoginAt merged with any
	// caller-supplied defaults. Idempotent and safe under concurrent
	// invocation for the same UID.
	EnsureProfile(ctx context.Context, ident *identity.Identity, defaults *Patch) error

	// GetProfile returns the document for uid. When the remote store is
	// unreachable it falls back to the local cache if one is configured;
	// with no cached copy it fails with common.ErrStoreUnavailable.
	GetProfile(ctx context.Context, uid string) (*UserProfile, error)

	// UpdateProfile merges patch into the existing document. It never
	// rewrites createdAt and fails with common.ErrNotFound when no document
	// exists for uid.
	UpdateProfile(ctx context.Context, uid string, patch *Patch) error

	// SyncPending flushes writes queued while offline back to the remote
	// store, returning the number of profiles flushed.
	SyncPending(ctx context.Context) (int, error)
}

// firestoreStore implements Store on Cloud Firestore with an optional
// SQLite-backed offline cache.
type firestoreStore struct {
	col    *firestore.CollectionRef
	client *firestore.Client
	cache  *Cache
	group  singleflight.Group
	logger *zap.Logger
}

// NewFirestoreStore creates the production profile store. cache may be nil
// when offline support is disabled.
func NewFirestoreStore(cfg *config.Config, fb *firebase.Service, cache *Cache, logger *zap.Logger) Store {
	client := fb.Firestore()
	return &firestoreStore{
		col:    client.Collection(cfg.ProfileCollection),
		client: client,
		cache:  cache,
		logger: logger.Named("ProfileStore"),
	}
}

// EnsureProfile coalesces concurrent callers for the same UID onto a single
// in-flight reconciliation; the winning transaction relies on Firestore's
// create-fails-if-exists guarantee, not a check-then-act race.
func (s *firestoreStore) EnsureProfile(ctx context.Context, ident *identity.Identity, defaults *Patch) error {
	if ident == nil || ident.UID == "" {
		return common.ErrBadRequest.WithDetails("Identity with a UID is required to reconcile a profile.")
	}

	_, err, shared := s.group.Do(ident.UID, func() (interface{}, error) {
		return nil, s.ensure(ctx, ident, defaults)
	})
	if shared {
		s.logger.Debug("Coalesced concurrent profile reconciliation", zap.String("uid", ident.UID))
	}
	return err
}

func (s *firestoreStore) ensure(ctx context.Context, ident *identity.Identity, defaults *Patch) error {
	doc := s.col.Doc(ident.UID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(doc)
		if status.Code(err) == codes.NotFound {
			p := newProfile(ident, time.Now().UTC())
			defaults.ApplyTo(p)
			return tx.Create(doc, p)
		}
		if err != nil {
			return err
		}
		updates := []firestore.Update{{Path: "lastLoginAt", Value: time.Now().UTC()}}
		updates = append(updates, defaults.updates()...)
		return tx.Update(doc, updates)
	})
	if err != nil {
		s.logger.Error("Profile reconciliation transaction failed", zap.String("uid", ident.UID), zap.Error(err))
		return translateStoreError(err)
	}

	s.logger.Debug("Profile reconciled", zap.String("uid", ident.UID))
	return nil
}

func (s *firestoreStore) GetProfile(ctx context.Context, uid string) (*UserProfile, error) {
	snap, err := s.col.Doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, common.ErrNotFound.WithDetails("No profile exists for this user.")
		}
		if s.cache != nil {
			if cached, cerr := s.cache.Get(uid); cerr == nil {
				s.logger.Warn("Profile store unreachable, serving cached profile",
					zap.String("uid", uid), zap.Error(err))
				return cached, nil
			}
		}
		s.logger.Error("Profile fetch failed with no cached fallback", zap.String("uid", uid), zap.Error(err))
		return nil, translateStoreError(err)
	}

	var p UserProfile
	if err := snap.DataTo(&p); err != nil {
		s.logger.Error("Profile document could not be decoded", zap.String("uid", uid), zap.Error(err))
		return nil, common.ErrInternalServer.WithDetails("Stored profile document is malformed.")
	}

	if s.cache != nil {
		if err := s.cache.Put(&p); err != nil {
			s.logger.Warn("Failed to mirror profile into offline cache", zap.String("uid", uid), zap.Error(err))
		}
	}
	return &p, nil
}

func (s *firestoreStore) UpdateProfile(ctx context.Context, uid string, patch *Patch) error {
	if patch.IsZero() {
		return nil
	}

	_, err := s.col.Doc(uid).Update(ctx, patch.updates())
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return common.ErrNotFound.WithDetails("No profile exists for this user.")
		}
		if s.cache != nil && isUnavailable(err) {
			if qerr := s.cache.QueuePatch(uid, patch); qerr == nil {
				s.logger.Warn("Profile store unreachable, queued profile update for later sync",
					zap.String("uid", uid), zap.Error(err))
				return nil
			}
		}
		s.logger.Error("Profile update failed", zap.String("uid", uid), zap.Error(err))
		return translateStoreError(err)
	}

	if s.cache != nil {
		if err := s.cache.Merge(uid, patch); err != nil {
			s.logger.Warn("Failed to mirror profile update into offline cache", zap.String("uid", uid), zap.Error(err))
		}
	}
	return nil
}

// SyncPending replays queued offline writes in arrival order. A profile whose
// document disappeared remotely keeps its queued patch; everything else is
// marked clean once the remote accepts it.
func (s *firestoreStore) SyncPending(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}

	pending, err := s.cache.DirtyEntries()
	if err != nil {
		return 0, err
	}

	flushed := 0
	for _, entry := range pending {
		if entry.Patch.IsZero() {
			if err := s.cache.MarkClean(entry.UID); err != nil {
				s.logger.Warn("Failed to clear empty pending patch", zap.String("uid", entry.UID), zap.Error(err))
			}
			continue
		}
		if _, err := s.col.Doc(entry.UID).Update(ctx, entry.Patch.updates()); err != nil {
			if isUnavailable(err) {
				// Still offline; retry on the next run.
				return flushed, translateStoreError(err)
			}
			s.logger.Error("Queued profile update rejected by remote store",
				zap.String("uid", entry.UID), zap.Error(err))
			continue
		}
		if err := s.cache.MarkClean(entry.UID); err != nil {
			s.logger.Warn("Flushed profile still marked dirty", zap.String("uid", entry.UID), zap.Error(err))
			continue
		}
		flushed++
	}
	return flushed, nil
}

// isUnavailable reports whether err indicates the remote store is unreachable
// rather than rejecting the request.
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

func translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := common.IsAPIError(err); ok {
		return apiErr
	}
	if status.Code(err) == codes.NotFound {
		return common.ErrNotFound.WithDetails("No profile exists for this user.")
	}
	return common.ErrStoreUnavailable.WithDetails(err.Error())
}
