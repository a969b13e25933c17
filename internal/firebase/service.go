// File: internal/firebase/service.go
package firebase

import (
	"context"
	"fmt"
	"path/filepath"

	"cloud.google.com/go/firestore"
	cloudstorage "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"lingualearn_backend/internal/config"
)

// Service wraps the Firebase Admin SDK app and the managed-service clients
// derived from it: authentication, Firestore, and Cloud Storage.
type Service struct {
	authClient *auth.Client
	firestore  *firestore.Client
	bucket     *cloudstorage.BucketHandle
	logger     *zap.Logger
}

// NewService initializes the Firebase Admin SDK and creates a new Service.
func NewService(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if cfg.FirebaseServiceAccountKeyPath == "" {
		logger.Error("Firebase service account key path is not configured.")
		return nil, fmt.Errorf("firebase service account key path is required")
	}

	cleanPath := filepath.Clean(cfg.FirebaseServiceAccountKeyPath)
	opt := option.WithCredentialsFile(cleanPath)

	var app *firebase.App
	var err error

	if cfg.FirebaseProjectID != "" {
		conf := &firebase.Config{
			ProjectID:     cfg.FirebaseProjectID,
			StorageBucket: cfg.StorageBucket,
		}
		app, err = firebase.NewApp(context.Background(), conf, opt)
	} else {
		// If ProjectID is not specified in config, let SDK infer from credentials
		app, err = firebase.NewApp(context.Background(), &firebase.Config{StorageBucket: cfg.StorageBucket}, opt)
	}
	if err != nil {
		logger.Error("Failed to initialize Firebase Admin SDK app", zap.Error(err), zap.String("keyPath", cleanPath))
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	authClient, err := app.Auth(context.Background())
	if err != nil {
		logger.Error("Failed to get Firebase Auth client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firebase Auth client: %w", err)
	}

	fsClient, err := app.Firestore(context.Background())
	if err != nil {
		logger.Error("Failed to get Firestore client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firestore client: %w", err)
	}

	var bucket *cloudstorage.BucketHandle
	if cfg.StorageBucket != "" {
		storageClient, err := app.Storage(context.Background())
		if err != nil {
			logger.Error("Failed to get Cloud Storage client", zap.Error(err))
			return nil, fmt.Errorf("error getting Cloud Storage client: %w", err)
		}
		bucket, err = storageClient.Bucket(cfg.StorageBucket)
		if err != nil {
			logger.Error("Failed to open storage bucket", zap.Error(err), zap.String("bucket", cfg.StorageBucket))
			return nil, fmt.Errorf("error opening storage bucket %s: %w", cfg.StorageBucket, err)
		}
	} else {
		logger.Warn("STORAGE_BUCKET not configured, photo uploads will be unavailable.")
	}

	logger.Info("Firebase Admin SDK initialized successfully.")
	return &Service{
		authClient: authClient,
		firestore:  fsClient,
		bucket:     bucket,
		logger:     logger,
	}, nil
}

// VerifyIDToken verifies a Firebase ID token and returns the token claims.
func (s *Service) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if idToken == "" {
		return nil, fmt.Errorf("ID token must not be empty")
	}

	token, err := s.authClient.VerifyIDToken(ctx, idToken)
	if err != nil {
		s.logger.Warn("Firebase ID token verification failed", zap.Error(err))
		return nil, fmt.Errorf("failed to verify Firebase ID token: %w", err)
	}

	s.logger.Debug("Firebase ID token verified successfully", zap.String("uid", token.UID))
	return token, nil
}

// RevokeRefreshTokens revokes all refresh tokens for a given user.
func (s *Service) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := s.authClient.RevokeRefreshTokens(ctx, uid); err != nil {
		s.logger.Error("Failed to revoke refresh tokens", zap.Error(err), zap.String("uid", uid))
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	s.logger.Info("Successfully revoked refresh tokens for user", zap.String("uid", uid))
	return nil
}

// Firestore returns the Firestore client shared by the profile store.
func (s *Service) Firestore() *firestore.Client {
	return s.firestore
}

// Bucket returns the configured storage bucket, or nil when uploads are disabled.
func (s *Service) Bucket() *cloudstorage.BucketHandle {
	return s.bucket
}

// Close releases the underlying Firestore connection.
func (s *Service) Close() error {
	if s.firestore != nil {
		return s.firestore.Close()
	}
	return nil
}
