// File: cmd/server/wire.go
//go:build wireinject
// +build wireinject

package main

import (
	"lingualearn_backend/internal/app"
	"lingualearn_backend/internal/config"
	"lingualearn_backend/internal/firebase"
	"lingualearn_backend/internal/identity"
	"lingualearn_backend/internal/jobs"
	"lingualearn_backend/internal/media"
	"lingualearn_backend/internal/platform/logger"
	"lingualearn_backend/internal/profile"
	"lingualearn_backend/internal/session"

	"github.com/google/wire"
)

// initializeServer is the main Wire injector.
func initializeServer(cfg *config.Config) (*app.Server, func(), error) {
	wire.Build(
		// Platform Layer
		logger.New,
		firebase.NewService,

		// Identity Provider
		identity.NewFirebaseProvider,
		wire.Bind(new(identity.Provider), new(*identity.FirebaseProvider)),

		// Profile Store
		profile.NewCache,
		profile.NewFirestoreStore,

		// Media Uploads
		media.NewGCSUploader,
		wire.Bind(new(media.Uploader), new(*media.GCSUploader)),

		// Session Core
		session.NewManager,

		// Handlers
		session.NewHandler,
		profile.NewHandler,

		// Jobs
		jobs.NewCacheSyncJob,

		// Application Layer
		app.NewServer,
		provideCleanup,
	)
	return nil, nil, nil
}
