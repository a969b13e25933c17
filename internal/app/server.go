// File: internal/app/server.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"lingualearn_backend/internal/config"
	"lingualearn_backend/internal/firebase"
	"lingualearn_backend/internal/jobs"
	"lingualearn_backend/internal/middleware"
	"lingualearn_backend/internal/profile"
	"lingualearn_backend/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server struct holds the dependencies for the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	cfg        *config.Config
	logger     *zap.Logger

	// Handlers
	sessionHandler *session.Handler
	profileHandler *profile.Handler

	// Core lifecycle
	sessionManager *session.Manager

	// Jobs
	cacheSyncJob *jobs.CacheSyncJob

	authMW gin.HandlerFunc
}

// NewServer creates a new instance of our application server.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	sessionHandler *session.Handler,
	profileHandler *profile.Handler,
	sessionManager *session.Manager,
	cacheSyncJob *jobs.CacheSyncJob,
	firebaseService *firebase.Service,
) (*Server, error) {
	gin.SetMode(cfg.GinMode)
	router := gin.New()

	// --- Global Middleware ---
	router.Use(middleware.ZapLogger(logger, cfg))
	router.Use(middleware.ErrorHandler(logger))
	router.Use(gin.Recovery())

	// CORS Middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.AllowCredentials = true
	corsConfig.ExposeHeaders = []string{"Content-Length", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	authMW := middleware.AuthMiddleware(firebaseService, logger.Named("AuthMiddleware"))

	// --- Setup Routes ---
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP", "message": "LinguaLearn API is healthy!"})
	})

	v1 := router.Group("/api/v1")

	sessionHandler.RegisterRoutes(v1, authMW)
	profileHandler.RegisterRoutes(v1, authMW)

	addr := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer:     httpServer,
		router:         router,
		cfg:            cfg,
		logger:         logger,
		sessionHandler: sessionHandler,
		profileHandler: profileHandler,
		sessionManager: sessionManager,
		cacheSyncJob:   cacheSyncJob,
		authMW:         authMW,
	}, nil
}

func (s *Server) Start() error {
	// The session manager begins listening for identity events before any
	// request can observe its state.
	s.sessionManager.Start()

	if s.cacheSyncJob != nil {
		if err := s.cacheSyncJob.SetupAndStart(); err != nil {
			s.logger.Error("Failed to setup and start cache sync job", zap.Error(err))
		}
	} else {
		s.logger.Info("Cache sync job is not configured, skipping start.")
	}

	s.logger.Info("HTTP Server starting",
		zap.String("address", s.httpServer.Addr),
		zap.String("gin_mode", s.cfg.GinMode),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("Failed to start HTTP server", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP Server stopped gracefully or an error occurred")
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Attempting graceful server shutdown...")
	if s.cacheSyncJob != nil {
		s.cacheSyncJob.Stop()
	}
	s.sessionManager.Close()
	return s.httpServer.Shutdown(ctx)
}
