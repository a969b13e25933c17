// File: internal/session/handler.go
package session

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/identity"
)

// SignUpRequest defines the payload for creating a new account.
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Username string `json:"username" binding:"required,min=3,max=30"`
}

// SignInRequest defines the payload for an email/password sign-in.
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// OAuthSignInRequest carries the result of an on-device consent flow: either
// an ID-token assertion, or (for Google web flows) an authorization code.
// An empty assertion with no code means the user cancelled the flow.
type OAuthSignInRequest struct {
	Provider string `json:"provider" binding:"required,oneof=google apple"`
	IDToken  string `json:"id_token"`
	Code     string `json:"code"`
}

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	manager  *Manager
	provider *identity.FirebaseProvider
	logger   *zap.Logger
}

// NewHandler creates a new session handler.
func NewHandler(manager *Manager, provider *identity.FirebaseProvider, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, provider: provider, logger: logger}
}

// RegisterRoutes sets up the routes for session operations.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, authMW gin.HandlerFunc) {
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/sign-up", h.signUp)
		authGroup.POST("/sign-in", h.signIn)
		authGroup.POST("/oauth", h.oauthSignIn)
		authGroup.POST("/sign-out", authMW, h.signOut)
	}

	sessionGroup := router.Group("/session")
	{
		sessionGroup.GET("", h.getSession)
		sessionGroup.POST("/refresh-profile", authMW, h.refreshProfile)
	}
}

func (h *Handler) signUp(c *gin.Context) {
	var req SignUpRequest
	if !h.bind(c, &req) {
		return
	}

	token, err := h.manager.SignUp(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	snap := h.manager.Snapshot()
	common.RespondCreated(c, "Account created successfully.", gin.H{
		"identity": snap.Identity,
		"token":    token,
	})
}

func (h *Handler) signIn(c *gin.Context) {
	var req SignInRequest
	if !h.bind(c, &req) {
		return
	}

	token, err := h.manager.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	snap := h.manager.Snapshot()
	common.RespondOK(c, "Signed in successfully.", gin.H{
		"identity": snap.Identity,
		"token":    token,
	})
}

func (h *Handler) oauthSignIn(c *gin.Context) {
	var req OAuthSignInRequest
	if !h.bind(c, &req) {
		return
	}

	assertion := req.IDToken
	if assertion == "" && req.Code != "" && req.Provider == string(identity.ProviderGoogle) {
		exchanged, err := h.provider.ExchangeGoogleCode(c.Request.Context(), req.Code)
		if err != nil {
			common.RespondWithError(c, err)
			return
		}
		assertion = exchanged
	}

	var token *identity.Token
	var err error
	switch identity.OAuthProvider(req.Provider) {
	case identity.ProviderGoogle:
		token, err = h.manager.SignInWithGoogle(c.Request.Context(), assertion)
	case identity.ProviderApple:
		token, err = h.manager.SignInWithApple(c.Request.Context(), assertion)
	}
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	snap := h.manager.Snapshot()
	common.RespondOK(c, "Signed in successfully.", gin.H{
		"identity": snap.Identity,
		"token":    token,
	})
}

func (h *Handler) signOut(c *gin.Context) {
	if err := h.manager.SignOut(c.Request.Context()); err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondOK(c, "Signed out successfully.", nil)
}

func (h *Handler) getSession(c *gin.Context) {
	common.RespondOK(c, "Session state retrieved.", h.manager.Snapshot())
}

func (h *Handler) refreshProfile(c *gin.Context) {
	if err := h.manager.RefreshProfile(c.Request.Context()); err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondOK(c, "Profile refreshed.", h.manager.Snapshot().Profile)
}

// bind decodes the JSON body, translating validation failures into the
// standard error envelope. Returns false when a response was already written.
func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("Invalid request body", zap.String("path", c.Request.URL.Path), zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
			return false
		}
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return false
	}
	return true
}
