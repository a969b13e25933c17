// File: internal/profile/handler.go
package profile

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/media"
)

// Handler exposes profile read and update operations over HTTP. All routes
// require an authenticated caller; the profile acted on is always the one
// belonging to the verified token, never a client-supplied UID.
type Handler struct {
	store    Store
	uploader media.Uploader
	logger   *zap.Logger
}

// NewHandler creates a new profile handler.
func NewHandler(store Store, uploader media.Uploader, logger *zap.Logger) *Handler {
	return &Handler{store: store, uploader: uploader, logger: logger}
}

// RegisterRoutes sets up the routes for profile operations.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, authMW gin.HandlerFunc) {
	profileGroup := router.Group("/profile")
	profileGroup.Use(authMW)
	{
		profileGroup.GET("", h.getProfile)
		profileGroup.PATCH("", h.updateProfile)
		profileGroup.POST("/photo", h.uploadPhoto)
	}
}

func (h *Handler) getProfile(c *gin.Context) {
	uid := common.GetUserUIDFromContext(c)
	if uid == "" {
		common.RespondWithError(c, common.ErrUnauthorized)
		return
	}

	prof, err := h.store.GetProfile(c.Request.Context(), uid)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondOK(c, "Profile retrieved successfully.", prof)
}

func (h *Handler) updateProfile(c *gin.Context) {
	uid := common.GetUserUIDFromContext(c)
	if uid == "" {
		common.RespondWithError(c, common.ErrUnauthorized)
		return
	}

	var patch Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.logger.Warn("Invalid profile patch", zap.String("uid", uid), zap.Error(err))
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
			return
		}
		common.RespondWithError(c, common.ErrBadRequest.WithDetails(err.Error()))
		return
	}

	if err := h.store.UpdateProfile(c.Request.Context(), uid, &patch); err != nil {
		common.RespondWithError(c, err)
		return
	}

	prof, err := h.store.GetProfile(c.Request.Context(), uid)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondOK(c, "Profile updated successfully.", prof)
}

func (h *Handler) uploadPhoto(c *gin.Context) {
	uid := common.GetUserUIDFromContext(c)
	if uid == "" {
		common.RespondWithError(c, common.ErrUnauthorized)
		return
	}

	file, err := c.FormFile("photo")
	if err != nil {
		common.RespondWithError(c, common.ErrBadRequest.WithDetails("A 'photo' file field is required."))
		return
	}

	tmpPath := filepath.Join(os.TempDir(), uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		h.logger.Error("Failed to buffer uploaded photo", zap.String("uid", uid), zap.Error(err))
		common.RespondWithError(c, common.ErrInternalServer)
		return
	}
	defer os.Remove(tmpPath)

	url, err := h.uploader.UploadImage(c.Request.Context(), tmpPath)
	if err != nil {
		common.RespondWithError(c, err)
		return
	}

	if err := h.store.UpdateProfile(c.Request.Context(), uid, &Patch{PhotoURL: &url}); err != nil {
		common.RespondWithError(c, err)
		return
	}
	common.RespondOK(c, "Photo uploaded successfully.", gin.H{"photo_url": url})
}
