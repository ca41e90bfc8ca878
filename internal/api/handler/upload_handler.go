package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/itaysmouha/ScoutAI/internal/api/dto"
	"github.com/itaysmouha/ScoutAI/internal/domain"
)

const (
	defaultContentType = "video/mp4"
	defaultExtension   = ".mp4"
	uploadPrefix       = "uploads/"
)

// UploadHandler issues presigned upload URLs
type UploadHandler struct {
	logger  *slog.Logger
	signer  UploadSigner
	expiry  time.Duration
	allowed []string
	now     func() time.Time
}

// NewUploadHandler creates a new UploadHandler instance
func NewUploadHandler(deps *Dependencies) *UploadHandler {
	allowed := make([]string, 0, len(deps.AllowedExtensions))
	for _, ext := range deps.AllowedExtensions {
		if ext = normalizeExtension(ext); ext != "" {
			allowed = append(allowed, ext)
		}
	}
	return &UploadHandler{
		logger:  deps.Logger,
		signer:  deps.Uploads,
		expiry:  deps.PresignExpiry,
		allowed: allowed,
		now:     deps.now,
	}
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// extensionFor picks the key extension from the request, falling back to
// the content type
func extensionFor(req dto.PresignRequest) string {
	if ext := normalizeExtension(req.Extension); ext != "" {
		return ext
	}
	if req.ContentType != "" {
		exts, err := mime.ExtensionsByType(req.ContentType)
		if err == nil && len(exts) > 0 && !slices.Contains(exts, defaultExtension) {
			return exts[0]
		}
	}
	return defaultExtension
}

// PresignUpload handles POST /api/v1/uploads/presign
// Returns a PUT URL for a fresh uploads/{uuid}{ext} key
func (h *UploadHandler) PresignUpload(c *gin.Context) {
	var req dto.PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.ContentType == "" {
		req.ContentType = defaultContentType
	}

	ext := extensionFor(req)
	if len(h.allowed) > 0 && !slices.Contains(h.allowed, ext) {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Unsupported file extension " + ext})
		return
	}

	key := uploadPrefix + uuid.NewString() + ext
	url, err := h.signer.PresignPut(c.Request.Context(), key, h.expiry)
	if err != nil {
		h.logger.Error("Failed to presign upload", slog.String("key", key), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create upload URL"})
		return
	}

	h.logger.Info("Upload URL issued", slog.String("key", key))
	c.JSON(http.StatusOK, dto.PresignResponse{
		Key:       key,
		URL:       url,
		ExpiresAt: domain.FormatTimestamp(h.now().Add(h.expiry)),
	})
}
