package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/promptgallery-backend/internal/domain"
	"github.com/yungbote/promptgallery-backend/internal/http/response"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/services"
	"github.com/yungbote/promptgallery-backend/internal/similarity"
)

type AssetHandler struct {
	log          *logger.Logger
	assets       services.AssetService
	maxFileBytes int64
}

func NewAssetHandler(log *logger.Logger, assets services.AssetService, maxFileBytes int64) *AssetHandler {
	if maxFileBytes <= 0 {
		maxFileBytes = defaultMaxFileBytes
	}
	return &AssetHandler{
		log:          log.With("handler", "AssetHandler"),
		assets:       assets,
		maxFileBytes: maxFileBytes,
	}
}

// POST /api/members/:id/assets
// multipart: files (repeated), role (generated|reference)
func (h *AssetHandler) Upload(c *gin.Context) {
	memberID, ok := pathID(c)
	if !ok {
		return
	}
	files, err := multipartFiles(c, "files", h.maxFileBytes)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	role := types.AssetRole(strings.ToLower(strings.TrimSpace(c.PostForm("role"))))
	results, err := h.assets.Upload(c.Request.Context(), memberID, role, files)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	status := http.StatusOK
	for _, r := range results {
		if r.Asset != nil {
			status = http.StatusCreated
			break
		}
	}
	c.JSON(status, gin.H{"results": results})
}

// POST /api/assets/check-duplicates
// multipart: files (repeated), role
func (h *AssetHandler) CheckDuplicates(c *gin.Context) {
	files, err := multipartFiles(c, "files", h.maxFileBytes)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	role := types.AssetRole(strings.ToLower(strings.TrimSpace(c.PostForm("role"))))
	out, err := h.assets.CheckDuplicates(c.Request.Context(), role, files)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": out})
}

// DELETE /api/assets/:id
func (h *AssetHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.assets.Delete(c.Request.Context(), id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/assets/:id/like
func (h *AssetHandler) ToggleLike(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := h.assets.ToggleLike(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"id": a.ID, "is_liked": a.IsLiked})
}

// GET /api/assets/liked?limit=&offset=
func (h *AssetHandler) ListLiked(c *gin.Context) {
	limit, err := queryInt(c, "limit", 60)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	out, err := h.assets.ListLiked(c.Request.Context(), limit, offset)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assets": out})
}

// GET /api/assets/:id/similar?top_k=&threshold=&role=&liked=
func (h *AssetHandler) Similar(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	opts, err := searchOptions(c)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	hits, err := h.assets.SearchByAsset(c.Request.Context(), id, opts)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": hits})
}

// POST /api/search/similar?top_k=&threshold=&role=&liked=
// multipart: file
func (h *AssetHandler) SearchByUpload(c *gin.Context) {
	opts, err := searchOptions(c)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	files, err := multipartFiles(c, "file", h.maxFileBytes)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	f := files[0]
	hits, err := h.assets.SearchByMedia(c.Request.Context(), similarity.FromBytes(f.Name, f.Data), opts)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": hits})
}
