package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/promptgallery-backend/internal/http/response"
	"github.com/yungbote/promptgallery-backend/internal/platform/apierr"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/services"
)

type FamilyHandler struct {
	log      *logger.Logger
	members  services.MemberService
	families services.FamilyService
}

func NewFamilyHandler(log *logger.Logger, members services.MemberService, families services.FamilyService) *FamilyHandler {
	return &FamilyHandler{
		log:      log.With("handler", "FamilyHandler"),
		members:  members,
		families: families,
	}
}

// GET /api/families?q=&page=&page_size=
func (h *FamilyHandler) List(c *gin.Context) {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	size, err := queryInt(c, "page_size", 0)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	out, err := h.members.ListFamilies(c.Request.Context(), strings.TrimSpace(c.Query("q")), page, size)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /api/families/merge
// body: { "member_ids": ["..."] } (one representative per family; the first survives)
func (h *FamilyHandler) Merge(c *gin.Context) {
	var req struct {
		MemberIDs []string `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondServiceError(c, apierr.InvalidRequest(err))
		return
	}
	ids, err := parseIDs(req.MemberIDs)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	res, err := h.families.Merge(c.Request.Context(), ids)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	h.log.Info("Families merged", "family_id", res.FamilyID, "updated", res.Updated, "absorbed", res.Absorbed)
	response.RespondOK(c, res)
}
