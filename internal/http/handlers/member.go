package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/promptgallery-backend/internal/http/response"
	"github.com/yungbote/promptgallery-backend/internal/platform/apierr"
	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
	"github.com/yungbote/promptgallery-backend/internal/services"
)

type MemberHandler struct {
	log      *logger.Logger
	members  services.MemberService
	families services.FamilyService
}

func NewMemberHandler(log *logger.Logger, members services.MemberService, families services.FamilyService) *MemberHandler {
	return &MemberHandler{
		log:      log.With("handler", "MemberHandler"),
		members:  members,
		families: families,
	}
}

// POST /api/members
func (h *MemberHandler) Create(c *gin.Context) {
	var req services.CreateMemberInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondServiceError(c, apierr.InvalidRequest(err))
		return
	}
	res, err := h.members.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	d := res.Decision
	response.RespondCreated(c, gin.H{
		"member": res.Member,
		"clustering": gin.H{
			"family_id":  d.FamilyID,
			"joined":     d.Joined,
			"matched_id": d.MatchedID,
			"ratio":      d.Ratio,
			"reason":     d.Reason,
		},
	})
}

// GET /api/members/:id
func (h *MemberHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := h.members.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"member": m})
}

// PATCH /api/members/:id
// body: any of title, prompt_text, translated_text, negative_prompt, model_info
func (h *MemberHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req services.UpdateMemberInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondServiceError(c, apierr.InvalidRequest(err))
		return
	}
	m, err := h.members.Update(c.Request.Context(), id, req)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"member": m})
}

// DELETE /api/members/:id
func (h *MemberHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.members.Delete(c.Request.Context(), id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/members/:id/like
func (h *MemberHandler) ToggleLike(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := h.members.ToggleLike(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"id": m.ID, "is_liked": m.IsLiked})
}

// GET /api/members/:id/family
func (h *MemberHandler) Family(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	fam, err := h.families.Family(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"family": fam})
}

// POST /api/members/:id/unlink
func (h *MemberHandler) Unlink(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := h.families.Unlink(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"member": m, "family_id": m.FamilyID})
}

// POST /api/members/:id/link
// body: { "target_ids": ["..."] }
func (h *MemberHandler) Link(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		TargetIDs []string `json:"target_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondServiceError(c, apierr.InvalidRequest(err))
		return
	}
	targets, err := parseIDs(req.TargetIDs)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	res, err := h.families.Link(c.Request.Context(), id, targets)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/members/:id/main
func (h *MemberHandler) SetMainVariant(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	m, err := h.families.SetMainVariant(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"member": m})
}

// GET /api/members/:id/link-suggestions?limit=
func (h *MemberHandler) LinkSuggestions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	out, err := h.families.Suggestions(c.Request.Context(), id, limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"suggestions": out})
}
