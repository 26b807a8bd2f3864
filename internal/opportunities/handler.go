package opportunities

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ZGRSRL/mergenlite-sub000/internal/attachments"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the opportunity and attachment repos.
type Handler struct {
	Repo    Repo
	AttRepo attachments.Repo
}

// NewHandler constructs a Handler.
func NewHandler(repo Repo, attRepo attachments.Repo) *Handler {
	return &Handler{Repo: repo, AttRepo: attRepo}
}

// RegisterRoutes attaches opportunity routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/opportunities", h.createOpportunity)
	rg.GET("/opportunities/:id", h.getOpportunity)
	rg.GET("/opportunities/:id/history", h.listHistory)
	rg.POST("/opportunities/:id/attachments", h.registerAttachment)
	rg.GET("/opportunities/:id/attachments", h.listAttachments)
}

type createOpportunityRequest struct {
	NoticeID    string `json:"noticeId" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Agency      string `json:"agency"`
	Description string `json:"description"`
	PostedAt    string `json:"postedAt"`
}

func (h *Handler) createOpportunity(c *gin.Context) {
	var req createOpportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "noticeId and title are required", nil)
		return
	}

	if existing, err := h.Repo.GetByNoticeID(c.Request.Context(), req.NoticeID); err == nil {
		respond.JSON(c, http.StatusOK, existing)
		return
	} else if !errors.Is(err, ErrNotFound) {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to register opportunity", nil)
		return
	}

	postedAt := time.Now().UTC()
	if req.PostedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.PostedAt)
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "postedAt must be RFC3339", nil)
			return
		}
		postedAt = parsed.UTC()
	}

	opp := Opportunity{
		ID:          uuid.NewString(),
		NoticeID:    strings.TrimSpace(req.NoticeID),
		Title:       strings.TrimSpace(req.Title),
		Agency:      strings.TrimSpace(req.Agency),
		Description: req.Description,
		PostedAt:    postedAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Repo.Create(c.Request.Context(), opp); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to register opportunity", nil)
		return
	}

	respond.JSON(c, http.StatusCreated, opp)
}

func (h *Handler) getOpportunity(c *gin.Context) {
	id := c.Param("id")
	c.Set("opportunityId", id)

	opp, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "opportunity not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch opportunity", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, opp)
}

func (h *Handler) listHistory(c *gin.Context) {
	id := c.Param("id")
	c.Set("opportunityId", id)

	if _, err := h.Repo.GetByID(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "opportunity not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch history", nil)
		}
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := h.Repo.ListHistory(c.Request.Context(), id, limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch history", nil)
		return
	}

	respond.JSON(c, http.StatusOK, entries)
}

type registerAttachmentRequest struct {
	SourceURL string `json:"sourceUrl" binding:"required"`
	MimeHint  string `json:"mimeHint"`
}

func (h *Handler) registerAttachment(c *gin.Context) {
	id := c.Param("id")
	c.Set("opportunityId", id)

	var req registerAttachmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sourceUrl is required", nil)
		return
	}

	if _, err := h.Repo.GetByID(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "opportunity not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to register attachment", nil)
		}
		return
	}

	now := time.Now().UTC()
	att := attachments.Attachment{
		ID:            uuid.NewString(),
		OpportunityID: id,
		SourceURL:     strings.TrimSpace(req.SourceURL),
		MimeHint:      strings.TrimSpace(req.MimeHint),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.AttRepo.Create(c.Request.Context(), att); err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to register attachment", nil)
		return
	}

	respond.JSON(c, http.StatusCreated, att)
}

func (h *Handler) listAttachments(c *gin.Context) {
	id := c.Param("id")
	c.Set("opportunityId", id)

	if _, err := h.Repo.GetByID(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "opportunity not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list attachments", nil)
		}
		return
	}

	atts, err := h.AttRepo.ListByOpportunity(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list attachments", nil)
		return
	}

	respond.JSON(c, http.StatusOK, atts)
}
