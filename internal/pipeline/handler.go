package pipeline

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZGRSRL/mergenlite-sub000/internal/jobs"
	"github.com/ZGRSRL/mergenlite-sub000/internal/opportunities"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/server/respond"
)

// Handler exposes job control and inspection over HTTP.
type Handler struct {
	Orch *Orchestrator
	Jobs jobs.Repo
}

// NewHandler constructs a Handler.
func NewHandler(orch *Orchestrator, jobsRepo jobs.Repo) *Handler {
	return &Handler{Orch: orch, Jobs: jobsRepo}
}

// RegisterRoutes attaches pipeline routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/opportunities/:id/analyze", h.startAnalysis)
	rg.POST("/opportunities/:id/match", h.startMatch)
	rg.GET("/opportunities/:id/jobs", h.listJobs)
	rg.GET("/jobs/:id", h.getJob)
	rg.GET("/jobs/:id/logs", h.listLogs)
}

func (h *Handler) startAnalysis(c *gin.Context) {
	id := c.Param("id")
	c.Set("opportunityId", id)

	job, err := h.Orch.StartDocumentAnalysis(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, opportunities.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "opportunity not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}
	c.Set("jobId", job.ID)

	respond.Accepted(c, gin.H{
		"jobId":  job.ID,
		"kind":   job.Kind,
		"status": job.Status,
	})
}

func (h *Handler) startMatch(c *gin.Context) {
	id := c.Param("id")
	c.Set("opportunityId", id)

	job, err := h.Orch.StartHotelMatch(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, opportunities.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "opportunity not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start match", nil)
		}
		return
	}
	c.Set("jobId", job.ID)

	respond.Accepted(c, gin.H{
		"jobId":  job.ID,
		"kind":   job.Kind,
		"status": job.Status,
	})
}

func (h *Handler) getJob(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)

	job, err := h.Jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch job", nil)
		}
		return
	}

	resp := gin.H{
		"jobId":         job.ID,
		"opportunityId": job.OpportunityID,
		"kind":          job.Kind,
		"status":        job.Status,
		"createdAt":     job.CreatedAt,
	}
	if job.StartedAt != nil {
		resp["startedAt"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		resp["completedAt"] = job.CompletedAt
	}
	if job.Status == jobs.StatusCompleted && job.Result != nil {
		resp["result"] = job.Result
		resp["confidence"] = job.Confidence
		if job.ArtifactPath != "" {
			resp["artifactPath"] = job.ArtifactPath
		}
		resp["agent"] = job.AgentLabel
	}
	if job.Status == jobs.StatusFailed {
		resp["errorCode"] = job.ErrorCode
		if job.ErrorMessage != nil {
			resp["errorMessage"] = *job.ErrorMessage
		}
	}

	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listLogs(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)

	if _, err := h.Jobs.GetByID(c.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch logs", nil)
		}
		return
	}

	entries, err := h.Jobs.ListLogs(c.Request.Context(), jobID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch logs", nil)
		return
	}

	respond.JSON(c, http.StatusOK, entries)
}

func (h *Handler) listJobs(c *gin.Context) {
	id := c.Param("id")
	c.Set("opportunityId", id)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	list, err := h.Jobs.ListByOpportunity(c.Request.Context(), id, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list jobs", nil)
		return
	}

	resp := make([]gin.H, 0, len(list))
	for _, job := range list {
		item := gin.H{
			"jobId":     job.ID,
			"kind":      job.Kind,
			"status":    job.Status,
			"createdAt": job.CreatedAt,
		}
		if job.Status == jobs.StatusFailed {
			item["errorCode"] = job.ErrorCode
		}
		resp = append(resp, item)
	}

	respond.JSON(c, http.StatusOK, resp)
}
