package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/deep-research/pkg/chat"
	"github.com/mikeboe/deep-research/pkg/database"
	"github.com/mikeboe/deep-research/pkg/research"
	"github.com/mikeboe/deep-research/pkg/vectorstore"
)

type Handler struct {
	Service *Service
	// Chat is optional; without it the ask endpoint is not registered.
	Chat Asker
	MCP  http.Handler
}

func NewHandler(s *Service, c Asker) *Handler {
	return &Handler{Service: s, Chat: c, MCP: NewMCPHandler(s)}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Any("/mcp", gin.WrapH(h.MCP))
	api := r.Group("/api")
	{
		api.POST("/research", h.createJob)
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.DELETE("/research/:id", h.deleteJob)
		api.GET("/research/:id/logs", h.getJobLogs)
		api.GET("/research/:id/findings", h.getFindings)
		if h.Chat != nil {
			api.POST("/research/:id/ask", h.ask)
		}
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrJobNotCompleted):
		return http.StatusConflict
	case errors.Is(err, research.ErrEmptyTopic),
		errors.Is(err, research.ErrInvalidBreadth),
		errors.Is(err, research.ErrInvalidDepth),
		errors.Is(err, ErrBreadthTooLarge),
		errors.Is(err, ErrDepthTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.CreateJob(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Service.ListJobs(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []database.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	job, err := h.Service.GetJob(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) deleteJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.Service.DeleteJob(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	logs, err := h.Service.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if logs == nil {
		logs = []database.LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) getFindings(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if query := c.Query("q"); query != "" {
		topK, _ := strconv.Atoi(c.Query("topK"))
		results, err := h.Service.SearchFindings(c.Request.Context(), id, query, topK)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
		return
	}

	docs, err := h.Service.Findings(c.Request.Context(), id, c.Query("kind"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if docs == nil {
		docs = []vectorstore.Document{}
	}
	c.JSON(http.StatusOK, docs)
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (h *Handler) ask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.completedJob(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	next, err := h.Chat.Ask(c.Request.Context(), job.ID.String(), job.Topic, req.Question)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for event, err := range next {
		if err != nil {
			// Report the failure as a final event.
			writeEvent(c, chat.StreamEvent{Type: "error", Payload: err.Error()})
			return
		}
		if !writeEvent(c, event) {
			return
		}
	}
}

func writeEvent(c *gin.Context, event chat.StreamEvent) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
	return true
}
