package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"mayanetra/internal/history"
	"mayanetra/internal/models"
	"mayanetra/internal/notice"
	"mayanetra/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the session machine over HTTP
type Handler struct {
	machine *session.Machine
	board   *notice.Board
	logger  *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(machine *session.Machine, board *notice.Board, logger *zap.Logger) *Handler {
	return &Handler{
		machine: machine,
		board:   board,
		logger:  logger,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/state", h.GetState)

		api.PUT("/input", h.SetInput)
		api.POST("/input/clear", h.ClearInput)
		api.POST("/input/sample", h.LoadSample)
		api.POST("/input/copy", h.CopyInput)

		api.POST("/submit", h.Submit)
		api.POST("/result/dismiss", h.DismissResult)

		api.GET("/history", h.GetHistory)
		api.POST("/history", h.SaveHistory)
		api.DELETE("/history", h.ClearHistory)
		api.POST("/history/:index/load", h.LoadFromHistory)

		api.GET("/theme", h.GetTheme)
		api.PUT("/theme", h.SetTheme)
		api.POST("/theme/toggle", h.ToggleTheme)

		api.GET("/notices", h.GetNotices)
	}

	// Health check
	r.GET("/health", h.HealthCheck)
}

type inputRequest struct {
	Text string `json:"text"`
}

type themeRequest struct {
	Theme string `json:"theme" binding:"required"`
}

// HistoryItem is a history entry as listed to clients
type HistoryItem struct {
	models.HistoryEntry
	Preview string `json:"preview"`
}

// GetState returns the current machine snapshot
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.machine.View())
}

// SetInput mirrors the input field
func (h *Handler) SetInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.machine.SetInput(req.Text)
	c.JSON(http.StatusOK, h.machine.View())
}

// ClearInput empties the input field and hides any result
func (h *Handler) ClearInput(c *gin.Context) {
	h.machine.ClearInput()
	c.JSON(http.StatusOK, h.machine.View())
}

// LoadSample fills the input with the sample paragraph
func (h *Handler) LoadSample(c *gin.Context) {
	h.machine.LoadSample()
	c.JSON(http.StatusOK, h.machine.View())
}

// CopyInput returns the input text for the client's clipboard
func (h *Handler) CopyInput(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"text": h.machine.CopyInput()})
}

// Submit runs one classification cycle. An empty body submits the current input.
func (h *Handler) Submit(c *gin.Context) {
	var req inputRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	// The cycle outlives the HTTP caller; the predictor timeout bounds it.
	ctx := context.WithoutCancel(c.Request.Context())

	var err error
	if req.Text != "" {
		err = h.machine.Submit(ctx, req.Text)
	} else {
		err = h.machine.SubmitInput(ctx)
	}

	switch {
	case err == nil:
		c.JSON(http.StatusOK, h.machine.View())
	case errors.Is(err, session.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": session.NoticeEmptyInput})
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": h.machine.View()})
	default:
		h.logger.Error("Submit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submit failed"})
	}
}

// DismissResult hides the shown result or failure
func (h *Handler) DismissResult(c *gin.Context) {
	changed := h.machine.Dismiss()
	c.JSON(http.StatusOK, gin.H{"dismissed": changed, "state": h.machine.View()})
}

// GetHistory lists saved entries, most recent first
func (h *Handler) GetHistory(c *gin.Context) {
	entries := h.machine.History()
	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, HistoryItem{HistoryEntry: e, Preview: history.Preview(e.Text)})
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": items,
		"total":   len(items),
	})
}

// SaveHistory saves the current input and label
func (h *Handler) SaveHistory(c *gin.Context) {
	entry, err := h.machine.SaveToHistory(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"entry": entry, "persisted": true})
	case errors.Is(err, session.ErrNothingToSave):
		c.JSON(http.StatusBadRequest, gin.H{"error": session.NoticeNothingToSave})
	case errors.Is(err, history.ErrNotPersisted):
		c.JSON(http.StatusCreated, gin.H{"entry": entry, "persisted": false})
	default:
		h.logger.Error("Failed to save history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
	}
}

// ClearHistory removes every saved entry
func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.machine.ClearHistory(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{"cleared": true, "persisted": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true, "persisted": true})
}

// LoadFromHistory copies an entry's text into the input field
func (h *Handler) LoadFromHistory(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid history index"})
		return
	}

	entry, err := h.machine.LoadFromHistory(index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry, "state": h.machine.View()})
}

// GetTheme returns the active theme
func (h *Handler) GetTheme(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"theme": h.machine.Theme()})
}

// SetTheme activates the requested theme
func (h *Handler) SetTheme(c *gin.Context) {
	var req themeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := models.ParseTheme(req.Theme)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	persisted := true
	if err := h.machine.SetTheme(c.Request.Context(), t); err != nil {
		persisted = false
	}
	c.JSON(http.StatusOK, gin.H{"theme": h.machine.Theme(), "persisted": persisted})
}

// ToggleTheme switches between dark and light
func (h *Handler) ToggleTheme(c *gin.Context) {
	t, err := h.machine.ToggleTheme(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"theme": t, "persisted": err == nil})
}

// GetNotices returns notices that are still visible
func (h *Handler) GetNotices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notices":      h.board.Active(),
		"celebrations": h.board.Celebrations(),
	})
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "mayanetra",
		"version": "1.0.0",
	})
}
