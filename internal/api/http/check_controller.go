package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ozzus/robot-agent/internal/discovery"
	"ozzus/robot-agent/internal/domain"
)

type TaskRunner interface {
	RunCheck(ctx context.Context, task domain.Task) domain.CheckResult
}

type RobotBrowser interface {
	Browse(ctx context.Context, timeout time.Duration) ([]discovery.Candidate, error)
}

// CheckController runs checks on demand and lists robots on the network.
type CheckController struct {
	runner     TaskRunner
	browser    RobotBrowser
	maxTimeout time.Duration
}

func NewCheckController(runner TaskRunner, browser RobotBrowser) *CheckController {
	return &CheckController{
		runner:     runner,
		browser:    browser,
		maxTimeout: 30 * time.Second,
	}
}

type checkRequest struct {
	ID            string          `json:"task_id"`
	Type          domain.TaskType `json:"type" binding:"required"`
	Robot         domain.RobotID  `json:"robot"`
	AllowEviction *bool           `json:"allow_eviction"`
}

// RunCheck handles POST /checks. The request blocks until the check ends
// or the client goes away.
func (h *CheckController) RunCheck(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := domain.Task{
		ID:            req.ID,
		Type:          req.Type,
		Robot:         req.Robot,
		AllowEviction: req.AllowEviction,
		CreatedAt:     time.Now(),
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	if err := task.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.runner.RunCheck(c.Request.Context(), task))
}

// Robots handles GET /robots?timeout=2s.
func (h *CheckController) Robots(c *gin.Context) {
	var timeout time.Duration
	if raw := c.Query("timeout"); raw != "" {
		d, err := parseTimeout(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout: " + raw})
			return
		}
		timeout = min(d, h.maxTimeout)
	}

	robots, err := h.browser.Browse(c.Request.Context(), timeout)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	if robots == nil {
		robots = []discovery.Candidate{}
	}
	c.JSON(http.StatusOK, gin.H{"robots": robots, "total": len(robots)})
}

// parseTimeout accepts a Go duration or a plain number of seconds.
func parseTimeout(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}
