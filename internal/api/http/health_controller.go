package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ozzus/robot-agent/internal/domain"
)

// StatusProvider reports the state of the agent service.
type StatusProvider interface {
	HealthCheck(ctx context.Context) error
	GetStatus() domain.AgentStatus
}

type HealthController struct {
	agent   StatusProvider
	agentID string
	version string
}

func NewHealthController(agent StatusProvider, agentID, version string) *HealthController {
	return &HealthController{
		agent:   agent,
		agentID: agentID,
		version: version,
	}
}

// Health handler для проверки работоспособности агента
func (h *HealthController) Health(c *gin.Context) {
	if err := h.agent.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, domain.HealthResponse{
			Status:    domain.HealthStatusUnhealthy,
			Timestamp: time.Now(),
			AgentID:   h.agentID,
			Message:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, domain.HealthResponse{
		Status:    domain.HealthStatusHealthy,
		Timestamp: time.Now(),
		AgentID:   h.agentID,
		Message:   "Agent is running",
	})
}

func (h *HealthController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.GetStatus())
}

// Ready handler для проверки готовности агента к работе
func (h *HealthController) Ready(c *gin.Context) {
	if err := h.agent.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not_ready",
			"agent":     h.agentID,
			"message":   err.Error(),
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"agent":     h.agentID,
		"message":   "Agent is ready to acquire robots",
		"timestamp": time.Now(),
	})
}

func (h *HealthController) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"agent_id":  h.agentID,
		"status":    h.agent.GetStatus(),
		"version":   h.version,
		"timestamp": time.Now(),
		"components": []string{
			"master_checker",
			"control_checker",
			"ping_checker",
			"discovery",
			"kafka_consumer",
			"result_sender",
		},
	})
}
