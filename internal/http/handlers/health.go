package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthProbe is one dependency the healthcheck pings.
type HealthProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

type HealthHandler struct {
	probes  []HealthProbe
	timeout time.Duration
}

func NewHealthHandler(probes ...HealthProbe) *HealthHandler {
	return &HealthHandler{probes: probes, timeout: 2 * time.Second}
}

// HealthCheck answers "ok" when every probe passes, otherwise 503 with the failing names.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var failing []string
	for _, p := range h.probes {
		if p.Check == nil {
			continue
		}
		if err := p.Check(ctx); err != nil {
			_ = c.Error(err)
			failing = append(failing, p.Name)
		}
	}
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failing": failing})
		return
	}
	c.String(http.StatusOK, "ok")
}
