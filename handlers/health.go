package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// RegisterHealth adds /health (liveness) and /ready. /ready answers 200 only
// when every check passes; each dependency is listed by name.
func RegisterHealth(r gin.IRouter, started time.Time, checks map[string]Check) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		ready := true
		deps := map[string]bool{}
		for name, check := range checks {
			ok := check(ctx) == nil
			deps[name] = ok
			ready = ready && ok
		}
		status, label := http.StatusOK, "ready"
		if !ready {
			status, label = http.StatusServiceUnavailable, "not_ready"
		}
		c.JSON(status, gin.H{"status": label, "deps": deps, "uptime": time.Since(started).String()})
	})
}
