package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailstash/mailstash/interfaces"
	"github.com/mailstash/mailstash/internal/tracing"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the sync state of every tracked folder
func Status(syncStates interfaces.SyncStateRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), "handlers.Status")
		defer span.Finish()
		tracing.TagComponentRest(span)

		states, err := syncStates.AllStates(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"folders": states})
	}
}
