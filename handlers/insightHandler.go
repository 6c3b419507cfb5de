package handlers

import (
	"net/http"

	"github.com/StephenStolk/nutriapp-sub000/services"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetInsights returns the aggregated nutrition summary for the requested
// window (weekly by default).
func GetInsights(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	window := c.DefaultQuery("window", services.WindowWeek)
	switch window {
	case services.WindowDay, services.WindowWeek, services.WindowMonth:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Window must be day, week or month"})
		return
	}

	summary, err := ledger.Insights.Summarize(user.ID, window)
	if err != nil {
		utils.Logger.Error("insights_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute insights"})
		return
	}

	c.JSON(http.StatusOK, summary)
}
