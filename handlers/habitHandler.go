package handlers

import (
	"net/http"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/middleware"
	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetHabits returns the habit list plus the completion map for one date
// (today by default). The caller cannot tell which tier produced either.
func GetHabits(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format(models.DateLayout)
	}

	habits := ledger.Habits.ListHabits(user.ID)
	completed := ledger.Habits.CompletionMap(user.ID, date)

	c.JSON(http.StatusOK, gin.H{
		"habits":    habits,
		"completed": completed,
		"date":      date,
	})
}

func CreateHabit(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input struct {
		Name  string `json:"name" validate:"required,min=1,max=60"`
		Icon  string `json:"icon"`
		Color string `json:"color"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if err := middleware.ValidateStruct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Habit name is required"})
		return
	}

	habit, err := ledger.Habits.CreateHabit(user.ID, input.Name, input.Icon, input.Color)
	if err != nil {
		utils.Logger.Error("create_habit_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create habit"})
		return
	}

	middleware.InvalidateUserCache(user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Habit created", "habit": habit})
}

// ToggleHabit flips today's (or the given date's) completion flag. Seeded
// habit ids are promoted to durable rows on first toggle; the response
// carries the resolved id so the client can switch over.
func ToggleHabit(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	habitID := c.Param("id")

	var input struct {
		Date string `json:"date"`
	}
	// Body is optional; default to today.
	c.ShouldBindJSON(&input)
	if input.Date == "" {
		input.Date = time.Now().UTC().Format(models.DateLayout)
	} else if _, err := time.Parse(models.DateLayout, input.Date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, want YYYY-MM-DD"})
		return
	}

	resolvedID, completed, err := ledger.Habits.ToggleHabit(user.ID, habitID, input.Date)
	if err != nil {
		utils.Logger.Error("toggle_habit_failed",
			zap.Uint("user_id", user.ID),
			zap.String("habit_id", habitID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to toggle habit"})
		return
	}

	ledger.EvaluateStreakDay(user, input.Date)
	middleware.InvalidateUserCache(user.ID)

	c.JSON(http.StatusOK, gin.H{
		"habit_id":  resolvedID,
		"date":      input.Date,
		"completed": completed,
	})
}

func DeleteHabit(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	habitID := c.Param("id")

	if err := ledger.Habits.DeleteHabit(user.ID, habitID); err != nil {
		utils.Logger.Warn("delete_habit_partial",
			zap.Uint("user_id", user.ID),
			zap.String("habit_id", habitID),
			zap.Error(err),
		)
	}

	middleware.InvalidateUserCache(user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Habit deleted"})
}
