package handlers

import (
	"net/http"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/db"
	"github.com/StephenStolk/nutriapp-sub000/middleware"
	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type foodLogInput struct {
	Name     string  `json:"name"`
	MealType string  `json:"meal_type" validate:"omitempty,oneof=breakfast lunch dinner snack"`
	Calories int     `json:"calories" validate:"required,gt=0,lte=10000"`
	Protein  float64 `json:"protein" validate:"gte=0"`
	Carbs    float64 `json:"carbs" validate:"gte=0"`
	Fat      float64 `json:"fat" validate:"gte=0"`
}

// CreateFoodLog appends a nutrition event and runs the behavioral updaters.
// Updater failures never fail the request.
func CreateFoodLog(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input foodLogInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if err := middleware.ValidateStruct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Calories must be a positive number"})
		return
	}

	food, err := ledger.LogFood(user, models.FoodLog{
		Name:     input.Name,
		MealType: input.MealType,
		Calories: input.Calories,
		Protein:  input.Protein,
		Carbs:    input.Carbs,
		Fat:      input.Fat,
	})
	if err != nil {
		utils.Logger.Error("food_log_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log food"})
		return
	}

	middleware.InvalidateUserCache(user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Food logged", "food": food})
}

func GetFoodLogs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	query := db.DB.Where("user_id = ?", user.ID).Order("created_at DESC")
	if date := c.Query("date"); date != "" {
		day, err := time.Parse(models.DateLayout, date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, want YYYY-MM-DD"})
			return
		}
		query = query.Where("created_at >= ? AND created_at < ?", day, day.AddDate(0, 0, 1))
	}

	var logs []models.FoodLog
	if err := query.Find(&logs).Error; err != nil {
		utils.Logger.Error("food_logs_query_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load food logs"})
		return
	}

	c.JSON(http.StatusOK, logs)
}

// RenameFoodLog backfills the display name on an existing event.
func RenameFoodLog(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input struct {
		Name string `json:"name" validate:"required,min=1,max=100"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if err := middleware.ValidateStruct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	if err := ledger.BackfillFoodName(user.ID, c.Param("id"), input.Name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Food log not found"})
		return
	}

	middleware.InvalidateUserCache(user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Food log renamed"})
}

// AnalyzeFood sends the payload to the external analysis endpoint and logs
// the resulting nutrition event.
func AnalyzeFood(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var payload map[string]interface{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	result, err := analyzer.AnalyzeFood(c.Request.Context(), payload)
	if err != nil {
		utils.Logger.Error("food_analysis_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Analysis service unavailable"})
		return
	}
	if result.Calories <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Analysis returned no usable nutrition"})
		return
	}

	food, err := ledger.LogFood(user, models.FoodLog{
		Name:     result.Name,
		Calories: result.Calories,
		Protein:  result.Protein,
		Carbs:    result.Carbs,
		Fat:      result.Fat,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log analyzed food"})
		return
	}

	middleware.InvalidateUserCache(user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Food analyzed and logged", "food": food})
}

// GenerateMealPlan proxies preferences to the external generation endpoint.
func GenerateMealPlan(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var prefs map[string]interface{}
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if prefs == nil {
		prefs = map[string]interface{}{}
	}
	prefs["calorie_goal"] = user.CalorieGoal

	meals, err := analyzer.GenerateMealPlan(c.Request.Context(), prefs)
	if err != nil {
		utils.Logger.Error("meal_plan_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Meal plan service unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"meals": meals})
}
