package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/analysis"
	"github.com/StephenStolk/nutriapp-sub000/cache"
	"github.com/StephenStolk/nutriapp-sub000/db"
	"github.com/StephenStolk/nutriapp-sub000/handlers"
	"github.com/StephenStolk/nutriapp-sub000/middleware"
	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/routes"
	"github.com/StephenStolk/nutriapp-sub000/services"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	utils.InitLogger()
	defer utils.Logger.Sync()
	utils.InitMetrics()

	utils.Logger.Info("starting_application")

	db.Connect()
	if err := db.DB.AutoMigrate(
		&models.User{},
		&models.Habit{},
		&models.HabitLog{},
		&models.FoodLog{},
		&models.DebtAccount{},
		&models.DebtTransaction{},
		&models.ParasiteState{},
		&models.ParasiteEvent{},
		&models.Identity{},
		&models.IdentityImpact{},
		&models.StreakState{},
		&models.StreakDayLog{},
	); err != nil {
		utils.Logger.Fatal("migration_failed", zap.Error(err))
	}

	// Redis is the local cache tier; the app stays up without it and the
	// synchronizer degrades accordingly.
	if err := cache.InitRedis(utils.Logger); err != nil {
		utils.Logger.Warn("redis_unavailable_continuing", zap.Error(err))
	}
	defer cache.Close()

	ledger := services.NewLedger(db.DB, cache.KV{}, utils.Logger)
	handlers.Init(ledger, analysis.NewClient())

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.SecurityHeaders())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now(),
			"database":  "connected",
		})
	})

	r.POST("/api/register", middleware.RateLimitMiddleware(10, time.Minute), routes.Register)
	r.POST("/api/login", middleware.RateLimitMiddleware(20, time.Minute), routes.Login)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware())
	// Browser clients authenticate with a cookie-backed session, so the
	// mutating routes also carry CSRF protection when a key is configured.
	if key := os.Getenv("CSRF_AUTH_KEY"); key != "" {
		api.Use(middleware.CSRFProtection([]byte(key)))
	}
	{
		api.GET("/profile", routes.Profile)
		api.PUT("/profile", routes.UpdateProfile)

		api.GET("/habits", handlers.GetHabits)
		api.POST("/habits", handlers.CreateHabit)
		api.POST("/habits/:id/toggle", handlers.ToggleHabit)
		api.DELETE("/habits/:id", handlers.DeleteHabit)

		api.GET("/nutrition", handlers.GetFoodLogs)
		api.POST("/nutrition", handlers.CreateFoodLog)
		api.PUT("/nutrition/:id/name", handlers.RenameFoodLog)
		api.POST("/nutrition/analyze", handlers.AnalyzeFood)
		api.POST("/mealplan", handlers.GenerateMealPlan)

		api.GET("/ledger", handlers.GetLedger)
		api.GET("/debt/actions", handlers.GetDebtActions)
		api.POST("/debt/repay", handlers.RepayDebt)
		api.GET("/debt/transactions", handlers.GetDebtTransactions)
		api.GET("/identity", handlers.GetIdentity)
		api.POST("/identity", handlers.ActivateIdentity)

		api.GET("/insights", middleware.CacheMiddleware(2*time.Minute), handlers.GetInsights)

		api.GET("/admin/users", middleware.RoleMiddleware(models.RoleAdmin), routes.ListUsers)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	startServer(r)
}

func startServer(router *gin.Engine) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	utils.Logger.Info("starting_http_server", zap.String("port", port))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.Logger.Fatal("http_server_failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Logger.Info("shutting_down_server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		utils.Logger.Fatal("server_forced_shutdown", zap.Error(err))
	}

	utils.Logger.Info("server_stopped")
	fmt.Println("Server stopped gracefully")
}
