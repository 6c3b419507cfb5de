package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	parasiteUnhealthyCalories = 500
	parasiteMaxGrowth         = 15
	parasiteMaxHealth         = 100
)

var cravingKeywords = []string{"fries", "pizza", "burger"}

// unhealthyFood classifies a nutrition event for the parasite updater.
func unhealthyFood(name string, calories int) bool {
	if calories > parasiteUnhealthyCalories {
		return true
	}
	lower := strings.ToLower(name)
	for _, kw := range cravingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ParasiteService grows the craving parasite on unhealthy nutrition events.
// Health only moves up under this subsystem; decay is future work.
type ParasiteService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewParasiteService(db *gorm.DB, log *zap.Logger) *ParasiteService {
	return &ParasiteService{db: db, log: log}
}

// State returns the user's parasite row, creating it lazily at zero health.
func (s *ParasiteService) State(userID uint) (models.ParasiteState, error) {
	var st models.ParasiteState
	err := s.db.Where("user_id = ?", userID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st = models.ParasiteState{UserID: userID}
		if cerr := s.db.Create(&st).Error; cerr != nil {
			if rerr := s.db.Where("user_id = ?", userID).First(&st).Error; rerr != nil {
				return st, fmt.Errorf("create parasite state: %w", cerr)
			}
		}
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("load parasite state: %w", err)
	}
	return st, nil
}

// OnFoodLogged applies one nutrition event. Healthy events change nothing;
// unhealthy ones grow health by min(15, calories/50), clamped to 100, and
// leave an audit row with the triggering food.
func (s *ParasiteService) OnFoodLogged(userID uint, food models.FoodLog) (models.ParasiteState, error) {
	if !unhealthyFood(food.Name, food.Calories) {
		utils.LedgerUpdates.WithLabelValues("parasite", "skipped").Inc()
		return s.State(userID)
	}

	growth := food.Calories / 50
	if growth > parasiteMaxGrowth {
		growth = parasiteMaxGrowth
	}

	var updated models.ParasiteState
	for attempt := 0; attempt < 2; attempt++ {
		st, err := s.State(userID)
		if err != nil {
			utils.LedgerUpdates.WithLabelValues("parasite", "failed").Inc()
			return st, err
		}

		health := st.Health + growth
		if health > parasiteMaxHealth {
			health = parasiteMaxHealth
		}

		res := s.db.Model(&models.ParasiteState{}).
			Where("user_id = ? AND version = ?", userID, st.Version).
			Updates(map[string]interface{}{
				"health":  health,
				"version": st.Version + 1,
			})
		if res.Error != nil {
			utils.LedgerUpdates.WithLabelValues("parasite", "failed").Inc()
			return st, fmt.Errorf("update parasite state: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			updated = st
			updated.Health = health
			updated.Version = st.Version + 1
			break
		}
		if attempt == 1 {
			utils.LedgerUpdates.WithLabelValues("parasite", "failed").Inc()
			return st, ErrVersionConflict
		}
	}

	ev := models.ParasiteEvent{
		ID:       uuid.NewString(),
		UserID:   userID,
		FoodName: food.Name,
		Growth:   growth,
	}
	if err := s.db.Create(&ev).Error; err != nil {
		s.log.Error("parasite_event_write_failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	utils.LedgerUpdates.WithLabelValues("parasite", "applied").Inc()
	s.log.Info("parasite_growth",
		zap.Uint("user_id", userID),
		zap.String("food", food.Name),
		zap.Int("growth", growth),
		zap.Int("health", updated.Health),
	)
	return updated, nil
}
