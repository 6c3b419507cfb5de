package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Plant stage thresholds in streak days. Stage n is the highest entry whose
// threshold is <= the current streak. A full 30-day cycle grows a plant and
// restarts the streak.
var plantStageThresholds = []int{0, 3, 7, 14, 30}

const streakCycleDays = 30

func stageForStreak(streak int) int {
	stage := 1
	for i, th := range plantStageThresholds {
		if streak >= th {
			stage = i + 1
		}
	}
	return stage
}

// StreakService runs the growth streak state machine. A day extends the
// streak only when both qualifying conditions held and the previous calendar
// day's log shows the streak was maintained (or the streak is at zero).
type StreakService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStreakService(db *gorm.DB, log *zap.Logger) *StreakService {
	return &StreakService{db: db, log: log}
}

// State returns the user's streak row, creating it lazily at stage 1.
func (s *StreakService) State(userID uint) (models.StreakState, error) {
	var st models.StreakState
	err := s.db.Where("user_id = ?", userID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st = models.StreakState{UserID: userID, PlantStage: 1}
		if cerr := s.db.Create(&st).Error; cerr != nil {
			if rerr := s.db.Where("user_id = ?", userID).First(&st).Error; rerr != nil {
				return st, fmt.Errorf("create streak state: %w", cerr)
			}
		}
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("load streak state: %w", err)
	}
	return st, nil
}

// DayLog returns the log row for one date, if present.
func (s *StreakService) DayLog(userID uint, date string) (models.StreakDayLog, bool, error) {
	var lg models.StreakDayLog
	err := s.db.Where("user_id = ? AND date = ?", userID, date).First(&lg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lg, false, nil
	}
	if err != nil {
		return lg, false, fmt.Errorf("load streak day log: %w", err)
	}
	return lg, true, nil
}

// RecordDay upserts the day log with the two qualifying flags and, when both
// hold, extends the streak. Extension runs at most once per (user, date):
// a day already marked maintained is left alone.
func (s *StreakService) RecordDay(userID uint, date string, habitsDone, caloriesOnTarget bool) (models.StreakState, error) {
	today, found, err := s.DayLog(userID, date)
	if err != nil {
		utils.LedgerUpdates.WithLabelValues("streak", "failed").Inc()
		return models.StreakState{}, err
	}
	if found && today.StreakMaintained {
		utils.LedgerUpdates.WithLabelValues("streak", "skipped").Inc()
		return s.State(userID)
	}

	maintained := habitsDone && caloriesOnTarget
	if err := s.upsertDayLog(userID, date, habitsDone, caloriesOnTarget, maintained); err != nil {
		utils.LedgerUpdates.WithLabelValues("streak", "failed").Inc()
		return models.StreakState{}, err
	}
	if !maintained {
		utils.LedgerUpdates.WithLabelValues("streak", "skipped").Inc()
		return s.State(userID)
	}

	st, err := s.extend(userID, date)
	if err != nil {
		utils.LedgerUpdates.WithLabelValues("streak", "failed").Inc()
		return st, err
	}
	utils.LedgerUpdates.WithLabelValues("streak", "applied").Inc()
	return st, nil
}

func (s *StreakService) extend(userID uint, date string) (models.StreakState, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return models.StreakState{}, fmt.Errorf("bad date %q: %w", date, err)
	}
	yesterday := day.AddDate(0, 0, -1).Format(models.DateLayout)

	for attempt := 0; attempt < 2; attempt++ {
		st, err := s.State(userID)
		if err != nil {
			return st, err
		}

		prev, prevFound, err := s.DayLog(userID, yesterday)
		if err != nil {
			return st, err
		}

		next := st
		if (prevFound && prev.StreakMaintained) || st.Current == 0 {
			next.Current = st.Current + 1
		} else {
			// Chain broken yesterday; today still counts as a fresh start.
			next.Current = 1
		}
		if next.Current > next.Longest {
			next.Longest = next.Current
		}

		if next.Current >= streakCycleDays {
			next.PlantsGrown = st.PlantsGrown + 1
			next.Current = 0
			next.PlantStage = 1
		} else {
			next.PlantStage = stageForStreak(next.Current)
		}

		res := s.db.Model(&models.StreakState{}).
			Where("user_id = ? AND version = ?", userID, st.Version).
			Updates(map[string]interface{}{
				"current":      next.Current,
				"longest":      next.Longest,
				"plant_stage":  next.PlantStage,
				"plants_grown": next.PlantsGrown,
				"version":      st.Version + 1,
			})
		if res.Error != nil {
			return st, fmt.Errorf("update streak state: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			next.Version = st.Version + 1
			s.log.Info("streak_extended",
				zap.Uint("user_id", userID),
				zap.String("date", date),
				zap.Int("current", next.Current),
				zap.Int("stage", next.PlantStage),
				zap.Int("plants_grown", next.PlantsGrown),
			)
			return next, nil
		}
		s.log.Warn("streak_version_conflict", zap.Uint("user_id", userID), zap.Int("attempt", attempt))
	}
	return models.StreakState{}, ErrVersionConflict
}

func (s *StreakService) upsertDayLog(userID uint, date string, habitsDone, caloriesOnTarget, maintained bool) error {
	lg := models.StreakDayLog{
		ID:               uuid.NewString(),
		UserID:           userID,
		Date:             date,
		HabitsCompleted:  habitsDone,
		CaloriesOnTarget: caloriesOnTarget,
		StreakMaintained: maintained,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"habits_completed":   habitsDone,
			"calories_on_target": caloriesOnTarget,
			"streak_maintained":  maintained,
		}),
	}).Create(&lg).Error
	if err != nil {
		return fmt.Errorf("upsert streak day log: %w", err)
	}
	return nil
}
