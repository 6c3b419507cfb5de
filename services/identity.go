package services

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	identityHealthyMin = 200
	identityHealthyMax = 600
)

// IdentityService scores nutrition events against the user's active
// identity. The impact magnitude is drawn at random on purpose (the score is
// meant to feel alive, not formulaic); the source is injectable so tests can
// pin it.
type IdentityService struct {
	db  *gorm.DB
	log *zap.Logger
	// rng returns a uniform draw in [0,1).
	rng func() float64
}

func NewIdentityService(db *gorm.DB, log *zap.Logger) *IdentityService {
	return &IdentityService{db: db, log: log, rng: rand.Float64}
}

// WithRand replaces the random source. Tests use a seeded *rand.Rand.
func (s *IdentityService) WithRand(r *rand.Rand) *IdentityService {
	s.rng = r.Float64
	return s
}

// Active returns the user's active identity, if any.
func (s *IdentityService) Active(userID uint) (models.Identity, bool, error) {
	var ident models.Identity
	err := s.db.Where("user_id = ? AND active = ?", userID, true).First(&ident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ident, false, nil
	}
	if err != nil {
		return ident, false, fmt.Errorf("load active identity: %w", err)
	}
	return ident, true, nil
}

// Activate makes name the single active identity for the user, creating it
// if needed. Any previously active identity is deactivated.
func (s *IdentityService) Activate(userID uint, name string) (models.Identity, error) {
	if err := s.db.Model(&models.Identity{}).
		Where("user_id = ? AND active = ?", userID, true).
		Update("active", false).Error; err != nil {
		return models.Identity{}, fmt.Errorf("deactivate identity: %w", err)
	}

	var ident models.Identity
	err := s.db.Where("user_id = ? AND name = ?", userID, name).First(&ident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ident = models.Identity{
			ID:     uuid.NewString(),
			UserID: userID,
			Name:   name,
			Active: true,
			Score:  50,
		}
		if cerr := s.db.Create(&ident).Error; cerr != nil {
			return ident, fmt.Errorf("create identity: %w", cerr)
		}
		return ident, nil
	}
	if err != nil {
		return ident, fmt.Errorf("load identity: %w", err)
	}

	if err := s.db.Model(&models.Identity{}).Where("id = ?", ident.ID).
		Update("active", true).Error; err != nil {
		return ident, fmt.Errorf("activate identity: %w", err)
	}
	ident.Active = true
	return ident, nil
}

// OnFoodLogged draws an impact for one nutrition event and applies it to the
// active identity's score, clamped to [0,100]. No-op when the user has no
// active identity.
func (s *IdentityService) OnFoodLogged(userID uint, food models.FoodLog) (models.IdentityImpact, bool, error) {
	ident, ok, err := s.Active(userID)
	if err != nil {
		utils.LedgerUpdates.WithLabelValues("identity", "failed").Inc()
		return models.IdentityImpact{}, false, err
	}
	if !ok {
		utils.LedgerUpdates.WithLabelValues("identity", "skipped").Inc()
		return models.IdentityImpact{}, false, nil
	}

	healthy := food.Calories > identityHealthyMin && food.Calories < identityHealthyMax

	var impact float64
	direction := models.ImpactNegative
	if healthy {
		// [1, 3]
		impact = 1 + s.rng()*2
		direction = models.ImpactPositive
	} else {
		// [-2.5, -0.5]
		impact = -2.5 + s.rng()*2
	}

	newScore := clamp(ident.Score+impact, 0, 100)

	var applied bool
	for attempt := 0; attempt < 2 && !applied; attempt++ {
		res := s.db.Model(&models.Identity{}).
			Where("id = ? AND version = ?", ident.ID, ident.Version).
			Updates(map[string]interface{}{
				"score":   newScore,
				"version": ident.Version + 1,
			})
		if res.Error != nil {
			utils.LedgerUpdates.WithLabelValues("identity", "failed").Inc()
			return models.IdentityImpact{}, false, fmt.Errorf("update identity score: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			applied = true
			break
		}
		if ident, ok, err = s.Active(userID); err != nil || !ok {
			utils.LedgerUpdates.WithLabelValues("identity", "failed").Inc()
			return models.IdentityImpact{}, false, ErrVersionConflict
		}
		newScore = clamp(ident.Score+impact, 0, 100)
	}
	if !applied {
		utils.LedgerUpdates.WithLabelValues("identity", "failed").Inc()
		return models.IdentityImpact{}, false, ErrVersionConflict
	}

	rec := models.IdentityImpact{
		ID:         uuid.NewString(),
		UserID:     userID,
		IdentityID: ident.ID,
		FoodLogID:  food.ID,
		Impact:     impact,
		Direction:  direction,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		s.log.Error("identity_impact_write_failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	utils.LedgerUpdates.WithLabelValues("identity", "applied").Inc()
	s.log.Info("identity_scored",
		zap.Uint("user_id", userID),
		zap.Float64("impact", impact),
		zap.Float64("score", newScore),
	)
	return rec, true, nil
}

// Impacts returns impact records, newest first.
func (s *IdentityService) Impacts(userID uint, limit int) ([]models.IdentityImpact, error) {
	var recs []models.IdentityImpact
	q := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("load identity impacts: %w", err)
	}
	return recs, nil
}
