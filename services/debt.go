package services

import (
	"errors"
	"fmt"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RepayAction is a catalog entry with a fixed repay value.
type RepayAction struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Repays int    `json:"repays"`
}

var RepayActions = []RepayAction{
	{Code: "workout_30min", Label: "30 minute workout", Repays: 3},
	{Code: "ten_k_steps", Label: "Walk 10,000 steps", Repays: 2},
	{Code: "healthy_meal", Label: "Log a healthy meal", Repays: 2},
	{Code: "meditation", Label: "10 minute meditation", Repays: 1},
}

// AccrualFromOverage converts calories over the daily goal into debt points.
func AccrualFromOverage(excessCalories int) int {
	if excessCalories <= 0 {
		return 0
	}
	return excessCalories / 50
}

// DebtService maintains the per-user discipline debt account and its
// append-only transaction trail. Invariant: current == accumulated - repaid,
// never negative.
type DebtService struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDebtService(db *gorm.DB, log *zap.Logger) *DebtService {
	return &DebtService{db: db, log: log}
}

// Account returns the user's debt account, creating it lazily with a zero
// balance on first access.
func (s *DebtService) Account(userID uint) (models.DebtAccount, error) {
	var acct models.DebtAccount
	err := s.db.Where("user_id = ?", userID).First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		acct = models.DebtAccount{UserID: userID}
		if cerr := s.db.Create(&acct).Error; cerr != nil {
			// Lost a creation race; the row exists now.
			if rerr := s.db.Where("user_id = ?", userID).First(&acct).Error; rerr != nil {
				return acct, fmt.Errorf("create debt account: %w", cerr)
			}
		}
		return acct, nil
	}
	if err != nil {
		return acct, fmt.Errorf("load debt account: %w", err)
	}
	return acct, nil
}

// Accrue adds debt and appends an accrual transaction.
func (s *DebtService) Accrue(userID uint, amount int, reason string) (models.DebtAccount, error) {
	if amount <= 0 {
		return models.DebtAccount{}, fmt.Errorf("accrual amount must be positive, got %d", amount)
	}

	acct, err := s.apply(userID, func(a models.DebtAccount) models.DebtAccount {
		a.Current += amount
		a.Accumulated += amount
		return a
	})
	if err != nil {
		utils.LedgerUpdates.WithLabelValues("debt", "failed").Inc()
		return acct, err
	}

	tx := models.DebtTransaction{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   models.DebtAccrued,
		Amount: amount,
		Reason: reason,
	}
	if err := s.db.Create(&tx).Error; err != nil {
		s.log.Error("debt_transaction_write_failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	utils.LedgerUpdates.WithLabelValues("debt", "applied").Inc()
	s.log.Info("debt_accrued",
		zap.Uint("user_id", userID),
		zap.Int("amount", amount),
		zap.String("reason", reason),
	)
	return acct, nil
}

// Repay pays down debt by a catalog action's fixed value, clamped so the
// balance never goes negative. Repaying a zero-debt account is a no-op.
func (s *DebtService) Repay(userID uint, actionCode string) (models.DebtAccount, int, error) {
	var action *RepayAction
	for i := range RepayActions {
		if RepayActions[i].Code == actionCode {
			action = &RepayActions[i]
			break
		}
	}
	if action == nil {
		return models.DebtAccount{}, 0, fmt.Errorf("unknown repay action %q", actionCode)
	}

	acct, err := s.Account(userID)
	if err != nil {
		return acct, 0, err
	}
	if acct.Current == 0 {
		utils.LedgerUpdates.WithLabelValues("debt", "skipped").Inc()
		return acct, 0, nil
	}

	repaid := 0
	acct, err = s.apply(userID, func(a models.DebtAccount) models.DebtAccount {
		repaid = min(action.Repays, a.Current)
		a.Current -= repaid
		a.Repaid += repaid
		return a
	})
	if err != nil {
		utils.LedgerUpdates.WithLabelValues("debt", "failed").Inc()
		return acct, 0, err
	}
	if repaid == 0 {
		return acct, 0, nil
	}

	tx := models.DebtTransaction{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   models.DebtRepaid,
		Amount: repaid,
		Reason: action.Label,
	}
	if err := s.db.Create(&tx).Error; err != nil {
		s.log.Error("debt_transaction_write_failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	utils.LedgerUpdates.WithLabelValues("debt", "applied").Inc()
	return acct, repaid, nil
}

// Transactions returns the audit trail, newest first.
func (s *DebtService) Transactions(userID uint, limit int) ([]models.DebtTransaction, error) {
	var txs []models.DebtTransaction
	q := s.db.Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("load debt transactions: %w", err)
	}
	return txs, nil
}

// apply mutates the account through a compare-and-swap on the version
// column, retrying once on conflict.
func (s *DebtService) apply(userID uint, mutate func(models.DebtAccount) models.DebtAccount) (models.DebtAccount, error) {
	for attempt := 0; attempt < 2; attempt++ {
		acct, err := s.Account(userID)
		if err != nil {
			return acct, err
		}

		next := mutate(acct)
		res := s.db.Model(&models.DebtAccount{}).
			Where("user_id = ? AND version = ?", userID, acct.Version).
			Updates(map[string]interface{}{
				"current":     next.Current,
				"accumulated": next.Accumulated,
				"repaid":      next.Repaid,
				"version":     acct.Version + 1,
			})
		if res.Error != nil {
			return acct, fmt.Errorf("update debt account: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			next.Version = acct.Version + 1
			return next, nil
		}
		s.log.Warn("debt_version_conflict", zap.Uint("user_id", userID), zap.Int("attempt", attempt))
	}
	return models.DebtAccount{}, ErrVersionConflict
}
