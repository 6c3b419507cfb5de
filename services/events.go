package services

import (
	"fmt"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Calories count as on-target when the day total lands within this band of
// the user's goal.
const (
	calorieBandLow  = 0.8
	calorieBandHigh = 1.2
)

// Ledger owns the behavioral updaters and runs them, in program order, after
// each nutrition event. Updater failures never reach the caller: they are
// logged and the state is left unchanged for the next event to retry.
type Ledger struct {
	db       *gorm.DB
	log      *zap.Logger
	Habits   *HabitSync
	Debt     *DebtService
	Parasite *ParasiteService
	Identity *IdentityService
	Streak   *StreakService
	Insights *InsightService
}

func NewLedger(db *gorm.DB, kv KV, log *zap.Logger) *Ledger {
	return &Ledger{
		db:       db,
		log:      log,
		Habits:   NewHabitSync(db, kv, log),
		Debt:     NewDebtService(db, log),
		Parasite: NewParasiteService(db, log),
		Identity: NewIdentityService(db, log),
		Streak:   NewStreakService(db, log),
		Insights: NewInsightService(db),
	}
}

// LogFood appends a nutrition event and dispatches the derived-state
// updaters. Only the insert itself can fail the call.
func (l *Ledger) LogFood(user models.User, food models.FoodLog) (models.FoodLog, error) {
	food.ID = uuid.NewString()
	food.UserID = user.ID
	if food.MealType == "" {
		food.MealType = models.MealSnack
	}
	// Timestamps are stored in UTC so the day windows in DayCalories line
	// up with the date labels from dateOf on every store tier.
	if food.CreatedAt.IsZero() {
		food.CreatedAt = time.Now().UTC()
	} else {
		food.CreatedAt = food.CreatedAt.UTC()
	}
	if err := l.db.Create(&food).Error; err != nil {
		return food, fmt.Errorf("create food log: %w", err)
	}

	l.DispatchFood(user, food)
	return food, nil
}

// DispatchFood runs the parasite, identity, debt and streak updaters for one
// already-persisted nutrition event.
func (l *Ledger) DispatchFood(user models.User, food models.FoodLog) {
	if _, err := l.Parasite.OnFoodLogged(user.ID, food); err != nil {
		l.log.Error("parasite_update_failed", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	if _, _, err := l.Identity.OnFoodLogged(user.ID, food); err != nil {
		l.log.Error("identity_update_failed", zap.Uint("user_id", user.ID), zap.Error(err))
	}

	date := l.dateOf(food)
	l.accrueOverage(user, food, date)
	l.EvaluateStreakDay(user, date)
}

// accrueOverage converts the day's calories over goal into debt,
// incrementally: only the points added by this event are accrued, so a day
// of grazing does not double-charge.
func (l *Ledger) accrueOverage(user models.User, food models.FoodLog, date string) {
	goal := user.CalorieGoal
	if goal <= 0 {
		goal = 2000
	}

	total, err := l.DayCalories(user.ID, date)
	if err != nil {
		l.log.Error("debt_overage_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return
	}
	prevTotal := total - food.Calories

	amount := AccrualFromOverage(total-goal) - AccrualFromOverage(prevTotal-goal)
	if amount <= 0 {
		return
	}

	reason := fmt.Sprintf("Exceeded daily calorie goal by %d kcal", total-goal)
	if _, err := l.Debt.Accrue(user.ID, amount, reason); err != nil {
		l.log.Error("debt_accrue_failed", zap.Uint("user_id", user.ID), zap.Error(err))
	}
}

// EvaluateStreakDay checks both streak qualifications for date and records
// the day. Called after habit toggles and nutrition events; the streak
// service guarantees at-most-once extension per day.
func (l *Ledger) EvaluateStreakDay(user models.User, date string) {
	goal := user.CalorieGoal
	if goal <= 0 {
		goal = 2000
	}

	total, err := l.DayCalories(user.ID, date)
	if err != nil {
		l.log.Error("streak_eval_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		return
	}

	onTarget := float64(total) >= calorieBandLow*float64(goal) &&
		float64(total) <= calorieBandHigh*float64(goal)
	habitsDone := l.Habits.AllCompleted(user.ID, date)

	if _, err := l.Streak.RecordDay(user.ID, date, habitsDone, onTarget); err != nil {
		l.log.Error("streak_record_failed", zap.Uint("user_id", user.ID), zap.Error(err))
	}
}

// DayCalories sums the calories logged on one calendar date. Days run
// midnight to midnight UTC, the same zone dateOf labels events with.
func (l *Ledger) DayCalories(userID uint, date string) (int, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("bad date %q: %w", date, err)
	}
	next := day.AddDate(0, 0, 1)

	var total int64
	err = l.db.Model(&models.FoodLog{}).
		Select("COALESCE(SUM(calories), 0)").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, day, next).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum day calories: %w", err)
	}
	return int(total), nil
}

// BackfillFoodName sets the display name on an existing event. The only
// mutation food logs allow after creation.
func (l *Ledger) BackfillFoodName(userID uint, foodLogID, name string) error {
	res := l.db.Model(&models.FoodLog{}).
		Where("id = ? AND user_id = ?", foodLogID, userID).
		Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("backfill food name: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// dateOf labels an event with its UTC calendar date, matching the UTC
// windows DayCalories sums over.
func (l *Ledger) dateOf(food models.FoodLog) string {
	ts := food.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return ts.UTC().Format(models.DateLayout)
}

// Snapshot is the presentation-boundary view of all derived state.
type Snapshot struct {
	Debt     models.DebtAccount   `json:"debt"`
	Parasite models.ParasiteState `json:"parasite"`
	Identity *models.Identity     `json:"identity,omitempty"`
	Streak   models.StreakState   `json:"streak"`
}

// LedgerSnapshot assembles the current ledger for one user, lazily creating
// the singleton rows on first access.
func (l *Ledger) LedgerSnapshot(userID uint) (Snapshot, error) {
	var snap Snapshot
	var err error

	if snap.Debt, err = l.Debt.Account(userID); err != nil {
		return snap, err
	}
	if snap.Parasite, err = l.Parasite.State(userID); err != nil {
		return snap, err
	}
	if snap.Streak, err = l.Streak.State(userID); err != nil {
		return snap, err
	}
	if ident, ok, ierr := l.Identity.Active(userID); ierr != nil {
		return snap, ierr
	} else if ok {
		snap.Identity = &ident
	}
	return snap, nil
}
