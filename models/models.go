package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DateLayout is the day-granular key used everywhere a calendar date is
// stored. No time component, no timezone.
const DateLayout = "2006-01-02"

// BuiltinPrefix marks habit ids seeded client-side before any durable row
// exists. A builtin id is promoted to a UUID-backed row on first toggle.
const BuiltinPrefix = "builtin-"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique" json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `gorm:"default:user" json:"role"`
	CalorieGoal  int       `gorm:"default:2000" json:"calorie_goal"`
	Picture      string    `gorm:"default:'/uploads/default.png'" json:"picture"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Habit struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// HabitLog holds one completion flag per (user, habit, date). The composite
// unique index makes concurrent first-toggle inserts conflict instead of
// silently producing duplicates.
type HabitLog struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index;uniqueIndex:idx_habit_log_day" json:"user_id"`
	HabitID   string    `gorm:"uniqueIndex:idx_habit_log_day" json:"habit_id"`
	Date      string    `gorm:"uniqueIndex:idx_habit_log_day" json:"date"`
	Completed bool      `gorm:"default:false" json:"completed"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	MealBreakfast = "breakfast"
	MealLunch     = "lunch"
	MealDinner    = "dinner"
	MealSnack     = "snack"
)

// FoodLog is append-only; only Name may be backfilled after creation.
type FoodLog struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Name      string    `json:"name"`
	MealType  string    `json:"meal_type"`
	Calories  int       `json:"calories"`
	Protein   float64   `json:"protein"`
	Carbs     float64   `json:"carbs"`
	Fat       float64   `json:"fat"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// DebtAccount is a per-user singleton. Current must always equal
// Accumulated - Repaid and never go below zero. Version backs the
// compare-and-swap updates in the debt service.
type DebtAccount struct {
	UserID      uint      `gorm:"primaryKey" json:"user_id"`
	Current     int       `json:"current"`
	Accumulated int       `json:"accumulated"`
	Repaid      int       `json:"repaid"`
	Version     int       `json:"-"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	DebtAccrued = "accrued"
	DebtRepaid  = "repaid"
)

type DebtTransaction struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Kind      string    `json:"kind"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ParasiteState health only grows under this subsystem; decay is not
// implemented.
type ParasiteState struct {
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	Health    int       `json:"health"`
	Version   int       `json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type ParasiteEvent struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	FoodName  string    `json:"food_name"`
	Growth    int       `json:"growth"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Identity: at most one active row per user at a time.
type Identity struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Name      string    `json:"name"`
	Active    bool      `gorm:"default:false" json:"active"`
	Score     float64   `gorm:"default:50" json:"score"`
	Version   int       `json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	ImpactPositive = "positive"
	ImpactNegative = "negative"
)

type IdentityImpact struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index" json:"user_id"`
	IdentityID string    `json:"identity_id"`
	FoodLogID  string    `json:"food_log_id"`
	Impact     float64   `json:"impact"`
	Direction  string    `json:"direction"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type StreakState struct {
	UserID      uint      `gorm:"primaryKey" json:"user_id"`
	Current     int       `json:"current_streak"`
	Longest     int       `json:"longest_streak"`
	PlantStage  int       `gorm:"default:1" json:"plant_stage"`
	PlantsGrown int       `json:"plants_grown"`
	Version     int       `json:"-"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type StreakDayLog struct {
	ID               string    `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"index;uniqueIndex:idx_streak_day" json:"user_id"`
	Date             string    `gorm:"uniqueIndex:idx_streak_day" json:"date"`
	HabitsCompleted  bool      `json:"habits_completed"`
	CaloriesOnTarget bool      `json:"calories_on_target"`
	StreakMaintained bool      `json:"streak_maintained"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}
