package services

import (
	"fmt"
	"math"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"gorm.io/gorm"
)

const (
	WindowDay   = "day"
	WindowWeek  = "week"
	WindowMonth = "month"
)

// Shadow days are days that stayed inside this calorie range.
const (
	shadowDayMinCalories = 1500
	shadowDayMaxCalories = 2500
)

// Bucket aggregates nutrition events sharing one bucket key.
type Bucket struct {
	Key         string  `json:"key"`
	Entries     int     `json:"entries"`
	Calories    int     `json:"calories"`
	Protein     float64 `json:"protein"`
	Carbs       float64 `json:"carbs"`
	Fat         float64 `json:"fat"`
	AvgCalories float64 `json:"avg_calories"`
}

// Summary is the presentation-ready aggregate for one window.
type Summary struct {
	Window            string   `json:"window"`
	Buckets           []Bucket `json:"buckets"`
	AvgCalories       float64  `json:"avg_calories"`
	Consistency       float64  `json:"consistency"`
	Trend             string   `json:"trend"`
	ShadowDaysAvoided int      `json:"shadow_days_avoided"`
	IdentityStreak    int      `json:"identity_streak"`
}

// InsightService is the read side: pure functions of stored data, no
// mutation.
type InsightService struct {
	db *gorm.DB
}

func NewInsightService(db *gorm.DB) *InsightService {
	return &InsightService{db: db}
}

// Summarize groups the user's nutrition events into window buckets and
// derives the consistency score, trend label, shadow-day count and identity
// streak.
func (s *InsightService) Summarize(userID uint, window string) (Summary, error) {
	lookback, err := windowLookback(window)
	if err != nil {
		return Summary{}, err
	}
	cutoff := time.Now().UTC().Add(-lookback)

	var events []models.FoodLog
	if err := s.db.Where("user_id = ? AND created_at >= ?", userID, cutoff).
		Order("created_at ASC").Find(&events).Error; err != nil {
		return Summary{}, fmt.Errorf("load nutrition events: %w", err)
	}

	buckets := bucketize(events, window)

	sum := Summary{
		Window:      window,
		Buckets:     buckets,
		Consistency: consistencyScore(buckets),
		Trend:       trendLabel(buckets),
	}

	totalCal := 0
	for _, b := range buckets {
		totalCal += b.Calories
	}
	if len(buckets) > 0 {
		sum.AvgCalories = float64(totalCal) / float64(len(buckets))
	}

	if sum.ShadowDaysAvoided, err = s.shadowDaysAvoided(userID); err != nil {
		return sum, err
	}
	if sum.IdentityStreak, err = s.identityStreak(userID); err != nil {
		return sum, err
	}
	return sum, nil
}

func windowLookback(window string) (time.Duration, error) {
	switch window {
	case WindowDay:
		return 14 * 24 * time.Hour, nil
	case WindowWeek:
		return 12 * 7 * 24 * time.Hour, nil
	case WindowMonth:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown window %q", window)
	}
}

// bucketKey maps a timestamp to its bucket: the day string, the ISO
// week-start date, or the year-month. Buckets follow UTC days, matching
// how event timestamps are stored.
func bucketKey(ts time.Time, window string) string {
	ts = ts.UTC()
	switch window {
	case WindowWeek:
		// Monday of the ISO week.
		offset := (int(ts.Weekday()) + 6) % 7
		return ts.AddDate(0, 0, -offset).Format(models.DateLayout)
	case WindowMonth:
		return ts.Format("2006-01")
	default:
		return ts.Format(models.DateLayout)
	}
}

// bucketize preserves chronological bucket order (events arrive ordered).
func bucketize(events []models.FoodLog, window string) []Bucket {
	index := make(map[string]int)
	var buckets []Bucket

	for _, ev := range events {
		key := bucketKey(ev.CreatedAt, window)
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{Key: key})
		}
		buckets[i].Entries++
		buckets[i].Calories += ev.Calories
		buckets[i].Protein += ev.Protein
		buckets[i].Carbs += ev.Carbs
		buckets[i].Fat += ev.Fat
	}

	for i := range buckets {
		buckets[i].AvgCalories = float64(buckets[i].Calories) / float64(buckets[i].Entries)
	}
	return buckets
}

// consistencyScore = max(0, 100 - stdev(bucket avg calories)/10).
func consistencyScore(buckets []Bucket) float64 {
	if len(buckets) == 0 {
		return 0
	}

	mean := 0.0
	for _, b := range buckets {
		mean += b.AvgCalories
	}
	mean /= float64(len(buckets))

	variance := 0.0
	for _, b := range buckets {
		d := b.AvgCalories - mean
		variance += d * d
	}
	variance /= float64(len(buckets))

	score := 100 - math.Sqrt(variance)/10
	if score < 0 {
		return 0
	}
	return score
}

// trendLabel compares the mean of the first half of buckets against the
// second half with a 10% dead-band.
func trendLabel(buckets []Bucket) string {
	if len(buckets) < 2 {
		return "stable"
	}

	half := len(buckets) / 2
	first, second := 0.0, 0.0
	for i, b := range buckets {
		if i < half {
			first += b.AvgCalories
		} else {
			second += b.AvgCalories
		}
	}
	first /= float64(half)
	second /= float64(len(buckets) - half)

	if first == 0 {
		return "stable"
	}
	change := (second - first) / first
	switch {
	case change > 0.10:
		return "increasing"
	case change < -0.10:
		return "decreasing"
	default:
		return "stable"
	}
}

// shadowDaysAvoided counts days in the last 7 whose calorie total landed
// inside the shadow band.
func (s *InsightService) shadowDaysAvoided(userID uint) (int, error) {
	since := time.Now().UTC().AddDate(0, 0, -7)

	var events []models.FoodLog
	if err := s.db.Where("user_id = ? AND created_at >= ?", userID, since).
		Find(&events).Error; err != nil {
		return 0, fmt.Errorf("load shadow-day events: %w", err)
	}

	totals := make(map[string]int)
	for _, ev := range events {
		totals[ev.CreatedAt.UTC().Format(models.DateLayout)] += ev.Calories
	}

	count := 0
	for _, total := range totals {
		if total >= shadowDayMinCalories && total <= shadowDayMaxCalories {
			count++
		}
	}
	return count, nil
}

// identityStreak is the run-length of positive impacts from the head of the
// reverse-chronological impact list.
func (s *InsightService) identityStreak(userID uint) (int, error) {
	var impacts []models.IdentityImpact
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").Limit(200).Find(&impacts).Error; err != nil {
		return 0, fmt.Errorf("load identity impacts: %w", err)
	}

	streak := 0
	for _, im := range impacts {
		if im.Direction != models.ImpactPositive {
			break
		}
		streak++
	}
	return streak, nil
}
