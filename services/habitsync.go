package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KV is the local cache tier: exact-key get/set over JSON values, no
// queries, no transactions. Redis in production, an in-memory map in tests.
type KV interface {
	Get(key string, dest interface{}) error
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
}

func keyHabitDefs(userID uint) string       { return fmt.Sprintf("habits:defs:%d", userID) }
func keyHabitLogs(userID uint) string       { return fmt.Sprintf("habits:logs:%d", userID) }
func keyHabitPromotions(userID uint) string { return fmt.Sprintf("habits:promoted:%d", userID) }

// CachedHabitLog is the cache-tier representation of a completion flag,
// independent of the durable schema.
type CachedHabitLog struct {
	HabitID   string `json:"habit_id"`
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

// builtinHabits are seeded client-side and live only in the cache snapshot
// until the first toggle promotes them into durable rows.
var builtinHabits = []models.Habit{
	{ID: models.BuiltinPrefix + "workout", Name: "Workout", Icon: "dumbbell", Color: "#22c55e"},
	{ID: models.BuiltinPrefix + "hydration", Name: "Drink 2L Water", Icon: "droplet", Color: "#3b82f6"},
	{ID: models.BuiltinPrefix + "sleep", Name: "Sleep 8 Hours", Icon: "moon", Color: "#8b5cf6"},
	{ID: models.BuiltinPrefix + "no-sugar", Name: "No Added Sugar", Icon: "candy", Color: "#ef4444"},
}

// HabitSync reconciles habit completion state between the durable store and
// the local cache. Callers never observe which tier served a read; on any
// store failure the operation degrades to a cache-only representation.
type HabitSync struct {
	db  *gorm.DB
	kv  KV
	log *zap.Logger
}

func NewHabitSync(db *gorm.DB, kv KV, log *zap.Logger) *HabitSync {
	return &HabitSync{db: db, kv: kv, log: log}
}

// ListHabits reads the durable store, merging in seeded definitions that
// have not been promoted yet. On store failure the last cached snapshot is
// returned. Successful results are written back to the cache.
func (s *HabitSync) ListHabits(userID uint) []models.Habit {
	var rows []models.Habit
	if err := s.db.Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		s.log.Warn("habit_list_store_failed", zap.Uint("user_id", userID), zap.Error(err))
		utils.CacheFallbacks.WithLabelValues("list").Inc()
		cached := s.cachedDefs(userID)
		if len(cached) == 0 {
			cached = s.seedBuiltins(userID)
		}
		return cached
	}

	for _, h := range s.cachedDefs(userID) {
		if strings.HasPrefix(h.ID, models.BuiltinPrefix) {
			rows = append(rows, h)
		}
	}
	if len(rows) == 0 {
		rows = s.seedBuiltins(userID)
	}

	if err := s.kv.Set(keyHabitDefs(userID), rows, 0); err != nil {
		s.log.Warn("habit_snapshot_write_failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return rows
}

// CreateHabit inserts a user-defined habit into the durable store and
// refreshes the cache snapshot.
func (s *HabitSync) CreateHabit(userID uint, name, icon, color string) (models.Habit, error) {
	h := models.Habit{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		Icon:   icon,
		Color:  color,
	}
	if err := s.db.Create(&h).Error; err != nil {
		return models.Habit{}, fmt.Errorf("create habit: %w", err)
	}
	s.ListHabits(userID)
	return h, nil
}

// ToggleHabit flips the completion flag for (user, habit, date). A seeded
// habit id is promoted to a durable row exactly once before the first log is
// written. Any store failure falls back to the cache-only log triples.
// Returns the resolved habit id and the new completion state.
func (s *HabitSync) ToggleHabit(userID uint, habitID, date string) (string, bool, error) {
	resolved := habitID
	if strings.HasPrefix(habitID, models.BuiltinPrefix) {
		id, err := s.promote(userID, habitID)
		if err != nil {
			s.log.Warn("habit_promotion_failed", zap.String("habit_id", habitID), zap.Error(err))
			utils.CacheFallbacks.WithLabelValues("toggle").Inc()
			return s.toggleInCache(userID, habitID, date)
		}
		resolved = id
	}

	var lg models.HabitLog
	err := s.db.Where("user_id = ? AND habit_id = ? AND date = ?", userID, resolved, date).
		First(&lg).Error
	switch {
	case err == nil:
		newVal := !lg.Completed
		if uerr := s.db.Model(&models.HabitLog{}).Where("id = ?", lg.ID).
			Update("completed", newVal).Error; uerr != nil {
			utils.CacheFallbacks.WithLabelValues("toggle").Inc()
			return s.toggleInCache(userID, resolved, date)
		}
		s.mirrorLog(userID, resolved, date, newVal)
		return resolved, newVal, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		if cerr := s.insertLog(userID, resolved, date); cerr != nil {
			s.log.Warn("habit_log_upsert_failed", zap.String("habit_id", resolved), zap.Error(cerr))
			utils.CacheFallbacks.WithLabelValues("toggle").Inc()
			return s.toggleInCache(userID, resolved, date)
		}
		s.mirrorLog(userID, resolved, date, true)
		return resolved, true, nil

	default:
		utils.CacheFallbacks.WithLabelValues("toggle").Inc()
		return s.toggleInCache(userID, resolved, date)
	}
}

// insertLog writes the first completion log for (user, habit, date) with
// completed=true. A concurrent session may have inserted the same triple
// between the caller's lookup and this write; the composite unique index
// rejects the duplicate and one upsert retry converges on the existing row.
func (s *HabitSync) insertLog(userID uint, habitID, date string) error {
	lg := models.HabitLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		HabitID:   habitID,
		Date:      date,
		Completed: true,
	}
	if err := s.db.Create(&lg).Error; err == nil {
		return nil
	}

	lg.ID = uuid.NewString()
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "habit_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"completed": true,
		}),
	}).Create(&lg).Error
	if err != nil {
		return fmt.Errorf("upsert habit log: %w", err)
	}
	return nil
}

// IsCompleted answers from the durable store first and the cache second,
// defaulting to false. The answer is identical regardless of which tier the
// underlying write landed in.
func (s *HabitSync) IsCompleted(userID uint, habitID, date string) bool {
	resolved := habitID
	if strings.HasPrefix(habitID, models.BuiltinPrefix) {
		if id, ok := s.promotions(userID)[habitID]; ok {
			resolved = id
		}
	}

	var lg models.HabitLog
	err := s.db.Where("user_id = ? AND habit_id = ? AND date = ?", userID, resolved, date).
		First(&lg).Error
	if err == nil {
		return lg.Completed
	}

	for _, c := range s.cachedLogs(userID) {
		if (c.HabitID == resolved || c.HabitID == habitID) && c.Date == date {
			return c.Completed
		}
	}
	return false
}

// CompletionMap returns habit id -> completed for one date, merged across
// both tiers.
func (s *HabitSync) CompletionMap(userID uint, date string) map[string]bool {
	out := make(map[string]bool)

	var logs []models.HabitLog
	if err := s.db.Where("user_id = ? AND date = ?", userID, date).Find(&logs).Error; err != nil {
		utils.CacheFallbacks.WithLabelValues("completion_map").Inc()
	} else {
		for _, lg := range logs {
			out[lg.HabitID] = lg.Completed
		}
	}

	for _, c := range s.cachedLogs(userID) {
		if c.Date != date {
			continue
		}
		if _, ok := out[c.HabitID]; !ok {
			out[c.HabitID] = c.Completed
		}
	}
	return out
}

// AllCompleted reports whether the user has at least one habit and every one
// of them is completed for date. Used as the habit half of the streak
// qualification check.
func (s *HabitSync) AllCompleted(userID uint, date string) bool {
	habits := s.ListHabits(userID)
	if len(habits) == 0 {
		return false
	}
	done := s.CompletionMap(userID, date)
	for _, h := range habits {
		if !done[h.ID] {
			return false
		}
	}
	return true
}

// DeleteHabit removes the definition and its completion logs from whichever
// tiers hold them. Best effort: partial failures are logged, not rolled
// back.
func (s *HabitSync) DeleteHabit(userID uint, habitID string) error {
	// A seeded alias may already be promoted; delete the durable row it
	// resolved to, not just the cache entries.
	resolved := habitID
	if strings.HasPrefix(habitID, models.BuiltinPrefix) {
		if id, ok := s.promotions(userID)[habitID]; ok {
			resolved = id
		}
	}

	var firstErr error
	if !strings.HasPrefix(resolved, models.BuiltinPrefix) {
		if err := s.db.Where("user_id = ? AND habit_id = ?", userID, resolved).
			Delete(&models.HabitLog{}).Error; err != nil {
			s.log.Warn("habit_log_delete_failed", zap.String("habit_id", resolved), zap.Error(err))
			firstErr = err
		}
		if err := s.db.Where("user_id = ? AND id = ?", userID, resolved).
			Delete(&models.Habit{}).Error; err != nil {
			s.log.Warn("habit_delete_failed", zap.String("habit_id", resolved), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	defs := s.cachedDefs(userID)
	kept := defs[:0]
	for _, d := range defs {
		if d.ID != habitID && d.ID != resolved {
			kept = append(kept, d)
		}
	}
	s.kv.Set(keyHabitDefs(userID), kept, 0)

	logs := s.cachedLogs(userID)
	keptLogs := logs[:0]
	for _, c := range logs {
		if c.HabitID != habitID && c.HabitID != resolved {
			keptLogs = append(keptLogs, c)
		}
	}
	s.kv.Set(keyHabitLogs(userID), keptLogs, 0)

	mapping := s.promotions(userID)
	for seeded, durable := range mapping {
		if seeded == habitID || durable == habitID || durable == resolved {
			delete(mapping, seeded)
		}
	}
	s.kv.Set(keyHabitPromotions(userID), mapping, 0)

	return firstErr
}

// promote creates a durable definition for a seeded habit id. The promotion
// map in the cache makes this exactly-once: a second toggle with the seeded
// id resolves to the already-created durable row.
func (s *HabitSync) promote(userID uint, seededID string) (string, error) {
	mapping := s.promotions(userID)
	if id, ok := mapping[seededID]; ok {
		return id, nil
	}

	def, ok := s.seededDef(userID, seededID)
	if !ok {
		return "", fmt.Errorf("unknown seeded habit %q", seededID)
	}

	durable := models.Habit{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   def.Name,
		Icon:   def.Icon,
		Color:  def.Color,
	}
	if err := s.db.Create(&durable).Error; err != nil {
		return "", fmt.Errorf("promote habit: %w", err)
	}

	mapping[seededID] = durable.ID
	s.kv.Set(keyHabitPromotions(userID), mapping, 0)
	s.rewriteCachedID(userID, seededID, durable.ID)

	s.log.Info("habit_promoted",
		zap.Uint("user_id", userID),
		zap.String("seeded_id", seededID),
		zap.String("durable_id", durable.ID),
	)
	return durable.ID, nil
}

func (s *HabitSync) seededDef(userID uint, seededID string) (models.Habit, bool) {
	for _, h := range s.cachedDefs(userID) {
		if h.ID == seededID {
			return h, true
		}
	}
	for _, h := range builtinHabits {
		if h.ID == seededID {
			return h, true
		}
	}
	return models.Habit{}, false
}

// rewriteCachedID rewrites every cache reference from a seeded id to its new
// durable id.
func (s *HabitSync) rewriteCachedID(userID uint, oldID, newID string) {
	defs := s.cachedDefs(userID)
	for i := range defs {
		if defs[i].ID == oldID {
			defs[i].ID = newID
			defs[i].UserID = userID
		}
	}
	s.kv.Set(keyHabitDefs(userID), defs, 0)

	logs := s.cachedLogs(userID)
	for i := range logs {
		if logs[i].HabitID == oldID {
			logs[i].HabitID = newID
		}
	}
	s.kv.Set(keyHabitLogs(userID), logs, 0)
}

func (s *HabitSync) toggleInCache(userID uint, habitID, date string) (string, bool, error) {
	logs := s.cachedLogs(userID)
	for i := range logs {
		if logs[i].HabitID == habitID && logs[i].Date == date {
			logs[i].Completed = !logs[i].Completed
			if err := s.kv.Set(keyHabitLogs(userID), logs, 0); err != nil {
				return habitID, false, fmt.Errorf("cache toggle: %w", err)
			}
			return habitID, logs[i].Completed, nil
		}
	}

	logs = append(logs, CachedHabitLog{HabitID: habitID, Date: date, Completed: true})
	if err := s.kv.Set(keyHabitLogs(userID), logs, 0); err != nil {
		return habitID, false, fmt.Errorf("cache toggle: %w", err)
	}
	return habitID, true, nil
}

// mirrorLog opportunistically reconciles the cache tier after a successful
// durable write.
func (s *HabitSync) mirrorLog(userID uint, habitID, date string, completed bool) {
	logs := s.cachedLogs(userID)
	for i := range logs {
		if logs[i].HabitID == habitID && logs[i].Date == date {
			logs[i].Completed = completed
			s.kv.Set(keyHabitLogs(userID), logs, 0)
			return
		}
	}
	logs = append(logs, CachedHabitLog{HabitID: habitID, Date: date, Completed: completed})
	s.kv.Set(keyHabitLogs(userID), logs, 0)
}

func (s *HabitSync) seedBuiltins(userID uint) []models.Habit {
	seeded := make([]models.Habit, len(builtinHabits))
	copy(seeded, builtinHabits)
	for i := range seeded {
		seeded[i].UserID = userID
	}
	if err := s.kv.Set(keyHabitDefs(userID), seeded, 0); err != nil {
		s.log.Warn("habit_seed_write_failed", zap.Uint("user_id", userID), zap.Error(err))
	}
	return seeded
}

func (s *HabitSync) cachedDefs(userID uint) []models.Habit {
	var defs []models.Habit
	if err := s.kv.Get(keyHabitDefs(userID), &defs); err != nil {
		return nil
	}
	return defs
}

func (s *HabitSync) cachedLogs(userID uint) []CachedHabitLog {
	var logs []CachedHabitLog
	if err := s.kv.Get(keyHabitLogs(userID), &logs); err != nil {
		return nil
	}
	return logs
}

func (s *HabitSync) promotions(userID uint) map[string]string {
	mapping := make(map[string]string)
	s.kv.Get(keyHabitPromotions(userID), &mapping)
	if mapping == nil {
		mapping = make(map[string]string)
	}
	return mapping
}
