package services

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "nutriapp_test.db")
	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        dbPath,
	}, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := db.AutoMigrate(
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
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// breakDB closes the underlying connection so every subsequent store call
// errors, simulating an unreachable durable store.
func breakDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}
}

// memKV is the in-memory stand-in for the Redis tier.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return fmt.Errorf("cache miss: %s", key)
	}
	return json.Unmarshal(raw, dest)
}

func (m *memKV) Set(key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func testLogger() *zap.Logger { return zap.NewNop() }

func day(offset int) string {
	return time.Now().UTC().AddDate(0, 0, offset).Format(models.DateLayout)
}
