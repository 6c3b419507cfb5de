package services

import (
	"math/rand"
	"testing"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityNoActiveIdentityIsNoOp(t *testing.T) {
	db := openTestDB(t)
	svc := NewIdentityService(db, testLogger())

	_, applied, err := svc.OnFoodLogged(1, models.FoodLog{ID: "f1", Name: "salad", Calories: 400})
	require.NoError(t, err)
	assert.False(t, applied)

	var count int64
	require.NoError(t, db.Model(&models.IdentityImpact{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIdentityActivateSwitchesActiveRow(t *testing.T) {
	db := openTestDB(t)
	svc := NewIdentityService(db, testLogger())
	userID := uint(2)

	first, err := svc.Activate(userID, "Athlete")
	require.NoError(t, err)
	assert.True(t, first.Active)
	assert.Equal(t, 50.0, first.Score)

	second, err := svc.Activate(userID, "Mindful Eater")
	require.NoError(t, err)
	assert.True(t, second.Active)

	active, ok, err := svc.Active(userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, active.ID)

	var actives int64
	require.NoError(t, db.Model(&models.Identity{}).
		Where("user_id = ? AND active = ?", userID, true).Count(&actives).Error)
	assert.Equal(t, int64(1), actives)
}

func TestIdentityHealthyDrawIsPositive(t *testing.T) {
	db := openTestDB(t)
	svc := NewIdentityService(db, testLogger()).WithRand(rand.New(rand.NewSource(42)))
	userID := uint(3)

	_, err := svc.Activate(userID, "Athlete")
	require.NoError(t, err)

	rec, applied, err := svc.OnFoodLogged(userID, models.FoodLog{ID: "f2", Name: "chicken bowl", Calories: 450})
	require.NoError(t, err)
	require.True(t, applied)

	assert.Equal(t, models.ImpactPositive, rec.Direction)
	assert.GreaterOrEqual(t, rec.Impact, 1.0)
	assert.LessOrEqual(t, rec.Impact, 3.0)

	active, _, err := svc.Active(userID)
	require.NoError(t, err)
	assert.InDelta(t, 50+rec.Impact, active.Score, 1e-9)
}

func TestIdentityUnhealthyDrawIsNegative(t *testing.T) {
	db := openTestDB(t)
	svc := NewIdentityService(db, testLogger()).WithRand(rand.New(rand.NewSource(7)))
	userID := uint(4)

	_, err := svc.Activate(userID, "Athlete")
	require.NoError(t, err)

	// 700 kcal is outside (200, 600): scored as unhealthy.
	rec, applied, err := svc.OnFoodLogged(userID, models.FoodLog{ID: "f3", Name: "burger", Calories: 700})
	require.NoError(t, err)
	require.True(t, applied)

	assert.Equal(t, models.ImpactNegative, rec.Direction)
	assert.GreaterOrEqual(t, rec.Impact, -2.5)
	assert.LessOrEqual(t, rec.Impact, -0.5)
}

func TestIdentityScoreClampedToHundred(t *testing.T) {
	db := openTestDB(t)
	svc := NewIdentityService(db, testLogger()).WithRand(rand.New(rand.NewSource(1)))
	userID := uint(5)

	ident, err := svc.Activate(userID, "Athlete")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Identity{}).Where("id = ?", ident.ID).
		Update("score", 99.5).Error)

	_, applied, err := svc.OnFoodLogged(userID, models.FoodLog{ID: "f4", Name: "lunch bowl", Calories: 400})
	require.NoError(t, err)
	require.True(t, applied)

	active, _, err := svc.Active(userID)
	require.NoError(t, err)
	assert.LessOrEqual(t, active.Score, 100.0)
	assert.Equal(t, 100.0, active.Score)
}

func TestIdentityScoreClampedToZero(t *testing.T) {
	db := openTestDB(t)
	svc := NewIdentityService(db, testLogger()).WithRand(rand.New(rand.NewSource(1)))
	userID := uint(6)

	ident, err := svc.Activate(userID, "Athlete")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Identity{}).Where("id = ?", ident.ID).
		Update("score", 0.2).Error)

	_, applied, err := svc.OnFoodLogged(userID, models.FoodLog{ID: "f5", Name: "giant burrito", Calories: 1200})
	require.NoError(t, err)
	require.True(t, applied)

	active, _, err := svc.Active(userID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, active.Score, 0.0)
	assert.Equal(t, 0.0, active.Score)
}
