package services

import (
	"testing"

	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebtAccountLazyCreation(t *testing.T) {
	svc := NewDebtService(openTestDB(t), testLogger())

	acct, err := svc.Account(7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), acct.UserID)
	assert.Equal(t, 0, acct.Current)
	assert.Equal(t, 0, acct.Accumulated)
	assert.Equal(t, 0, acct.Repaid)
}

func TestDebtInvariantAfterMixedOperations(t *testing.T) {
	db := openTestDB(t)
	svc := NewDebtService(db, testLogger())
	userID := uint(1)

	_, err := svc.Accrue(userID, 10, "Exceeded daily calorie goal by 500 kcal")
	require.NoError(t, err)
	_, _, err = svc.Repay(userID, "workout_30min")
	require.NoError(t, err)
	_, err = svc.Accrue(userID, 4, "Exceeded daily calorie goal by 200 kcal")
	require.NoError(t, err)
	_, repaid, err := svc.Repay(userID, "meditation")
	require.NoError(t, err)
	assert.Equal(t, 1, repaid)

	acct, err := svc.Account(userID)
	require.NoError(t, err)
	assert.Equal(t, acct.Accumulated-acct.Repaid, acct.Current)
	assert.GreaterOrEqual(t, acct.Current, 0)
	assert.Equal(t, 14, acct.Accumulated)
	assert.Equal(t, 4, acct.Repaid)
	assert.Equal(t, 10, acct.Current)

	// The audit trail must balance against the account.
	txs, err := svc.Transactions(userID, 0)
	require.NoError(t, err)
	sum := 0
	for _, tx := range txs {
		switch tx.Kind {
		case models.DebtAccrued:
			sum += tx.Amount
		case models.DebtRepaid:
			sum -= tx.Amount
		}
	}
	assert.Equal(t, acct.Current, sum)
}

func TestRepayClampsAtZero(t *testing.T) {
	svc := NewDebtService(openTestDB(t), testLogger())
	userID := uint(2)

	_, err := svc.Accrue(userID, 1, "small slip")
	require.NoError(t, err)

	// Action repays 3 but only 1 is owed.
	acct, repaid, err := svc.Repay(userID, "workout_30min")
	require.NoError(t, err)
	assert.Equal(t, 1, repaid)
	assert.Equal(t, 0, acct.Current)
	assert.Equal(t, 1, acct.Repaid)
}

func TestRepayZeroDebtIsNoOp(t *testing.T) {
	svc := NewDebtService(openTestDB(t), testLogger())
	userID := uint(3)

	acct, repaid, err := svc.Repay(userID, "healthy_meal")
	require.NoError(t, err)
	assert.Equal(t, 0, repaid)
	assert.Equal(t, 0, acct.Current)

	txs, err := svc.Transactions(userID, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestRepayUnknownAction(t *testing.T) {
	svc := NewDebtService(openTestDB(t), testLogger())

	_, _, err := svc.Repay(4, "time_travel")
	assert.Error(t, err)
}

func TestAccrueRejectsNonPositiveAmount(t *testing.T) {
	svc := NewDebtService(openTestDB(t), testLogger())

	_, err := svc.Accrue(5, 0, "nothing")
	assert.Error(t, err)
	_, err = svc.Accrue(5, -3, "negative")
	assert.Error(t, err)
}

func TestAccrualFromOverage(t *testing.T) {
	cases := []struct {
		excess int
		want   int
	}{
		{-100, 0},
		{0, 0},
		{49, 0},
		{50, 1},
		{500, 10},
		{1049, 20},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, AccrualFromOverage(tc.excess), "excess=%d", tc.excess)
	}
}

// A write committed between the read and the swap bumps the version; the
// compare-and-swap misses once, re-reads, and applies on the second attempt.
func TestApplyRetriesOnceAfterVersionBump(t *testing.T) {
	db := openTestDB(t)
	s := NewDebtService(db, testLogger())

	_, err := s.Accrue(1, 5, "over goal")
	require.NoError(t, err)

	bumped := false
	acct, err := s.apply(1, func(a models.DebtAccount) models.DebtAccount {
		if !bumped {
			bumped = true
			// Another session commits before our swap lands.
			require.NoError(t, db.Model(&models.DebtAccount{}).
				Where("user_id = ?", uint(1)).
				Update("version", a.Version+1).Error)
		}
		a.Current += 2
		a.Accumulated += 2
		return a
	})
	require.NoError(t, err)
	assert.Equal(t, 7, acct.Current)
	assert.Equal(t, 7, acct.Accumulated)
}

func TestApplyGivesUpAfterRepeatedVersionConflicts(t *testing.T) {
	db := openTestDB(t)
	s := NewDebtService(db, testLogger())

	_, err := s.Account(2)
	require.NoError(t, err)

	_, err = s.apply(2, func(a models.DebtAccount) models.DebtAccount {
		require.NoError(t, db.Model(&models.DebtAccount{}).
			Where("user_id = ?", uint(2)).
			Update("version", a.Version+1).Error)
		a.Current++
		a.Accumulated++
		return a
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
}
