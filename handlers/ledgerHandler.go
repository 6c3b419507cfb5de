package handlers

import (
	"net/http"

	"github.com/StephenStolk/nutriapp-sub000/middleware"
	"github.com/StephenStolk/nutriapp-sub000/services"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetLedger returns the full behavioral snapshot: debt, parasite health,
// identity alignment, streak and stage.
func GetLedger(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	snap, err := ledger.LedgerSnapshot(user.ID)
	if err != nil {
		utils.Logger.Error("ledger_snapshot_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ledger"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

func GetDebtActions(c *gin.Context) {
	c.JSON(http.StatusOK, services.RepayActions)
}

// RepayDebt pays down the account by a catalog action. A zero-debt account
// is a no-op, not an error.
func RepayDebt(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input struct {
		Action string `json:"action" validate:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if err := middleware.ValidateStruct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Action is required"})
		return
	}

	acct, repaid, err := ledger.Debt.Repay(user.ID, input.Action)
	if err != nil {
		utils.Logger.Error("debt_repay_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to repay debt"})
		return
	}

	middleware.InvalidateUserCache(user.ID)
	c.JSON(http.StatusOK, gin.H{"account": acct, "repaid": repaid})
}

func GetDebtTransactions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	txs, err := ledger.Debt.Transactions(user.ID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transactions"})
		return
	}

	c.JSON(http.StatusOK, txs)
}

// ActivateIdentity sets the single active identity for the user.
func ActivateIdentity(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var input struct {
		Name string `json:"name" validate:"required,min=1,max=60"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	if err := middleware.ValidateStruct(input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Identity name is required"})
		return
	}

	ident, err := ledger.Identity.Activate(user.ID, input.Name)
	if err != nil {
		utils.Logger.Error("identity_activate_failed", zap.Uint("user_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to activate identity"})
		return
	}

	middleware.InvalidateUserCache(user.ID)
	c.JSON(http.StatusOK, gin.H{"identity": ident})
}

func GetIdentity(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	ident, active, err := ledger.Identity.Active(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load identity"})
		return
	}
	if !active {
		c.JSON(http.StatusOK, gin.H{"identity": nil, "impacts": []struct{}{}})
		return
	}

	impacts, err := ledger.Identity.Impacts(user.ID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load identity impacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"identity": ident, "impacts": impacts})
}
