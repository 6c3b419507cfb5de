package handlers

import (
	"net/http"

	"github.com/StephenStolk/nutriapp-sub000/analysis"
	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/services"
	"github.com/gin-gonic/gin"
)

var (
	ledger   *services.Ledger
	analyzer *analysis.Client
)

// Init wires the handler package with the service layer. Called once from
// main after the stores are connected.
func Init(l *services.Ledger, a *analysis.Client) {
	ledger = l
	analyzer = a
}

func currentUser(c *gin.Context) (models.User, bool) {
	userInterface, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return models.User{}, false
	}
	user, ok := userInterface.(models.User)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return models.User{}, false
	}
	return user, true
}
