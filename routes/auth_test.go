package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/StephenStolk/nutriapp-sub000/db"
	"github.com/StephenStolk/nutriapp-sub000/models"
	"github.com/StephenStolk/nutriapp-sub000/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

func setupAuthDB(t *testing.T) {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        filepath.Join(t.TempDir(), "auth_test.db"),
	}, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.User{}))
	db.DB = gdb
}

func postJSON(t *testing.T, handler gin.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func TestRegisterIssuesSignedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupAuthDB(t)

	w := postJSON(t, Register, gin.H{"username": "mira", "password": "hunter22"})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	parsed, err := jwt.Parse(resp.Token, func(*jwt.Token) (interface{}, error) {
		return utils.JwtKey, nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
}

func TestLoginIssuesTokenAndRejectsBadPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupAuthDB(t)

	require.Equal(t, http.StatusCreated,
		postJSON(t, Register, gin.H{"username": "tomas", "password": "hunter22"}).Code)

	ok := postJSON(t, Login, gin.H{"username": "tomas", "password": "hunter22"})
	require.Equal(t, http.StatusOK, ok.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(ok.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	bad := postJSON(t, Login, gin.H{"username": "tomas", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}
