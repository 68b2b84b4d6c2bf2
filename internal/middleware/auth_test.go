package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"qadam_backend/internal/config"
	"qadam_backend/internal/model"
	"qadam_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware-test-secret-0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
}

func token(t *testing.T, id uint) string {
	user := &model.User{Email: "a@b.kz", Role: model.Student}
	user.ID = id
	tok, err := util.GenerateJWT(user, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func whoami(c *gin.Context) {
	if u := util.GetUserFromContext(c); u != nil {
		c.JSON(http.StatusOK, gin.H{"user": u.UserID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": nil})
}

func do(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(testConfig()), whoami)

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer garbage").Code)

	w := do(r, "Bearer "+token(t, 42))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":42}`, w.Body.String())
}

func TestTryAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", TryAuthMiddleware(testConfig()), whoami)

	w := do(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":null}`, w.Body.String())

	w = do(r, "Bearer garbage")
	assert.JSONEq(t, `{"user":null}`, w.Body.String())

	w = do(r, "Bearer "+token(t, 7))
	assert.JSONEq(t, `{"user":7}`, w.Body.String())
}

type seenRepo struct {
	mu  sync.Mutex
	ids []uint
	wg  sync.WaitGroup
}

func (s *seenRepo) UpdateLastSeen(id uint) error {
	defer s.wg.Done()
	s.mu.Lock()
	s.ids = append(s.ids, id)
	s.mu.Unlock()
	return nil
}

func TestActivityMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &seenRepo{}
	r := gin.New()
	r.GET("/me", AuthMiddleware(testConfig()), ActivityMiddleware(repo), whoami)

	repo.wg.Add(1)
	do(r, "Bearer "+token(t, 9))
	repo.wg.Wait()
	assert.Equal(t, []uint{9}, repo.ids)
}
