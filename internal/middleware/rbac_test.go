package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/casebeam/caseload-api/internal/models"
)

func rbacRouter(claims *models.JWTClaims, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/resource/:id", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRBACAllowsListedRole(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleSpeech}, string(models.RoleSpeech))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resource/abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRejectsUnlistedRole(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleSEA}, string(models.RoleAdmin))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resource/abc", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfMatchesPathParam(t *testing.T) {
	r := rbacRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleSEA}, string(models.RoleAdmin), "SELF")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resource/u1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resource/u2", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACRequiresClaims(t *testing.T) {
	r := rbacRouter(nil, string(models.RoleAdmin))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/resource/abc", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
