package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/casebeam/caseload-api/internal/middleware"
	"github.com/casebeam/caseload-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// providerScope resolves whose caseload a request operates on. Providers are
// always scoped to themselves; admins and SEAs (who work another provider's
// sessions) may target a provider via the provider_id query parameter.
func providerScope(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil {
		return ""
	}
	if claims.Role == models.RoleAdmin || claims.Role == models.RoleSEA {
		if target := c.Query("provider_id"); target != "" {
			return target
		}
	}
	return claims.UserID
}
