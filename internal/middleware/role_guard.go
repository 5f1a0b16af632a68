package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
)

// RequireRole は AuthJWT の後ろに置く。roles に無いロールは403。
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxUserRoleKey).(string)
			if role == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if _, ok := allowed[model.Role(role)]; !ok {
				return c.JSON(http.StatusForbidden, errorResponse{Error: "role " + role + " is not allowed", Kind: "forbidden"})
			}
			return next(c)
		}
	}
}
