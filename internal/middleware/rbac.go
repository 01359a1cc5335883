package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ambassador-api/internal/models"
	appErrors "github.com/noah-isme/ambassador-api/pkg/errors"
	"github.com/noah-isme/ambassador-api/pkg/response"
)

// CurrentClaims returns the claims attached by JWT.
func CurrentClaims(c *gin.Context) (*models.JWTClaims, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*models.JWTClaims)
	return claims, ok && claims != nil
}

// Policy admits or refuses a request carrying claims.
type Policy func(c *gin.Context, claims *models.JWTClaims) bool

// Roles admits any of the listed roles.
func Roles(roles ...models.UserRole) Policy {
	set := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return func(_ *gin.Context, claims *models.JWTClaims) bool {
		_, ok := set[claims.Role]
		return ok
	}
}

// Self admits a staff member whose id equals the named path parameter.
// Portal tokens never match, even when the ids happen to collide.
func Self(param string) Policy {
	return func(c *gin.Context, claims *models.JWTClaims) bool {
		target := c.Param(param)
		return target != "" && claims.Role.Staff() && target == claims.UserID
	}
}

// Authorize passes the request on when any policy admits it: 401 without
// claims, 403 otherwise.
func Authorize(policies ...Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, allow := range policies {
			if allow(c, claims) {
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return Authorize(Roles(roles...))
}

// RequireApplicant admits only portal tokens. Portal handlers read the
// applicant id from the token, so one applicant can never address another.
func RequireApplicant() gin.HandlerFunc {
	return Authorize(Roles(models.RoleApplicant))
}
