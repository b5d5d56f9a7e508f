package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

const ContextOwner = "owner"

type OwnerSource interface {
	Owner() (models.Owner, bool)
}

// SessionRequired lets a request through when a user is signed in, also
// while the session waits for re-authentication: cached data stays readable.
func SessionRequired(src OwnerSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := src.Owner()
		if !ok {
			httperr.Unauthorized(c, httperr.CodeNotLoggedIn, "Sign in first.")
			c.Abort()
			return
		}

		c.Set(ContextOwner, owner)
		c.Next()
	}
}

func OwnerFrom(c *gin.Context) models.Owner {
	return c.MustGet(ContextOwner).(models.Owner)
}
