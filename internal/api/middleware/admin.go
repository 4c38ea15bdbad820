package middleware

import (
	"crypto/subtle"

	"github.com/smartscale/scale-server/internal/app"
	"github.com/smartscale/scale-server/internal/utils/hashutil"

	"github.com/gin-gonic/gin"
)

// AdminMiddleware guards the model-management endpoints with the shared
// X-Admin-Token header. An unset token locks the endpoints entirely.
func AdminMiddleware(ctx *gin.Context) {
	token := ctx.Request.Header.Get("X-Admin-Token")
	app := ctx.MustGet("app").(*app.App)

	adminToken := app.Config().AdminToken
	if adminToken == "" {
		app.Logger.Error("admin token is not configured")
		ctx.JSON(500, gin.H{"message": "admin endpoints are not configured"})
		ctx.Abort()
		return
	}

	// Hashing both sides first keeps the comparison constant time for
	// inputs of any length.
	presented := hashutil.Sha3256Hash([]byte(token))
	expected := hashutil.Sha3256Hash([]byte(adminToken))
	if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
		ctx.JSON(403, gin.H{"message": "invalid admin token"})
		ctx.Abort()
		return
	}

	ctx.Next()
}
