package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dorm-gate-api/internal/middleware"
	"github.com/noah-isme/dorm-gate-api/internal/models"
	appErrors "github.com/noah-isme/dorm-gate-api/pkg/errors"
)

// currentUser extracts the authenticated claims set by the JWT
// middleware.
func currentUser(c *gin.Context) (*models.JWTClaims, error) {
	claims, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	jwtClaims, ok := claims.(*models.JWTClaims)
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return jwtClaims, nil
}

// paramID parses the numeric path parameter with the given name.
func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name+" parameter")
	}
	return id, nil
}
