package router

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/applytrack/internal/api/dto"
	"github.com/cuongbtq/applytrack/internal/api/handler"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies an HS256 bearer token and stores its userId
func AuthMiddleware(secret string, logger *slog.Logger) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Unauthorized"})
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid token"})
			return
		}

		var claims Claims
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || claims.UserID == "" {
			logger.Warn("Rejected bearer token",
				slog.String("path", c.Request.URL.Path),
				slog.Any("error", err),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid token"})
			return
		}

		c.Set(handler.ContextUserID, claims.UserID)
		c.Next()
	}
}
