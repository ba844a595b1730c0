package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserIDKey is the gin context key holding the authenticated owner id.
const UserIDKey = "user_id"

var errMissingToken = errors.New("missing token")

// authMiddleware accepts an HS256 token either as a Bearer Authorization
// header or in cookieName, and stores its sub claim under UserIDKey.
func authMiddleware(secret []byte, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractToken(c, cookieName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": err.Error()})
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": msg})
			return
		}

		sub, err := token.Claims.GetSubject()
		if err != nil || strings.TrimSpace(sub) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized", "error": "missing user id in token"})
			return
		}

		c.Set(UserIDKey, sub)
		c.Next()
	}
}

func extractToken(c *gin.Context, cookieName string) (string, error) {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errors.New("invalid authorization header format")
		}
		return strings.TrimSpace(token), nil
	}

	if cookieName != "" {
		if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
			return cookie, nil
		}
	}
	return "", errMissingToken
}

func ownerFrom(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
