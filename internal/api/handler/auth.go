package handler

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"msgflow/backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

const subjectKey = "subject"

var errInvalidToken = errors.New("invalid token or expired")

func (a Auth) generateJWT(subject string, now time.Time) (string, error) {
	ttl := a.TokenTTL
	if ttl <= 0 {
		ttl = config.TokenTTL
	}
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"iss": config.TokenIssuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.JWTSecret)
}

func (a Auth) parseJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.JWTSecret, nil
	}, jwt.WithIssuer(config.TokenIssuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

// IssueToken exchanges the X-API-Key header for a signed token.
func (h *Handler) IssueToken(c *gin.Context) {
	key := c.GetHeader("X-API-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.Auth.APIKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
		return
	}

	subject := uuid.NewString()
	token, err := h.Auth.generateJWT(subject, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "subject": subject})
}

// RequireJWT rejects requests without a valid bearer token. Browsers cannot
// set headers on WebSocket upgrades, so a token query parameter is accepted
// too.
func (h *Handler) RequireJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
				return
			}
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}

		subject, err := h.Auth.parseJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(subjectKey, subject)
		c.Next()
	}
}
