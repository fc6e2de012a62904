package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

// accessLog is gin's request-log line, kept on logrus rather than the
// structured app logger so the request audit trail stays separable from
// operational narration.
var accessLog = logrus.New()

// requestLogger is a gin middleware logging one logrus line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		accessLog.WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"method":   c.Request.Method,
			"path":     path,
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		}).Info("admin request")
	}
}

// sessionClaims is the payload of the short-lived dashboard session token
// issued by handleSession.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// handleSession exchanges an already-verified bearer token for a 15-minute
// JWT the dashboard can hold instead of the raw API token. The bearer API
// token stays the primary mechanism; this backs an optional browser
// session on top of it.
func (s *Server) handleSession(c *gin.Context) {
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   "admin-dashboard",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.apiToken))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": signed, "expires_in_seconds": 900})
}

// verifySession reports whether a JWT session token (if present in
// X-Session-Token) is valid, without requiring the raw bearer token again.
func (s *Server) verifySession(c *gin.Context) bool {
	raw := c.GetHeader("X-Session-Token")
	if raw == "" {
		return false
	}
	token, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(s.apiToken), nil
	})
	return err == nil && token.Valid
}

// checkTOTP validates the X-TOTP-Code header against secret when secret is
// configured; an unconfigured secret degrades to no second factor.
func checkTOTP(c *gin.Context, secret string) bool {
	if secret == "" {
		return true
	}
	code := c.GetHeader("X-TOTP-Code")
	return code != "" && totp.Validate(code, secret)
}

// constantTimeEqual is a small helper so every bearer comparison in this
// package goes through the same constant-time path.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
