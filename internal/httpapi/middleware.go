package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/giftkeep/giftkeep/internal/auth"
	"github.com/giftkeep/giftkeep/internal/fault"
)

// principalKey is the gin context key for the authenticated principal.
const principalKey = "giftkeep_principal"

// authMiddleware extracts and validates the bearer token, storing the
// principal for downstream handlers.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		principal, err := s.tokens.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid bearer token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// adminOnly rejects principals without the administrative role.
func (s *Server) adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := currentPrincipal(c)
		if err := auth.RequireAdmin(p); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "administrative role required"})
			return
		}
		c.Next()
	}
}

// requireConfirm demands the explicit confirmation header on destructive
// endpoints.
func (s *Server) requireConfirm() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(ConfirmHeader) != ConfirmValue {
			c.AbortWithStatusJSON(http.StatusPreconditionRequired, gin.H{
				"error": "destructive operation requires " + ConfirmHeader + ": " + ConfirmValue,
			})
			return
		}
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.Principal{}
}

// writeError maps a typed fault onto a status code. Storage causes are
// never echoed back; the generic message goes out and the cause goes to
// the log.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		ve *fault.ValidationError
		ae *fault.AuthorizationError
		ie *fault.IntegrityError
		se *fault.StorageError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message, "code": ve.Code})
	case errors.As(err, &ae):
		status := http.StatusForbidden
		if ae.Code == fault.CodeReauthFailed {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": ae.Message, "code": ae.Code})
	case errors.As(err, &ie):
		c.JSON(http.StatusConflict, gin.H{"error": ie.Message, "code": ie.Code, "invariant": ie.Invariant})
	case errors.As(err, &se):
		s.log.Error("storage failure", "op", se.Op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": se.External(), "code": fault.CodeStorage})
	default:
		s.log.Error("unexpected failure", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
