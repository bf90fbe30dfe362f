package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/model"
)

var (
	ErrMissingAuthorizationToken = errors.New("missing authorization token")
	ErrInvalidAuthorizationToken = errors.New("invalid authorization token")
)

// Authenticate validates bearer tokens and injects the client ID into the request context.
type Authenticate struct {
	tokenManager   model.TokenManager
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(tokenManager model.TokenManager, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{tokenManager: tokenManager, contextManager: contextManager, logger: logger}
}

// HandleHTTP parses the Authorization header, validates the token and stores the client ID.
// Requests without a valid token are aborted with 401.
func (m *Authenticate) HandleHTTP(c *gin.Context) {
	tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	clientID, err := m.authenticateClient(tokenString)
	if err != nil {
		m.logger.Warn("request rejected", "path", c.Request.URL.Path, "error", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	c.Request = c.Request.WithContext(m.contextManager.SetClientIDToContext(c.Request.Context(), clientID))
	c.Next()
}

func (m *Authenticate) authenticateClient(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingAuthorizationToken
	}

	clientID, err := m.tokenManager.ParseAccessToken(tokenString)
	if err != nil || clientID == "" {
		return "", ErrInvalidAuthorizationToken
	}

	return clientID, nil
}
