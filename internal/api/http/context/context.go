package context

import (
	"context"
)

type clientIDKey struct{}

// Manager stores the authenticated ingestion client ID in request contexts.
type Manager struct{}

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetClientIDToContext returns a copy of ctx carrying clientID.
func (m *Manager) SetClientIDToContext(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// GetClientIDFromContext returns the client ID stored in ctx.
// The boolean is false when no client ID, or an empty one, is present.
func (m *Manager) GetClientIDFromContext(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(clientIDKey{}).(string)
	if !ok || clientID == "" {
		return "", false
	}

	return clientID, true
}
