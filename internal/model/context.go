package model

import "context"

// ContextManager stores the authenticated ingestion client in a request context.
type ContextManager interface {
	SetClientIDToContext(ctx context.Context, clientID string) context.Context
	GetClientIDFromContext(ctx context.Context) (string, bool)
}
