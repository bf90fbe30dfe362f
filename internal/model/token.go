package model

// TokenManager issues and validates access tokens for ingestion clients.
type TokenManager interface {
	GenerateAccessToken(clientID string) (string, error)
	ParseAccessToken(token string) (string, error)
}
