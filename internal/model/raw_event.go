package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sources of inbound records.
const (
	SourceHTTP = "http"
	SourceFile = "file"
)

// RawEvent is an inbound record stored verbatim before resolution.
type RawEvent struct {
	ID         uuid.UUID
	Source     string
	ClientID   string
	Payload    []byte
	ReceivedAt time.Time
}

// RawEventLog is the append-only log of inbound records.
type RawEventLog interface {
	Append(ctx context.Context, event RawEvent) error
}

// RawRecord is an inbound record before normalization.
// Both the JSON endpoint and the CSV loader produce this shape.
type RawRecord struct {
	Source      string
	ClientID    string
	Payload     []byte
	Cookie      string
	Email       string
	PhoneNumber *string
	CreatedAt   *string
	State       *string
	Country     *string
	City        *string
	Age         *float64
	Gender      *string
	Income      *string
	Education   *string
	Interests   []string
	Extra       map[string]any
}
