package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dtroode/audience-server/internal/model"
)

var _ model.RawEventLog = (*RawEventRepository)(nil)

// RawEventRepository appends raw events through database/sql.
type RawEventRepository struct {
	db *sql.DB
}

func NewRawEventRepository(db *sql.DB) *RawEventRepository {
	return &RawEventRepository{
		db: db,
	}
}

func (r *RawEventRepository) Append(ctx context.Context, event model.RawEvent) error {
	payload := event.Payload
	if !json.Valid(payload) {
		// keep non-JSON bodies verbatim as a JSON string
		encoded, err := json.Marshal(string(payload))
		if err != nil {
			return fmt.Errorf("failed to encode raw payload: %w", err)
		}
		payload = encoded
	}

	const query = `INSERT INTO raw_events (id, source, client_id, payload, received_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		event.ID.String(), event.Source, event.ClientID, string(payload), event.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to append raw event: %w", classify(err))
	}

	return nil
}
