package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/audience-server/internal/model"
)

func TestRawEventRepository_Append(t *testing.T) {
	receivedAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	tests := []struct {
		name        string
		payload     []byte
		wantPayload string
		execErr     error
		wantErr     func(t *testing.T, err error)
	}{
		{
			name:        "json payload stored as is",
			payload:     []byte(`{"cookie":"c1","email":"a@x.io"}`),
			wantPayload: `{"cookie":"c1","email":"a@x.io"}`,
		},
		{
			name:        "non json payload stored as json string",
			payload:     []byte(`cookie=c1`),
			wantPayload: `"cookie=c1"`,
		},
		{
			name:        "driver error",
			payload:     []byte(`{}`),
			wantPayload: `{}`,
			execErr:     errors.New("connection reset"),
			wantErr: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "failed to append raw event")
			},
		},
		{
			name:        "timeout is unavailable",
			payload:     []byte(`{}`),
			wantPayload: `{}`,
			execErr:     context.DeadlineExceeded,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, model.ErrStoreUnavailable)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			exec := mock.ExpectExec(`INSERT INTO raw_events`).
				WithArgs(id.String(), model.SourceHTTP, "client-1", tt.wantPayload, receivedAt)
			if tt.execErr != nil {
				exec.WillReturnError(tt.execErr)
			} else {
				exec.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			repo := NewRawEventRepository(db)
			err = repo.Append(context.Background(), model.RawEvent{
				ID:         id,
				Source:     model.SourceHTTP,
				ClientID:   "client-1",
				Payload:    tt.payload,
				ReceivedAt: receivedAt,
			})

			if tt.wantErr != nil {
				tt.wantErr(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
