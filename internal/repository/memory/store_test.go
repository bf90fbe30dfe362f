package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/audience-server/internal/model"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func upsertProfile(t *testing.T, s *Store, fields model.FieldSet) model.Profile {
	t.Helper()

	var saved model.Profile
	err := s.Atomic(context.Background(), fields.Key(), func(ctx context.Context, tx model.ProfileTx) error {
		var err error
		saved, err = tx.Upsert(ctx, model.Profile{ID: uuid.New(), Fields: fields})
		return err
	})
	require.NoError(t, err)
	return saved
}

func TestStore_FindByKeys(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	saved := upsertProfile(t, s, model.FieldSet{Cookie: "c1", Email: "a@x.io"})

	byCookie, err := s.FindByCookie(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byCookie.ID)

	byEmail, err := s.FindByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byEmail.ID)

	_, err = s.FindByCookie(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.FindByEmail(ctx, "missing@x.io")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStore_UpsertConflict(t *testing.T) {
	s := NewStore()
	upsertProfile(t, s, model.FieldSet{Cookie: "c1", Email: "a@x.io"})

	tests := []struct {
		name   string
		fields model.FieldSet
	}{
		{name: "cookie taken", fields: model.FieldSet{Cookie: "c1", Email: "b@x.io"}},
		{name: "email taken", fields: model.FieldSet{Cookie: "c2", Email: "a@x.io"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Atomic(context.Background(), tt.fields.Key(), func(ctx context.Context, tx model.ProfileTx) error {
				_, err := tx.Upsert(ctx, model.Profile{ID: uuid.New(), Fields: tt.fields})
				return err
			})
			assert.ErrorIs(t, err, model.ErrConflict)
		})
	}
	assert.Equal(t, 1, s.ProfileCount())
}

func TestStore_UpsertReindexesChangedKeys(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	saved := upsertProfile(t, s, model.FieldSet{Cookie: "old", Email: "a@x.io"})

	err := s.Atomic(ctx, model.IdentityKey{Cookie: "new", Email: "a@x.io"}, func(ctx context.Context, tx model.ProfileTx) error {
		_, err := tx.Upsert(ctx, model.Profile{ID: saved.ID, Fields: model.FieldSet{Cookie: "new", Email: "a@x.io"}})
		return err
	})
	require.NoError(t, err)

	_, err = s.FindByCookie(ctx, "old")
	assert.ErrorIs(t, err, model.ErrNotFound)
	p, err := s.FindByCookie(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, p.ID)
	assert.Equal(t, 1, s.ProfileCount())
}

func TestStore_AtomicRollsBackOnError(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	fields := model.FieldSet{Cookie: "c1", Email: "a@x.io"}
	boom := errors.New("boom")

	err := s.Atomic(ctx, fields.Key(), func(ctx context.Context, tx model.ProfileTx) error {
		p, err := tx.Upsert(ctx, model.Profile{ID: uuid.New(), Fields: fields})
		require.NoError(t, err)

		// staged writes are visible inside the transaction
		got, err := tx.FindByCookie(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)

		require.NoError(t, tx.AppendSnapshot(ctx, model.CohortSnapshot{ID: uuid.New(), ProfileID: p.ID, Fields: fields}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 0, s.ProfileCount())
	snaps, err := s.Query(ctx, model.CohortFilter{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestStore_AtomicContextCancelled(t *testing.T) {
	s := NewStore()
	key := model.IdentityKey{Cookie: "c1", Email: "a@x.io"}

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Atomic(context.Background(), key, func(ctx context.Context, tx model.ProfileTx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Atomic(ctx, model.IdentityKey{Cookie: "other", Email: "a@x.io"}, func(ctx context.Context, tx model.ProfileTx) error {
		t.Fatal("must not run while the email is locked")
		return nil
	})
	close(done)

	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_AtomicSerializesSameIdentity(t *testing.T) {
	s := NewStore()
	fields := model.FieldSet{Cookie: "c1", Email: "a@x.io"}
	const workers = 50

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Atomic(context.Background(), fields.Key(), func(ctx context.Context, tx model.ProfileTx) error {
				_, err := tx.FindByCookie(ctx, fields.Cookie)
				if err == nil {
					return nil
				}
				if !errors.Is(err, model.ErrNotFound) {
					return err
				}
				if _, err := tx.Upsert(ctx, model.Profile{ID: uuid.New(), Fields: fields}); err != nil {
					return err
				}
				mu.Lock()
				created++
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, s.ProfileCount())
}

func TestStore_AtomicRereadsProfileChangedThroughOtherKey(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	saved := upsertProfile(t, s, model.FieldSet{
		Cookie: "A", Email: "X",
		Location: model.Location{City: strPtr("Old")},
	})

	read := make(chan struct{})
	resume := make(chan struct{})
	errCh := make(chan error, 1)
	attempts := 0

	// matches the profile by email X, then waits while another resolution moves it to email B
	go func() {
		errCh <- s.Atomic(ctx, model.IdentityKey{Cookie: "D", Email: "X"}, func(ctx context.Context, tx model.ProfileTx) error {
			attempts++
			p, err := tx.FindByEmail(ctx, "X")
			if attempts == 1 {
				close(read)
				<-resume
			}
			switch {
			case errors.Is(err, model.ErrNotFound):
				p = model.Profile{ID: uuid.New(), Fields: model.FieldSet{Cookie: "D", Email: "X"}}
			case err != nil:
				return err
			default:
				p.Fields.Cookie = "D"
			}
			_, err = tx.Upsert(ctx, p)
			return err
		})
	}()
	<-read

	err := s.Atomic(ctx, model.IdentityKey{Cookie: "A", Email: "B"}, func(ctx context.Context, tx model.ProfileTx) error {
		p, err := tx.FindByCookie(ctx, "A")
		if err != nil {
			return err
		}
		p.Fields.Email = "B"
		p.Fields.Location.City = strPtr("New")
		_, err = tx.Upsert(ctx, p)
		return err
	})
	require.NoError(t, err)

	close(resume)
	require.NoError(t, <-errCh)
	assert.Equal(t, 2, attempts)

	moved, err := s.FindByEmail(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, moved.ID)
	assert.Equal(t, "A", moved.Fields.Cookie)
	assert.Equal(t, "New", *moved.Fields.Location.City)

	created, err := s.FindByEmail(ctx, "X")
	require.NoError(t, err)
	assert.NotEqual(t, saved.ID, created.ID)
	assert.Equal(t, "D", created.Fields.Cookie)
	assert.Equal(t, 2, s.ProfileCount())
}

func TestStore_AtomicGivesUpOnRepeatedlyStaleReads(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	saved := upsertProfile(t, s, model.FieldSet{Cookie: "A", Email: "X"})

	attempts := 0
	err := s.Atomic(ctx, model.IdentityKey{Cookie: "D", Email: "X"}, func(ctx context.Context, tx model.ProfileTx) error {
		attempts++
		p, err := tx.FindByEmail(ctx, "X")
		if err != nil {
			return err
		}

		// a writer holding different keys commits the same profile before every commit
		bump := model.IdentityKey{Cookie: "A", Email: "Z"}
		require.NoError(t, s.Atomic(ctx, bump, func(ctx context.Context, other model.ProfileTx) error {
			_, err := other.Upsert(ctx, model.Profile{ID: saved.ID, Fields: saved.Fields})
			return err
		}))

		p.Fields.Cookie = "D"
		_, err = tx.Upsert(ctx, p)
		return err
	})

	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Equal(t, maxAttempts, attempts)
}

func TestStore_Query(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	snaps := []model.CohortSnapshot{
		{
			ID: uuid.New(), Cohort: "Sports", RecordedAt: base.Add(2 * time.Hour),
			Fields: model.FieldSet{
				Cookie: "c1", Email: "a@x.io",
				Location:     model.Location{Country: strPtr("India")},
				Demographics: model.Demographics{Age: intPtr(25), Gender: strPtr("M"), Income: strPtr("50k")},
				Interests:    []string{"Football", "AI"},
			},
		},
		{
			ID: uuid.New(), Cohort: "Finance", RecordedAt: base.Add(time.Hour),
			Fields: model.FieldSet{
				Cookie: "c2", Email: "b@x.io",
				Location:     model.Location{Country: strPtr("USA")},
				Demographics: model.Demographics{Age: intPtr(40), Gender: strPtr("F"), Education: strPtr("PhD")},
				Interests:    []string{"Crypto"},
			},
		},
		{
			ID: uuid.New(), Cohort: "Other", RecordedAt: base.Add(3 * time.Hour),
			Fields: model.FieldSet{Cookie: "c3", Email: "c@x.io"},
		},
	}
	err := s.Atomic(ctx, model.IdentityKey{Cookie: "seed", Email: "seed"}, func(ctx context.Context, tx model.ProfileTx) error {
		for _, snap := range snaps {
			if err := tx.AppendSnapshot(ctx, snap); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		filter  model.CohortFilter
		wantIDs []uuid.UUID
	}{
		{name: "no filter returns all oldest first", filter: model.CohortFilter{}, wantIDs: []uuid.UUID{snaps[1].ID, snaps[0].ID, snaps[2].ID}},
		{name: "by country", filter: model.CohortFilter{Country: "India"}, wantIDs: []uuid.UUID{snaps[0].ID}},
		{name: "by age range", filter: model.CohortFilter{AgeMin: intPtr(30), AgeMax: intPtr(50)}, wantIDs: []uuid.UUID{snaps[1].ID}},
		{name: "age min excludes missing age", filter: model.CohortFilter{AgeMin: intPtr(1)}, wantIDs: []uuid.UUID{snaps[1].ID, snaps[0].ID}},
		{name: "any interest matches", filter: model.CohortFilter{Interests: []string{"Crypto", "AI"}}, wantIDs: []uuid.UUID{snaps[1].ID, snaps[0].ID}},
		{name: "by cohort", filter: model.CohortFilter{Cohort: "Other"}, wantIDs: []uuid.UUID{snaps[2].ID}},
		{name: "by education", filter: model.CohortFilter{Education: "PhD"}, wantIDs: []uuid.UUID{snaps[1].ID}},
		{name: "limit", filter: model.CohortFilter{Limit: 1}, wantIDs: []uuid.UUID{snaps[1].ID}},
		{name: "no match", filter: model.CohortFilter{Cookie: "nope"}, wantIDs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.filter)
			require.NoError(t, err)

			var ids []uuid.UUID
			for _, g := range got {
				ids = append(ids, g.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestStore_RawEvents(t *testing.T) {
	s := NewStore()
	payload := []byte(`{"cookie":"c1"}`)

	require.NoError(t, s.Append(context.Background(), model.RawEvent{ID: uuid.New(), Source: model.SourceHTTP, Payload: payload}))
	payload[0] = 'X'

	events := s.RawEvents()
	require.Len(t, events, 1)
	assert.Equal(t, `{"cookie":"c1"}`, string(events[0].Payload))
}
