package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/audience-server/internal/model"
)

var _ model.ProfileStore = (*ProfileRepository)(nil)

const profileColumns = `id, cookie, email, phone_number, created_at, state, country, city,
		age, gender, income, education, interests, updated_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ProfileRepository struct {
	db *Connection
}

func NewProfileRepository(db *Connection) *ProfileRepository {
	return &ProfileRepository{
		db: db,
	}
}

func (r *ProfileRepository) FindByCookie(ctx context.Context, cookie string) (model.Profile, error) {
	return findProfile(ctx, r.db, "cookie", cookie, false)
}

func (r *ProfileRepository) FindByEmail(ctx context.Context, email string) (model.Profile, error) {
	return findProfile(ctx, r.db, "email", email, false)
}

func (r *ProfileRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Atomic runs fn in one transaction holding advisory locks on the cookie and the email.
// Concurrent calls sharing either key are serialized until commit or rollback.
// Lookups inside fn also lock the matched row, so a profile reached through a key
// another transaction is moving is re-read after that transaction commits.
func (r *ProfileRepository) Atomic(ctx context.Context, key model.IdentityKey, fn func(ctx context.Context, tx model.ProfileTx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	for _, lockKey := range lockKeys(key) {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("failed to lock identity: %w", classify(err))
		}
	}

	if err := fn(ctx, &profileTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}

	return nil
}

// lockKeys returns the advisory lock keys for an identity in acquisition order.
func lockKeys(key model.IdentityKey) []string {
	keys := []string{"cookie:" + key.Cookie, "email:" + key.Email}
	slices.Sort(keys)
	return keys
}

type profileTx struct {
	tx pgx.Tx
}

func (t *profileTx) FindByCookie(ctx context.Context, cookie string) (model.Profile, error) {
	return findProfile(ctx, t.tx, "cookie", cookie, true)
}

func (t *profileTx) FindByEmail(ctx context.Context, email string) (model.Profile, error) {
	return findProfile(ctx, t.tx, "email", email, true)
}

func (t *profileTx) Upsert(ctx context.Context, p model.Profile) (model.Profile, error) {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			cookie = EXCLUDED.cookie,
			email = EXCLUDED.email,
			phone_number = EXCLUDED.phone_number,
			created_at = EXCLUDED.created_at,
			state = EXCLUDED.state,
			country = EXCLUDED.country,
			city = EXCLUDED.city,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			income = EXCLUDED.income,
			education = EXCLUDED.education,
			interests = EXCLUDED.interests,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + profileColumns

	f := p.Fields
	saved, err := scanProfile(t.tx.QueryRow(ctx, query,
		p.ID, f.Cookie, f.Email, f.PhoneNumber, f.CreatedAt,
		f.Location.State, f.Location.Country, f.Location.City,
		f.Demographics.Age, f.Demographics.Gender, f.Demographics.Income, f.Demographics.Education,
		f.Interests, p.UpdatedAt,
	))
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to upsert profile: %w", classify(err))
	}

	return saved, nil
}

func (t *profileTx) AppendSnapshot(ctx context.Context, s model.CohortSnapshot) error {
	query := `
		INSERT INTO cohort_snapshots (id, profile_id, cohort, ` + snapshotFieldColumns + `, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	f := s.Fields
	_, err := t.tx.Exec(ctx, query,
		s.ID, s.ProfileID, s.Cohort,
		f.Cookie, f.Email, f.PhoneNumber, f.CreatedAt,
		f.Location.State, f.Location.Country, f.Location.City,
		f.Demographics.Age, f.Demographics.Gender, f.Demographics.Income, f.Demographics.Education,
		f.Interests, s.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cohort snapshot: %w", classify(err))
	}

	return nil
}

func findProfile(ctx context.Context, q querier, column, value string, forUpdate bool) (model.Profile, error) {
	// column is one of the two fixed identity columns
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE ` + column + ` = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanProfile(q.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, model.ErrNotFound
		}
		return model.Profile{}, fmt.Errorf("failed to get profile by %s: %w", column, classify(err))
	}

	return p, nil
}

func scanProfile(row pgx.Row) (model.Profile, error) {
	var p model.Profile
	f := &p.Fields
	err := row.Scan(
		&p.ID, &f.Cookie, &f.Email, &f.PhoneNumber, &f.CreatedAt,
		&f.Location.State, &f.Location.Country, &f.Location.City,
		&f.Demographics.Age, &f.Demographics.Gender, &f.Demographics.Income, &f.Demographics.Education,
		&f.Interests, &p.UpdatedAt,
	)
	if err != nil {
		return model.Profile{}, err
	}
	normalizeTimes(f)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func normalizeTimes(f *model.FieldSet) {
	if f.CreatedAt != nil {
		t := f.CreatedAt.UTC()
		f.CreatedAt = &t
	}
}
