// Package memory provides process-local implementations of the profile, cohort and raw event stores.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dtroode/audience-server/internal/model"
)

// maxAttempts bounds how often Atomic re-runs a resolution whose reads went stale.
const maxAttempts = 3

var errStale = errors.New("profile changed since it was read")

var (
	_ model.ProfileStore = (*Store)(nil)
	_ model.CohortStore  = (*Store)(nil)
	_ model.RawEventLog  = (*Store)(nil)
)

// Store keeps profiles, snapshots and raw events in memory.
type Store struct {
	mu        sync.RWMutex
	profiles  map[uuid.UUID]model.Profile
	versions  map[uuid.UUID]uint64
	byCookie  map[string]uuid.UUID
	byEmail   map[string]uuid.UUID
	snapshots []model.CohortSnapshot
	events    []model.RawEvent

	locks *keyLocker
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[uuid.UUID]model.Profile),
		versions: make(map[uuid.UUID]uint64),
		byCookie: make(map[string]uuid.UUID),
		byEmail:  make(map[string]uuid.UUID),
		locks:    newKeyLocker(),
	}
}

func (s *Store) FindByCookie(_ context.Context, cookie string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byCookie, cookie)
}

func (s *Store) FindByEmail(_ context.Context, email string) (model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(s.byEmail, email)
}

func (s *Store) lookup(index map[string]uuid.UUID, key string) (model.Profile, error) {
	id, ok := index[key]
	if !ok {
		return model.Profile{}, model.ErrNotFound
	}
	p := s.profiles[id]
	p.Fields = p.Fields.Clone()
	return p, nil
}

// Atomic serializes fn with every other resolution sharing the cookie or the email.
// A profile matched through another key can still change underneath fn, so commit
// rejects stale reads and fn is run again against the current state.
func (s *Store) Atomic(ctx context.Context, key model.IdentityKey, fn func(ctx context.Context, tx model.ProfileTx) error) error {
	release, err := s.locks.lockAll(ctx, "cookie:"+key.Cookie, "email:"+key.Email)
	if err != nil {
		return fmt.Errorf("%w: failed to lock identity: %w", model.ErrStoreUnavailable, err)
	}
	defer release()

	for attempt := 1; ; attempt++ {
		tx := newTx(s)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
		}

		err := s.commit(tx)
		if !errors.Is(err, errStale) {
			return err
		}
		if attempt == maxAttempts {
			return fmt.Errorf("%w: %w", model.ErrStoreUnavailable, err)
		}
	}
}

func (s *Store) commit(tx *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range tx.profiles {
		if read, ok := tx.reads[id]; ok && s.versions[id] != read {
			return fmt.Errorf("%w: %s", errStale, id)
		}
	}
	for _, p := range tx.profiles {
		if err := s.checkUnique(p); err != nil {
			return err
		}
	}

	for _, p := range tx.profiles {
		if old, ok := s.profiles[p.ID]; ok {
			delete(s.byCookie, old.Fields.Cookie)
			delete(s.byEmail, old.Fields.Email)
		}
		s.profiles[p.ID] = p
		s.versions[p.ID]++
		s.byCookie[p.Fields.Cookie] = p.ID
		s.byEmail[p.Fields.Email] = p.ID
	}
	s.snapshots = append(s.snapshots, tx.snapshots...)

	return nil
}

func (s *Store) checkUnique(p model.Profile) error {
	if id, ok := s.byCookie[p.Fields.Cookie]; ok && id != p.ID {
		return fmt.Errorf("%w: cookie %q", model.ErrConflict, p.Fields.Cookie)
	}
	if id, ok := s.byEmail[p.Fields.Email]; ok && id != p.ID {
		return fmt.Errorf("%w: email %q", model.ErrConflict, p.Fields.Email)
	}
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Append stores a raw event.
func (s *Store) Append(_ context.Context, event model.RawEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.Payload = slices.Clone(event.Payload)
	s.events = append(s.events, event)
	return nil
}

// RawEvents returns a copy of the raw event log.
func (s *Store) RawEvents() []model.RawEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// ProfileCount returns the number of stored profiles.
func (s *Store) ProfileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// tx stages writes until Atomic commits them. reads holds the version of every stored profile it saw.
type tx struct {
	store     *Store
	profiles  map[uuid.UUID]model.Profile
	reads     map[uuid.UUID]uint64
	snapshots []model.CohortSnapshot
}

func newTx(s *Store) *tx {
	return &tx{
		store:    s,
		profiles: make(map[uuid.UUID]model.Profile),
		reads:    make(map[uuid.UUID]uint64),
	}
}

func (t *tx) read(byEmail bool, key string) (model.Profile, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	index := t.store.byCookie
	if byEmail {
		index = t.store.byEmail
	}
	p, err := t.store.lookup(index, key)
	if err != nil {
		return model.Profile{}, err
	}
	if _, seen := t.reads[p.ID]; !seen {
		t.reads[p.ID] = t.store.versions[p.ID]
	}
	return p, nil
}

func (t *tx) FindByCookie(_ context.Context, cookie string) (model.Profile, error) {
	for _, p := range t.profiles {
		if p.Fields.Cookie == cookie {
			p.Fields = p.Fields.Clone()
			return p, nil
		}
	}
	return t.read(false, cookie)
}

func (t *tx) FindByEmail(_ context.Context, email string) (model.Profile, error) {
	for _, p := range t.profiles {
		if p.Fields.Email == email {
			p.Fields = p.Fields.Clone()
			return p, nil
		}
	}
	return t.read(true, email)
}

func (t *tx) Upsert(_ context.Context, profile model.Profile) (model.Profile, error) {
	for id, p := range t.profiles {
		if id == profile.ID {
			continue
		}
		if p.Fields.Cookie == profile.Fields.Cookie || p.Fields.Email == profile.Fields.Email {
			return model.Profile{}, model.ErrConflict
		}
	}

	t.store.mu.RLock()
	err := t.store.checkUnique(profile)
	t.store.mu.RUnlock()
	if err != nil {
		return model.Profile{}, err
	}

	profile.Fields = profile.Fields.Clone()
	t.profiles[profile.ID] = profile

	out := profile
	out.Fields = profile.Fields.Clone()
	return out, nil
}

func (t *tx) AppendSnapshot(_ context.Context, snapshot model.CohortSnapshot) error {
	snapshot.Fields = snapshot.Fields.Clone()
	t.snapshots = append(t.snapshots, snapshot)
	return nil
}
