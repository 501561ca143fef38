package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-apiversions/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ErrAccountVersionNotFound = errors.New("sqlstore: account api version not found")

// AccountVersionRepository is the read/write contract shared by the SQL
// store and its cached decorator.
type AccountVersionRepository interface {
	Get(ctx context.Context, accountID string) (AccountVersion, error)
	Upsert(ctx context.Context, accountID string, version string) (AccountVersion, error)
	Delete(ctx context.Context, accountID string) error
}

type AccountVersionStore struct {
	db      *bun.DB
	repo    repository.Repository[*accountVersionRecord]
	catalog *core.VersionCatalog
	now     func() time.Time
}

type StoreOption func(*AccountVersionStore)

// WithCatalog rejects writes of versions the catalog does not contain.
func WithCatalog(catalog *core.VersionCatalog) StoreOption {
	return func(s *AccountVersionStore) {
		s.catalog = catalog
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *AccountVersionStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewAccountVersionStore(db *bun.DB, opts ...StoreOption) (*AccountVersionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*accountVersionRecord](db, accountVersionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid account version repository wiring: %w", err)
		}
	}
	store := &AccountVersionStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *AccountVersionStore) Get(ctx context.Context, accountID string) (AccountVersion, error) {
	if s == nil || s.repo == nil {
		return AccountVersion{}, fmt.Errorf("sqlstore: account version store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return AccountVersion{}, fmt.Errorf("sqlstore: account id is required")
	}
	record, err := s.find(ctx, accountID)
	if err != nil {
		return AccountVersion{}, err
	}
	if record == nil {
		return AccountVersion{}, ErrAccountVersionNotFound
	}
	return record.toDomain(), nil
}

func (s *AccountVersionStore) Upsert(ctx context.Context, accountID string, version string) (AccountVersion, error) {
	if s == nil || s.repo == nil {
		return AccountVersion{}, fmt.Errorf("sqlstore: account version store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	version = strings.TrimSpace(version)
	if accountID == "" {
		return AccountVersion{}, fmt.Errorf("sqlstore: account id is required")
	}
	if version == "" {
		return AccountVersion{}, fmt.Errorf("sqlstore: api version is required")
	}
	if s.catalog != nil {
		if err := s.catalog.Validate(version); err != nil {
			return AccountVersion{}, err
		}
	}

	// One statement so concurrent first writes for an account cannot both
	// miss the row and collide on the account_id unique index.
	now := s.now()
	record := &accountVersionRecord{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		APIVersion: version,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (account_id) DO UPDATE").
		Set("api_version = EXCLUDED.api_version").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return AccountVersion{}, fmt.Errorf("sqlstore: upsert account version: %w", err)
	}
	stored, err := s.find(ctx, accountID)
	if err != nil {
		return AccountVersion{}, err
	}
	if stored == nil {
		return AccountVersion{}, ErrAccountVersionNotFound
	}
	return stored.toDomain(), nil
}

func (s *AccountVersionStore) Delete(ctx context.Context, accountID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: account version store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("sqlstore: account id is required")
	}
	_, err := s.db.NewDelete().
		Model((*accountVersionRecord)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	return err
}

// AccountVersion returns an empty version when the account has no default.
func (s *AccountVersionStore) AccountVersion(ctx context.Context, accountID string) (string, error) {
	return accountVersionOf(ctx, s, accountID)
}

func (s *AccountVersionStore) find(ctx context.Context, accountID string) (*accountVersionRecord, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("account_id", "=", accountID),
		repository.OrderBy("updated_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func accountVersionOf(ctx context.Context, repo AccountVersionRepository, accountID string) (string, error) {
	record, err := repo.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountVersionNotFound) {
			return "", nil
		}
		return "", err
	}
	return record.APIVersion, nil
}
