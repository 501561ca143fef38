package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const accountVersionCacheKeyPrefix = "go-apiversions::account_version::v1"

// CachedAccountVersionStore serves reads through a cache service and drops
// the cached entry on every write.
type CachedAccountVersionStore struct {
	base  AccountVersionRepository
	cache repositorycache.CacheService
}

func NewCachedAccountVersionStore(
	base AccountVersionRepository,
	cacheService repositorycache.CacheService,
) (*CachedAccountVersionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base account version store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: account version cache service is required")
	}
	return &CachedAccountVersionStore{base: base, cache: cacheService}, nil
}

// AccountVersionCacheKey returns go-apiversions::account_version::v1::<account>
// with the account id URL-path escaped.
func AccountVersionCacheKey(accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", fmt.Errorf("sqlstore: account id is required")
	}
	return accountVersionCacheKeyPrefix + "::" + url.PathEscape(accountID), nil
}

func (s *CachedAccountVersionStore) Get(ctx context.Context, accountID string) (AccountVersion, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return AccountVersion{}, fmt.Errorf("sqlstore: cached account version store is not configured")
	}
	accountID = strings.TrimSpace(accountID)
	cacheKey, err := AccountVersionCacheKey(accountID)
	if err != nil {
		return AccountVersion{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (AccountVersion, error) {
		return s.base.Get(ctx, accountID)
	})
}

func (s *CachedAccountVersionStore) Upsert(ctx context.Context, accountID string, version string) (AccountVersion, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return AccountVersion{}, fmt.Errorf("sqlstore: cached account version store is not configured")
	}
	saved, err := s.base.Upsert(ctx, accountID, version)
	if err != nil {
		return AccountVersion{}, err
	}
	if err := s.invalidate(ctx, accountID); err != nil {
		return AccountVersion{}, err
	}
	return saved, nil
}

func (s *CachedAccountVersionStore) Delete(ctx context.Context, accountID string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached account version store is not configured")
	}
	if err := s.base.Delete(ctx, accountID); err != nil {
		return err
	}
	return s.invalidate(ctx, accountID)
}

func (s *CachedAccountVersionStore) AccountVersion(ctx context.Context, accountID string) (string, error) {
	return accountVersionOf(ctx, s, accountID)
}

func (s *CachedAccountVersionStore) invalidate(ctx context.Context, accountID string) error {
	cacheKey, err := AccountVersionCacheKey(accountID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}
