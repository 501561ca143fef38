package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-apiversions/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db      *bun.DB
	cache   repositorycache.CacheService
	catalog *core.VersionCatalog

	accountVersionStore *AccountVersionStore
	cachedStore         *CachedAccountVersionStore
}

type FactoryOption func(*RepositoryFactory)

func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func WithVersionCatalog(catalog *core.VersionCatalog) FactoryOption {
	return func(f *RepositoryFactory) {
		f.catalog = catalog
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB, such as
// a go-persistence-bun client.
func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.accountVersionStore != nil {
		return nil
	}

	store, err := NewAccountVersionStore(f.db, WithCatalog(f.catalog))
	if err != nil {
		return err
	}
	f.accountVersionStore = store
	if f.cache != nil {
		cached, err := NewCachedAccountVersionStore(store, f.cache)
		if err != nil {
			return err
		}
		f.cachedStore = cached
	}
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) AccountVersionStore() *AccountVersionStore {
	if f == nil {
		return nil
	}
	return f.accountVersionStore
}

// AccountVersions returns the cached store when a cache service was
// configured, the plain SQL store otherwise.
func (f *RepositoryFactory) AccountVersions() AccountVersionRepository {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	if f.accountVersionStore == nil {
		return nil
	}
	return f.accountVersionStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
