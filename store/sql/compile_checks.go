package sqlstore

import "github.com/goliatone/go-apiversions/transport"

var (
	_ AccountVersionRepository       = (*AccountVersionStore)(nil)
	_ AccountVersionRepository       = (*CachedAccountVersionStore)(nil)
	_ transport.AccountVersionSource = (*AccountVersionStore)(nil)
	_ transport.AccountVersionSource = (*CachedAccountVersionStore)(nil)
)
