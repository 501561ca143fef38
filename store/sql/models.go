package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// AccountVersion is the API version an account pinned as its default.
type AccountVersion struct {
	ID         string
	AccountID  string
	APIVersion string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type accountVersionRecord struct {
	bun.BaseModel `bun:"table:api_account_versions,alias:aav"`

	ID         string    `bun:"id,pk"`
	AccountID  string    `bun:"account_id,notnull"`
	APIVersion string    `bun:"api_version,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *accountVersionRecord) toDomain() AccountVersion {
	if r == nil {
		return AccountVersion{}
	}
	return AccountVersion{
		ID:         r.ID,
		AccountID:  r.AccountID,
		APIVersion: r.APIVersion,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}
