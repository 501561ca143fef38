package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func accountVersionHandlers() repository.ModelHandlers[*accountVersionRecord] {
	return repository.ModelHandlers[*accountVersionRecord]{
		NewRecord: func() *accountVersionRecord {
			return &accountVersionRecord{}
		},
		GetID: func(record *accountVersionRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *accountVersionRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "account_id"
		},
		GetIdentifierValue: func(record *accountVersionRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.AccountID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
