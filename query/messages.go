package query

import (
	"strings"

	"github.com/goliatone/go-apiversions/core"
)

const (
	TypeApplyChanges    = "apiversions.query.changes.apply"
	TypePlanChanges     = "apiversions.query.changes.plan"
	TypeListChanges     = "apiversions.query.changes.list"
	TypeDescribeCatalog = "apiversions.query.catalog.describe"
)

// ApplyChangesMessage runs one payload through a channel transformer.
type ApplyChangesMessage struct {
	Channel core.Channel
	Request core.ApplyChangesRequest
}

func (ApplyChangesMessage) Type() string { return TypeApplyChanges }

func (m ApplyChangesMessage) Validate() error {
	if err := validateChannel(m.Channel); err != nil {
		return err
	}
	return validateRoute(m.Request.Target, m.Request.FromVersion, m.Request.ToVersion)
}

// PlanChangesMessage previews the steps an apply would run without
// touching a payload.
type PlanChangesMessage struct {
	Channel     core.Channel
	Target      string
	FromVersion string
	ToVersion   string
}

func (PlanChangesMessage) Type() string { return TypePlanChanges }

func (m PlanChangesMessage) Validate() error {
	if err := validateChannel(m.Channel); err != nil {
		return err
	}
	return validateRoute(m.Target, m.FromVersion, m.ToVersion)
}

type ListChangesMessage struct {
	Channel core.Channel
	Target  string
}

func (ListChangesMessage) Type() string { return TypeListChanges }

func (m ListChangesMessage) Validate() error {
	if err := validateChannel(m.Channel); err != nil {
		return err
	}
	if strings.TrimSpace(m.Target) == "" {
		return queryValidationError("target", "target is required")
	}
	return nil
}

type DescribeCatalogMessage struct{}

func (DescribeCatalogMessage) Type() string { return TypeDescribeCatalog }

func (DescribeCatalogMessage) Validate() error { return nil }

func validateChannel(channel core.Channel) error {
	normalized := core.NormalizeChannel(string(channel))
	if normalized == "" {
		return queryValidationError("channel", "channel is required")
	}
	if err := normalized.Validate(); err != nil {
		return queryValidationError("channel", "channel must be request or response")
	}
	return nil
}

func validateRoute(target string, fromVersion string, toVersion string) error {
	if strings.TrimSpace(target) == "" {
		return queryValidationError("target", "target is required")
	}
	if strings.TrimSpace(fromVersion) == "" {
		return queryValidationError("from_version", "from version is required")
	}
	if strings.TrimSpace(toVersion) == "" {
		return queryValidationError("to_version", "to version is required")
	}
	return nil
}
