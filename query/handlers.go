package query

import (
	"context"

	"github.com/goliatone/go-apiversions/core"
)

type ChangeApplier interface {
	ApplyChanges(ctx context.Context, channel core.Channel, req core.ApplyChangesRequest) (core.Params, error)
}

type ChangePlanner interface {
	Plan(channel core.Channel, target string, fromVersion string, toVersion string) (core.TransformationPlan, error)
}

type ChangeReader interface {
	Changes(channel core.Channel, target string) ([]core.ChangeDefinition, error)
}

type CatalogDescriber interface {
	DescribeCatalog() core.CatalogDescription
}

type ApplyChangesQuery struct {
	applier ChangeApplier
}

func NewApplyChangesQuery(applier ChangeApplier) *ApplyChangesQuery {
	return &ApplyChangesQuery{applier: applier}
}

func (q *ApplyChangesQuery) Query(ctx context.Context, msg ApplyChangesMessage) (core.Params, error) {
	if q == nil || q.applier == nil {
		return nil, queryDependencyError("query: change applier is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.applier.ApplyChanges(ctx, core.NormalizeChannel(string(msg.Channel)), msg.Request)
}

type PlanChangesQuery struct {
	planner ChangePlanner
}

func NewPlanChangesQuery(planner ChangePlanner) *PlanChangesQuery {
	return &PlanChangesQuery{planner: planner}
}

func (q *PlanChangesQuery) Query(_ context.Context, msg PlanChangesMessage) (core.TransformationPlan, error) {
	if q == nil || q.planner == nil {
		return core.TransformationPlan{}, queryDependencyError("query: change planner is required")
	}
	if err := msg.Validate(); err != nil {
		return core.TransformationPlan{}, err
	}
	return q.planner.Plan(core.NormalizeChannel(string(msg.Channel)), msg.Target, msg.FromVersion, msg.ToVersion)
}

type ListChangesQuery struct {
	reader ChangeReader
}

func NewListChangesQuery(reader ChangeReader) *ListChangesQuery {
	return &ListChangesQuery{reader: reader}
}

func (q *ListChangesQuery) Query(_ context.Context, msg ListChangesMessage) ([]core.ChangeSummary, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: change reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	definitions, err := q.reader.Changes(core.NormalizeChannel(string(msg.Channel)), msg.Target)
	if err != nil {
		return nil, err
	}
	summaries := make([]core.ChangeSummary, 0, len(definitions))
	for _, definition := range definitions {
		summaries = append(summaries, definition.Summary())
	}
	return summaries, nil
}

type DescribeCatalogQuery struct {
	describer CatalogDescriber
}

func NewDescribeCatalogQuery(describer CatalogDescriber) *DescribeCatalogQuery {
	return &DescribeCatalogQuery{describer: describer}
}

func (q *DescribeCatalogQuery) Query(context.Context, DescribeCatalogMessage) (core.CatalogDescription, error) {
	if q == nil || q.describer == nil {
		return core.CatalogDescription{}, queryDependencyError("query: catalog describer is required")
	}
	return q.describer.DescribeCatalog(), nil
}
