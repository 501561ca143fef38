package query

import (
	"github.com/goliatone/go-apiversions/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[ApplyChangesMessage, core.Params]                = (*ApplyChangesQuery)(nil)
	_ gocmd.Querier[PlanChangesMessage, core.TransformationPlan]     = (*PlanChangesQuery)(nil)
	_ gocmd.Querier[ListChangesMessage, []core.ChangeSummary]        = (*ListChangesQuery)(nil)
	_ gocmd.Querier[DescribeCatalogMessage, core.CatalogDescription] = (*DescribeCatalogQuery)(nil)
)

var (
	_ ChangeApplier    = (*core.Service)(nil)
	_ ChangePlanner    = (*core.Service)(nil)
	_ ChangeReader     = (*core.Service)(nil)
	_ CatalogDescriber = (*core.Service)(nil)
)
