package apiversions

import (
	"fmt"

	apiversionscommand "github.com/goliatone/go-apiversions/command"
	apiversionsquery "github.com/goliatone/go-apiversions/query"
)

type CommandQueryService interface {
	apiversionscommand.ChangeRegistrar
	apiversionsquery.ChangeApplier
	apiversionsquery.ChangePlanner
	apiversionsquery.ChangeReader
	apiversionsquery.CatalogDescriber
}

type Commands struct {
	RegisterChanges *apiversionscommand.RegisterChangesCommand
}

type Queries struct {
	ApplyChanges    *apiversionsquery.ApplyChangesQuery
	PlanChanges     *apiversionsquery.PlanChangesQuery
	ListChanges     *apiversionsquery.ListChangesQuery
	DescribeCatalog *apiversionsquery.DescribeCatalogQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("apiversions: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		RegisterChanges: apiversionscommand.NewRegisterChangesCommand(service),
	}
	facade.queries = Queries{
		ApplyChanges:    apiversionsquery.NewApplyChangesQuery(service),
		PlanChanges:     apiversionsquery.NewPlanChangesQuery(service),
		ListChanges:     apiversionsquery.NewListChangesQuery(service),
		DescribeCatalog: apiversionsquery.NewDescribeCatalogQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
