package changes

import (
	"context"

	"github.com/goliatone/go-apiversions/core"
)

// ListTargets are the list endpoints that share the pagination contract.
func ListTargets() []string {
	resources := resourceChanges()
	targets := make([]string, 0, len(resources))
	for _, change := range resources {
		targets = append(targets, change.resource+".list")
	}
	return targets
}

// Offset pagination gave way to cursor pagination at 2020-08-10. Requests
// lose the page number; nbResultsPerPage is kept as is.
func paginationRequestModule() core.ChangeModule {
	module := core.ChangeModule{Name: "beforeAll"}
	for _, target := range ListTargets() {
		module.Changes = append(module.Changes, core.ChangeConfig{
			Target:      target,
			Version:     Version20200810,
			Description: "page dropped in favor of cursor pagination",
			Up:          core.DropField("page"),
		})
	}
	return module
}

// Responses keep one change per list target, so the page shape is folded
// into the list change of each resource.
func paginationResponseUp() core.ChangeFunc {
	return core.Compose(core.DropField("nbResults"), core.DropField("page"))
}

// legacyPageFields fills the page fields legacy list clients expect. Cursor
// pages carry no page index, so page is lossy: it is 1 unless the backend
// already reported one.
func legacyPageFields(_ context.Context, params core.Params, _ core.ChangeContext) (core.Params, error) {
	results, ok := params["results"].([]any)
	if !ok {
		return params, nil
	}
	if _, cursor := params["hasNextPage"]; !cursor {
		return params, nil
	}
	params["nbResults"] = len(results)
	if _, ok := params["page"]; !ok {
		params["page"] = 1
	}
	return params, nil
}
