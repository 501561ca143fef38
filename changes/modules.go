package changes

import "github.com/goliatone/go-apiversions/core"

func resourceChanges() []resourceChange {
	return []resourceChange{
		assetTypeTiming,
		categoryParent,
		rolePermissions,
		webhookTargetURL,
		workflowNotifyURL,
	}
}

// RequestModules returns the modules for the request transformer. List
// requests only carry pagination changes.
func RequestModules() []core.ChangeModule {
	modules := []core.ChangeModule{paginationRequestModule()}
	for _, change := range resourceChanges() {
		modules = append(modules, change.requestModule())
	}
	return modules
}

func ResponseModules() []core.ChangeModule {
	modules := make([]core.ChangeModule, 0, len(resourceChanges()))
	for _, change := range resourceChanges() {
		modules = append(modules, change.responseModule())
	}
	return modules
}
