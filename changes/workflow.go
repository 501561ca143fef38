package changes

import "github.com/goliatone/go-apiversions/core"

var workflowNotifyURL = resourceChange{
	resource:    "workflow",
	version:     Version20200810,
	description: "notifyURL renamed to notifyUrl",
	up:          core.RenameField("notifyURL", "notifyUrl"),
	down:        core.RenameField("notifyUrl", "notifyURL"),
}
