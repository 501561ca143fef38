package changes

import "github.com/goliatone/go-apiversions/core"

var webhookTargetURL = resourceChange{
	resource:    "webhook",
	version:     Version20200810,
	description: "targetURL renamed to targetUrl",
	up:          core.RenameField("targetURL", "targetUrl"),
	down:        core.RenameField("targetUrl", "targetURL"),
}
