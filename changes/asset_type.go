package changes

import "github.com/goliatone/go-apiversions/core"

var assetTypeTiming = resourceChange{
	resource:    "assetType",
	version:     Version20200810,
	description: "timeUnit moved under timing",
	up:          core.MoveField("timeUnit", "timing.timeUnit"),
	down:        core.MoveField("timing.timeUnit", "timeUnit"),
}
