package changes

import "github.com/goliatone/go-apiversions/core"

// Legacy clients send and receive permissions as one comma separated string.
var rolePermissions = resourceChange{
	resource:    "role",
	version:     Version20200810,
	description: "permissions string became a list",
	up:          core.TransformField("permissions", core.SplitString(",")),
	down:        core.TransformField("permissions", core.JoinStrings(",")),
}
