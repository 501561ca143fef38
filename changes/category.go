package changes

import "github.com/goliatone/go-apiversions/core"

var categoryParent = resourceChange{
	resource:    "category",
	version:     Version20200810,
	description: "parentCategoryId renamed to parentId",
	up:          core.RenameField("parentCategoryId", "parentId"),
	down:        core.RenameField("parentId", "parentCategoryId"),
}
