package changes

import "github.com/goliatone/go-apiversions/core"

// resourceChange describes one reversible rewrite of a resource object.
// It is expanded into request targets (create, update) and response targets
// (read, create, update, list pages, created/updated events).
type resourceChange struct {
	resource    string
	version     string
	description string
	up          core.ChangeFunc
	down        core.ChangeFunc
}

func (c resourceChange) requestModule() core.ChangeModule {
	return core.ChangeModule{
		Name: c.resource,
		Changes: []core.ChangeConfig{
			c.config(c.resource+".create", c.up, c.down),
			c.config(c.resource+".update", c.up, c.down),
		},
	}
}

func (c resourceChange) responseModule() core.ChangeModule {
	return core.ChangeModule{
		Name: c.resource,
		Changes: []core.ChangeConfig{
			c.config(c.resource+".read", c.up, c.down),
			c.config(c.resource+".create", c.up, c.down),
			c.config(c.resource+".update", c.up, c.down),
			c.config(
				c.resource+".list",
				core.Compose(paginationResponseUp(), core.ForEachItem("results", c.up)),
				core.Compose(core.ForEachItem("results", c.down), legacyPageFields),
			),
			c.config(EventTarget(c.resource+".created"), c.up, c.down),
			c.config(EventTarget(c.resource+".updated"), c.up, c.down),
		},
	}
}

func (c resourceChange) config(target string, up core.ChangeFunc, down core.ChangeFunc) core.ChangeConfig {
	return core.ChangeConfig{
		Target:      target,
		Version:     c.version,
		Description: c.description,
		Up:          up,
		Down:        down,
	}
}

// EventTarget is the response target used to shape outbound events.
func EventTarget(eventType string) string {
	return "event." + eventType
}
