package command

import (
	"context"

	"github.com/goliatone/go-apiversions/core"
	gocmd "github.com/goliatone/go-command"
)

type ChangeRegistrar interface {
	RegisterChanges(channel core.Channel, modules ...core.ChangeModule) error
}

type RegisterChangesCommand struct {
	service ChangeRegistrar
}

func NewRegisterChangesCommand(service ChangeRegistrar) *RegisterChangesCommand {
	return &RegisterChangesCommand{service: service}
}

func (c *RegisterChangesCommand) Execute(ctx context.Context, msg RegisterChangesMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: change registrar is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	channel := core.NormalizeChannel(string(msg.Channel))
	if err := c.service.RegisterChanges(channel, msg.Modules...); err != nil {
		return err
	}
	storeResult(ctx, RegisterChangesResult{Channel: channel, Modules: len(msg.Modules)})
	return nil
}

type RegisterChangesResult struct {
	Channel core.Channel
	Modules int
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
