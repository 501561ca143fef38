package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-apiversions/core"
)

const (
	TypeRegisterChanges = "apiversions.command.changes.register"
)

// RegisterChangesMessage adds change modules to one transformer channel.
type RegisterChangesMessage struct {
	Channel core.Channel
	Modules []core.ChangeModule
}

func (RegisterChangesMessage) Type() string { return TypeRegisterChanges }

func (m RegisterChangesMessage) Validate() error {
	if err := validateChannel(m.Channel); err != nil {
		return err
	}
	if len(m.Modules) == 0 {
		return commandValidationError("modules", "at least one change module is required")
	}
	for index, module := range m.Modules {
		if len(module.Changes) == 0 {
			return commandValidationError(
				fmt.Sprintf("modules[%d].changes", index),
				fmt.Sprintf("module %q declares no changes", strings.TrimSpace(module.Name)),
			)
		}
	}
	return nil
}

func validateChannel(channel core.Channel) error {
	normalized := core.NormalizeChannel(string(channel))
	if normalized == "" {
		return commandValidationError("channel", "channel is required")
	}
	if err := normalized.Validate(); err != nil {
		return commandValidationError("channel", "channel must be request or response")
	}
	return nil
}
