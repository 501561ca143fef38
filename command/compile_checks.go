package command

import (
	"github.com/goliatone/go-apiversions/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Commander[RegisterChangesMessage] = (*RegisterChangesCommand)(nil)
	_ ChangeRegistrar                         = (*core.Service)(nil)
)
