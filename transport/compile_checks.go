package transport

import (
	"net/http"

	"github.com/goliatone/go-apiversions/core"
)

var (
	_ Requester             = (*DispatchRequester)(nil)
	_ VersionedService      = (*core.Service)(nil)
	_ ClientVersionResolver = (*core.Service)(nil)
	_ http.Handler          = (*Adapter)(nil)
)
