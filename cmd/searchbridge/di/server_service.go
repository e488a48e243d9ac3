package di

import (
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/mcp"
)

// ServerService holds the HTTP server. Lifecycle is owned by the serve
// command, which starts it and shuts it down with a deadline.
type ServerService struct {
	Server *mcp.Server
}

// NewServerService builds the server on the configured listen address.
func NewServerService(i do.Injector) (*ServerService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()
	handlerSvc := do.MustInvoke[*HandlerService](i)

	server := mcp.NewServer(cfg.Server.GetListen(), handlerSvc.Handler, cfg.Server.EnableHTTP2)
	return &ServerService{Server: server}, nil
}
