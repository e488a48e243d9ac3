package di

import (
	"net/http"

	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/mcp"
	"github.com/searchbridge/searchbridge/internal/version"
)

func serverInfo() mcp.ServerInfo {
	return mcp.ServerInfo{Name: "searchbridge", Version: version.Version}
}

// DispatcherService holds the MCP method dispatcher shared by the HTTP and
// stdio transports.
type DispatcherService struct {
	Dispatcher *mcp.Dispatcher
}

// NewDispatcherService wires the router, the tavily client, and the usage
// logger into the dispatcher.
func NewDispatcherService(i do.Injector) (*DispatcherService, error) {
	routerSvc := do.MustInvoke[*RouterService](i)
	tavilySvc := do.MustInvoke[*TavilyService](i)
	usageSvc := do.MustInvoke[*UsageService](i)

	var tavilyClient mcp.TavilyClient
	if tavilySvc.Client != nil {
		tavilyClient = tavilySvc.Client
	}

	dispatcher := mcp.NewDispatcher(routerSvc.Router, tavilyClient, usageSvc.Logger, serverInfo())
	return &DispatcherService{Dispatcher: dispatcher}, nil
}

// HandlerService holds the HTTP transport: session registry plus handler.
type HandlerService struct {
	Handler  http.Handler
	Sessions *mcp.Sessions
}

// NewHandlerService builds the authenticated HTTP handler with session
// management and quota preflight.
func NewHandlerService(i do.Injector) (*HandlerService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()
	authSvc := do.MustInvoke[*AuthService](i)
	dispatcherSvc := do.MustInvoke[*DispatcherService](i)
	poolSvc := do.MustInvoke[*KeyPoolService](i)

	sessions := mcp.NewSessions(cfg.Server.GetSessionTTL())

	var preflight mcp.Preflighter
	if poolSvc.Pool != nil {
		preflight = poolSvc.Pool
	}

	handler := mcp.NewHTTPHandler(authSvc.Authenticator, sessions, dispatcherSvc.Dispatcher, preflight, serverInfo())
	return &HandlerService{Handler: handler, Sessions: sessions}, nil
}
