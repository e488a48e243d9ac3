package di

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/search"
)

// RouterService holds the source-mode router.
type RouterService struct {
	Router *search.Router
}

// NewRouterService wires the configured provider clients into the router.
// Settings are read through a closure so hot reload takes effect per call.
func NewRouterService(i do.Injector) (*RouterService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	braveSvc := do.MustInvoke[*BraveService](i)
	tavilySvc := do.MustInvoke[*TavilyService](i)
	gateSvc := do.MustInvoke[*RateGateService](i)
	breakerSvc := do.MustInvoke[*BreakerService](i)

	// Typed nil pointers must not become non-nil interfaces.
	var braveClient, tavilyClient search.Client
	if braveSvc.Client != nil {
		braveClient = braveSvc.Client
	}
	if tavilySvc.Client != nil {
		tavilyClient = tavilySvc.Client
	}

	settings := func() search.Settings {
		return cfgSvc.Get().SearchSettings()
	}

	log.Info().
		Bool("brave", braveClient != nil).
		Bool("tavily", tavilyClient != nil).
		Str("source_mode", string(settings().Mode)).
		Msg("search router ready")

	router := search.NewRouter(braveClient, tavilyClient, gateSvc.Gate, breakerSvc.Breaker, settings)
	return &RouterService{Router: router}, nil
}
