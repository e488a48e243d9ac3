package di

import (
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/brave"
	"github.com/searchbridge/searchbridge/internal/health"
	"github.com/searchbridge/searchbridge/internal/rategate"
	"github.com/searchbridge/searchbridge/internal/tavily"
)

// RateGateService holds the brave request pacer.
type RateGateService struct {
	Gate *rategate.Gate
}

// NewRateGateService builds the gate from the configured minimum interval.
func NewRateGateService(i do.Injector) (*RateGateService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()
	return &RateGateService{Gate: rategate.New("brave", cfg.Brave.GetMinInterval())}, nil
}

// BreakerService holds the brave circuit breaker.
type BreakerService struct {
	Breaker *health.Breaker
}

// NewBreakerService builds the breaker guarding brave upstream calls.
func NewBreakerService(i do.Injector) (*BreakerService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()
	loggerSvc := do.MustInvoke[*LoggerService](i)

	return &BreakerService{Breaker: health.NewBreaker("brave", cfg.Health, &loggerSvc.Logger)}, nil
}

// BraveService holds the brave client. Client is nil without an API key.
type BraveService struct {
	Client *brave.Client
}

// NewBraveService builds the brave HTTP client when an API key is set.
func NewBraveService(i do.Injector) (*BraveService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()

	if !cfg.Brave.IsConfigured() {
		log.Info().Msg("brave not configured, skipping")
		return &BraveService{}, nil
	}

	client := brave.New(cfg.Brave.APIKey, brave.Options{
		BaseURL: cfg.Brave.BaseURL,
		Timeout: cfg.Brave.GetTimeout(),
	})
	return &BraveService{Client: client}, nil
}

// TavilyService holds the rotating tavily client. Client is nil without
// configured keys.
type TavilyService struct {
	Client *tavily.RotatingClient
}

// NewTavilyService wraps the tavily HTTP client with key rotation backed by
// the pool.
func NewTavilyService(i do.Injector) (*TavilyService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()
	poolSvc := do.MustInvoke[*KeyPoolService](i)

	if poolSvc.Pool == nil {
		log.Info().Msg("tavily not configured, skipping")
		return &TavilyService{}, nil
	}

	api := tavily.New(tavily.Options{BaseURL: cfg.Tavily.BaseURL})
	client := tavily.NewRotatingClient(api, poolSvc.Pool, tavily.RotatingConfig{
		MaxRetries:    cfg.Tavily.MaxRetries,
		FixedCooldown: cfg.Tavily.GetCooldown(),
	})
	return &TavilyService{Client: client}, nil
}
