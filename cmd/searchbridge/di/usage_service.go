package di

import (
	"github.com/samber/do/v2"

	"github.com/searchbridge/searchbridge/internal/usage"
)

// UsageService holds the async usage logger.
type UsageService struct {
	Logger *usage.Logger
}

// NewUsageService builds the usage logger over the shared store.
func NewUsageService(i do.Injector) (*UsageService, error) {
	cfg := do.MustInvoke[*ConfigService](i).Get()
	storeSvc := do.MustInvoke[*StoreService](i)

	return &UsageService{Logger: usage.NewLogger(storeSvc.Store, cfg.Usage.LoggerConfig())}, nil
}

// Shutdown drains in-flight usage writes.
func (s *UsageService) Shutdown() error {
	s.Logger.Wait()
	return nil
}
