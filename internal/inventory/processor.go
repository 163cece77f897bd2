package inventory

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor periodically reports ingredients that fell below their minimum
type Processor struct {
	service  *Service
	interval time.Duration // Time between low stock checks
}

func NewProcessor(service *Service, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Processor{
		service:  service,
		interval: interval,
	}
}

// Start runs the check loop until ctx is cancelled
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "low_stock_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting low stock processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down low stock processor")
			return
		case <-ticker.C:
			if _, err := p.CheckLowStock(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to check stock levels")
			}
		}
	}
}

// CheckLowStock logs a warning per ingredient below its minimum and returns how many there were
func (p *Processor) CheckLowStock(ctx context.Context) (int, error) {
	logger := log.With().Str("component", "low_stock_processor").Logger()

	low, err := p.service.LowStock(ctx)
	if err != nil {
		return 0, err
	}

	for _, ing := range low {
		logger.Warn().
			Str("ingredient_id", ing.ID).
			Str("name", ing.Name).
			Str("on_hand", ing.OnHand.String()).
			Str("min_quantity", ing.MinQuantity.String()).
			Str("unit", ing.Unit).
			Msg("ingredient below minimum stock")
	}

	logger.Debug().Int("low_count", len(low)).Msg("low stock check completed")
	return len(low), nil
}
