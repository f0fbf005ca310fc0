package history

import (
	"context"
	"time"

	"codeberg.org/mutker/pgmon/internal/errors"
	"codeberg.org/mutker/pgmon/internal/logger"
)

type service struct {
	store Store
	cfg   Config
}

// No-op implementation
type noopStore struct{}

// NewService validates the configuration and returns a ready Store.
// When the history store is disabled it returns a no-op store, so
// callers record and query unconditionally.
func NewService(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History store disabled, using no-op store")
		return &noopStore{}, nil
	}

	store, err := NewStore(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to open history store")
		return nil, err
	}

	return &service{
		store: store,
		cfg:   cfg,
	}, nil
}

func (s *service) RecordMetric(ctx context.Context, sample Sample) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return s.store.RecordMetric(ctx, sample)
}

func (s *service) Aggregate(ctx context.Context, category, name string, lookback time.Duration) (*AggregateResult, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	return s.store.Aggregate(ctx, category, name, lookback)
}

func (s *service) LatestSamples(ctx context.Context, window time.Duration) ([]Sample, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	return s.store.LatestSamples(ctx, window)
}

func (s *service) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	return s.store.PurgeOlderThan(ctx, age)
}

func (s *service) RecordAlert(ctx context.Context, alert Alert) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	return s.store.RecordAlert(ctx, alert)
}

func (s *service) RecentAlerts(ctx context.Context, window time.Duration, minSeverity Severity) ([]Alert, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	return s.store.RecentAlerts(ctx, window, minSeverity)
}

func (s *service) PurgeAlertsOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	return s.store.PurgeAlertsOlderThan(ctx, age)
}

func (s *service) Close() error {
	if err := s.store.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.New().Wrap(ErrOperationTimeout, ctx.Err())
	default:
		return nil
	}
}

// No-op implementation
func (*noopStore) RecordMetric(_ context.Context, _ Sample) error {
	return nil
}

func (*noopStore) Aggregate(_ context.Context, _, _ string, _ time.Duration) (*AggregateResult, error) {
	return nil, nil
}

func (*noopStore) LatestSamples(_ context.Context, _ time.Duration) ([]Sample, error) {
	return []Sample{}, nil
}

func (*noopStore) PurgeOlderThan(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (*noopStore) RecordAlert(_ context.Context, _ Alert) error {
	return nil
}

func (*noopStore) RecentAlerts(_ context.Context, _ time.Duration, _ Severity) ([]Alert, error) {
	return []Alert{}, nil
}

func (*noopStore) PurgeAlertsOlderThan(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (*noopStore) Close() error {
	return nil
}
