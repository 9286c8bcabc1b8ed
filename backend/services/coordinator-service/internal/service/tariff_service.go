package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"chargehub/backend/services/coordinator-service/internal/models"
	"chargehub/backend/services/coordinator-service/internal/repository"
)

// TariffService provides tariff lookups with fallback.
type TariffService struct {
	repo          repository.TariffStore
	defaultTariff models.Tariff
	logger        *zap.Logger
}

// NewTariffService returns service instance. repo may be nil.
func NewTariffService(repo repository.TariffStore, defaultRate float64, logger *zap.Logger) *TariffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TariffService{
		repo: repo,
		defaultTariff: models.Tariff{
			Name:       "Default",
			RatePerKWh: defaultRate,
			IsActive:   true,
		},
		logger: logger,
	}
}

// ActiveTariff returns currently active tariff or default fallback.
func (s *TariffService) ActiveTariff(ctx context.Context) (*models.Tariff, error) {
	if s.repo == nil {
		if s.defaultTariff.RatePerKWh <= 0 {
			return nil, errors.New("tariff: no tariff configured")
		}
		return &s.defaultTariff, nil
	}

	tariff, err := s.repo.GetActiveTariff(ctx)
	if err != nil {
		if s.defaultTariff.RatePerKWh <= 0 {
			return nil, err
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("tariff lookup failed, using default", zap.Error(err))
		}
		return &s.defaultTariff, nil
	}
	return tariff, nil
}

// RatePerKWh is the price per kWh of the active tariff.
func (s *TariffService) RatePerKWh(ctx context.Context) (float64, error) {
	t, err := s.ActiveTariff(ctx)
	if err != nil {
		return 0, err
	}
	return t.RatePerKWh, nil
}
