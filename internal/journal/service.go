// Package journal implements the play journal: station bookkeeping, play
// logging with optimistic concurrency, and cursor-paginated history queries.
package journal

import (
	"errors"
	"time"

	"github.com/radiojournal/backend/internal/keys"
	"github.com/radiojournal/backend/internal/store"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 100
)

var noOpLogger = zap.NewNop()

type ServiceConfig struct {
	Store      store.Store
	Clock      func() time.Time
	IDProvider keys.IDProvider
	Logger     *zap.Logger
}

type Service struct {
	store      store.Store
	clock      func() time.Time
	idProvider keys.IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		store:      cfg.Store,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// clampLimit maps a requested page size into [1, maxLimit], treating zero or less as the default.
func clampLimit(limit int) int32 {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return int32(limit)
	}
}

// fail logs err once and wraps it in a ServiceError. Condition failures and
// validation errors are expected outcomes and logged at lower levels.
func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	err = classify(err)
	switch {
	case errors.Is(err, ErrValidationFailed), errors.Is(err, ErrNotFound):
		s.logDebug(operation, reason, err, fields...)
	case errors.Is(err, ErrConditionFailed):
		s.logWarn(operation, reason, err, fields...)
	default:
		s.logError(operation, reason, err, fields...)
	}
	return newServiceError(operation, reason, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func serviceFields(operation, reason string, err error, fields []zap.Field) []zap.Field {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	return append(attrs, fields...)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Error("journal service error", serviceFields(operation, reason, err, fields)...)
}

func (s *Service) logWarn(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Warn("journal write rejected", serviceFields(operation, reason, err, fields)...)
}

func (s *Service) logDebug(operation, reason string, err error, fields ...zap.Field) {
	s.loggerOrDefault().Debug("journal request rejected", serviceFields(operation, reason, err, fields)...)
}
