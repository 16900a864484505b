package main

import (
	"context"
	"fmt"
	"time"

	"github.com/radiojournal/backend/internal/auth"
	"github.com/radiojournal/backend/internal/config"
	"github.com/radiojournal/backend/internal/fetchers"
	"github.com/radiojournal/backend/internal/journal"
	"github.com/radiojournal/backend/internal/keys"
	"github.com/radiojournal/backend/internal/logging"
	"github.com/radiojournal/backend/internal/store"
	"github.com/radiojournal/backend/internal/store/dynamostore"
	"github.com/radiojournal/backend/internal/store/sqlstore"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	tokenIssuer   = "radiojournal-admin"
	tokenAudience = "radiojournal-api"
)

type journalStore interface {
	store.Store
	EnsureTable(ctx context.Context) error
}

// runtime holds what every command needs: configuration, a logger, the store
// and the journal service over it.
type runtime struct {
	cfg        config.AppConfig
	logger     *zap.Logger
	store      journalStore
	closeStore func() error
	journal    *journal.Service
}

func newRuntime(ctx context.Context) (*runtime, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	backing, closeStore, err := openStore(ctx, appConfig, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	service, err := journal.NewService(journal.ServiceConfig{
		Store:      backing,
		Clock:      time.Now,
		IDProvider: keys.NewIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	return &runtime{
		cfg:        appConfig,
		logger:     logger,
		store:      backing,
		closeStore: closeStore,
		journal:    service,
	}, nil
}

func (r *runtime) Close() {
	if err := r.closeStore(); err != nil {
		r.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = r.logger.Sync()
}

func (r *runtime) fetcherRegistry() *fetchers.Registry {
	return fetchers.NewRegistry(fetchers.Config{
		Timeout:         r.cfg.FetcherTimeout,
		CoolismUsername: r.cfg.CoolismUsername,
		CoolismPassword: r.cfg.CoolismPassword,
		Logger:          r.logger.Named("fetchers"),
	})
}

func newTokenIssuer(cfg config.AppConfig) (*auth.TokenIssuer, error) {
	if err := cfg.RequireSigningSecret(); err != nil {
		return nil, err
	}
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(cfg.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      cfg.TokenTTL,
	})
}

func openStore(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (journalStore, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		backing, err := sqlstore.Open(sqlstore.Config{
			Path:      cfg.SQLitePath,
			TableName: cfg.StoreTable,
			Logger:    logger.Named("sqlstore"),
		})
		if err != nil {
			return nil, nil, err
		}
		return backing, backing.Close, nil
	case config.StoreDriverDynamoDB:
		backing, err := dynamostore.Open(ctx, dynamostore.Config{
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.AWSEndpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			TableName:       cfg.StoreTable,
			Logger:          logger.Named("dynamostore"),
		})
		if err != nil {
			return nil, nil, err
		}
		return backing, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
