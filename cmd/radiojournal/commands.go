package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/radiojournal/backend/internal/config"
	"github.com/radiojournal/backend/internal/journal"
	"github.com/radiojournal/backend/internal/logging"
	"github.com/radiojournal/backend/internal/metrics"
	"github.com/radiojournal/backend/internal/poller"
	"github.com/radiojournal/backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var (
		withPoller   bool
		pollInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), withPoller, pollInterval)
		},
	}
	cmd.Flags().String("http-address", config.NewViper().GetString("http.address"), "HTTP listen address")
	cmd.Flags().BoolVar(&withPoller, "poll", false, "Run the poller in process and stream its plays to /live")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "In-process poll interval (defaults to poller.interval; implies --poll)")
	if err := viper.BindPFlag("http.address", cmd.Flags().Lookup("http-address")); err != nil {
		panic(err)
	}
	return cmd
}

func runServe(ctx context.Context, withPoller bool, pollInterval time.Duration) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(signalCtx)
	if err != nil {
		return err
	}
	defer rt.Close()

	tokenManager, err := newTokenIssuer(rt.cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collectorSet := metrics.New(registry)
	live := server.NewLiveDispatcher()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Journal:        rt.journal,
		TokenManager:   tokenManager,
		Live:           live,
		Metrics:        collectorSet,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:         rt.logger.Named("http"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              rt.cfg.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		rt.logger.Info("server starting", zap.String("address", rt.cfg.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if withPoller || pollInterval > 0 {
		if pollInterval <= 0 {
			pollInterval = rt.cfg.PollerInterval
		}
		stationPoller, err := poller.New(poller.Config{
			Journal:      rt.journal,
			Fetcher:      rt.fetcherRegistry(),
			Sink:         live,
			Metrics:      collectorSet,
			Logger:       rt.logger.Named("poller"),
			StationLimit: rt.cfg.PollerStationLimit,
		})
		if err != nil {
			return err
		}
		group.Go(func() error {
			rt.logger.Info("poller starting", zap.Duration("interval", pollInterval))
			return stationPoller.Run(groupCtx, pollInterval)
		})
	}

	return group.Wait()
}

func newPollCommand() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll every station once, or periodically with --watch",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(signalCtx)
			if err != nil {
				return err
			}
			defer rt.Close()

			stationPoller, err := poller.New(poller.Config{
				Journal:      rt.journal,
				Fetcher:      rt.fetcherRegistry(),
				Metrics:      metrics.New(nil),
				Logger:       rt.logger.Named("poller"),
				StationLimit: rt.cfg.PollerStationLimit,
			})
			if err != nil {
				return err
			}

			if watch || interval > 0 {
				if interval <= 0 {
					interval = rt.cfg.PollerInterval
				}
				return stationPoller.Run(signalCtx, interval)
			}

			report, err := stationPoller.RunOnce(signalCtx)
			for _, station := range report.Stations {
				switch {
				case station.Err != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\terror: %v\n", station.StationID, station.Name, station.Err)
				case station.Result != nil:
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s - %s\n", station.StationID, station.Name,
						station.Result.Kind, station.Result.Artist, station.Result.Title)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep polling every poller.interval until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (implies --watch)")
	return cmd
}

func newCreateTableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create-table",
		Short: "Create the journal table and its secondary index if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.store.EnsureTable(cmd.Context()); err != nil {
				return err
			}
			rt.logger.Info("table ready", zap.String("table", rt.cfg.StoreTable), zap.String("driver", rt.cfg.StoreDriver))
			return nil
		},
	}
}

func newCreateStationCommand() *cobra.Command {
	var (
		name     string
		location string
		fetcher  string
	)
	cmd := &cobra.Command{
		Use:   "create-station",
		Short: "Create a station",
		RunE: func(cmd *cobra.Command, args []string) error {
			request := journal.NewStation{Name: name}
			if strings.TrimSpace(location) != "" {
				request.Location = &location
			}
			if strings.TrimSpace(fetcher) != "" {
				parsed, err := journal.ParseFetcherConfig(fetcher)
				if err != nil {
					return err
				}
				request.Fetcher = &parsed
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			station, err := rt.journal.CreateStation(cmd.Context(), request)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(station)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Station name")
	cmd.Flags().StringVar(&location, "location", "", "Station location")
	cmd.Flags().StringVar(&fetcher, "fetcher", "", "Fetcher: coolism, iheart:<slug> or atime:<efm|greenwave|chill>")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newIssueTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue an admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			issuer, err := newTokenIssuer(appConfig)
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueAdminToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			logger.Info("admin token issued", zap.String("subject", subject), zap.Int64("expires_in", expiresIn))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
