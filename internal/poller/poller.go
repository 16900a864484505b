// Package poller periodically asks every configured station's fetcher what is
// on air and records it in the journal.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radiojournal/backend/internal/journal"
	"github.com/radiojournal/backend/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultStationLimit = 100
	defaultConcurrency  = 16
)

var (
	errMissingJournal = errors.New("poller: journal is required")
	errMissingFetcher = errors.New("poller: fetcher is required")
	// ErrInvalidInterval indicates a non-positive polling interval.
	ErrInvalidInterval = errors.New("poller: interval must be positive")
)

// Journal is the part of the journal service the poller drives.
type Journal interface {
	ListStations(ctx context.Context, limit int) ([]journal.Station, error)
	LogPlay(ctx context.Context, station journal.Station, observation journal.Observation) (journal.LogResult, error)
}

// Fetcher reports what a station is playing.
type Fetcher interface {
	FetchPlay(ctx context.Context, config journal.FetcherConfig) (journal.Observation, error)
}

// Sink receives every successfully logged play.
type Sink interface {
	Publish(result journal.LogResult)
}

type Config struct {
	Journal      Journal
	Fetcher      Fetcher
	Sink         Sink
	Metrics      *metrics.Collectors
	Logger       *zap.Logger
	StationLimit int
	Concurrency  int
	Clock        func() time.Time
}

type Poller struct {
	journal      Journal
	fetcher      Fetcher
	sink         Sink
	metrics      *metrics.Collectors
	logger       *zap.Logger
	stationLimit int
	concurrency  int
	clock        func() time.Time
}

// StationResult is the outcome of one station in a pass. Result is nil when
// the station has no fetcher or the pass failed for it.
type StationResult struct {
	StationID string
	Name      string
	Result    *journal.LogResult
	Err       error
}

// Report summarizes a pass.
type Report struct {
	Stations []StationResult
	Elapsed  time.Duration
}

func New(cfg Config) (*Poller, error) {
	if cfg.Journal == nil {
		return nil, errMissingJournal
	}
	if cfg.Fetcher == nil {
		return nil, errMissingFetcher
	}
	stationLimit := cfg.StationLimit
	if stationLimit <= 0 {
		stationLimit = defaultStationLimit
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Poller{
		journal:      cfg.Journal,
		fetcher:      cfg.Fetcher,
		sink:         cfg.Sink,
		metrics:      cfg.Metrics,
		logger:       logger,
		stationLimit: stationLimit,
		concurrency:  concurrency,
		clock:        clock,
	}, nil
}

// RunOnce polls every station that has a fetcher concurrently. A failing
// station does not stop the others; all failures are returned joined once
// every station has finished.
func (p *Poller) RunOnce(ctx context.Context) (Report, error) {
	startedAt := p.clock()
	stations, err := p.journal.ListStations(ctx, p.stationLimit)
	if err != nil {
		return Report{}, fmt.Errorf("list stations: %w", err)
	}

	results := make([]StationResult, len(stations))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)
	polled := 0
	for index, station := range stations {
		results[index] = StationResult{StationID: station.ID, Name: station.Name}
		if station.Fetcher == nil {
			p.logger.Debug("fetcher not configured, skipping station", zap.String("station_id", station.ID))
			p.metrics.ObservePoll("none", metrics.OutcomeSkipped)
			continue
		}
		polled++
		group.Go(func() error {
			result, err := p.pollStation(groupCtx, station)
			results[index].Result = result
			results[index].Err = err
			return nil
		})
	}
	_ = group.Wait()

	elapsed := p.clock().Sub(startedAt)
	p.metrics.ObservePass(polled, elapsed)

	var errs []error
	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, fmt.Errorf("station %s: %w", result.StationID, result.Err))
		}
	}
	p.logger.Info("poll pass finished",
		zap.Int("stations", polled),
		zap.Int("failures", len(errs)),
		zap.Duration("elapsed", elapsed))
	return Report{Stations: results, Elapsed: elapsed}, errors.Join(errs...)
}

func (p *Poller) pollStation(ctx context.Context, station journal.Station) (*journal.LogResult, error) {
	fetcherKind := string(station.Fetcher.Kind)
	fields := []zap.Field{
		zap.String("station_id", station.ID),
		zap.String("station_name", station.Name),
		zap.String("fetcher", station.Fetcher.String()),
	}

	fetchStarted := p.clock()
	observation, err := p.fetcher.FetchPlay(ctx, *station.Fetcher)
	p.metrics.ObserveFetch(fetcherKind, p.clock().Sub(fetchStarted))
	if err != nil {
		p.metrics.ObservePoll(fetcherKind, metrics.OutcomeFetchFailed)
		p.logger.Error("fetch failed", append(fields, zap.Error(err))...)
		return nil, fmt.Errorf("fetch: %w", err)
	}

	result, err := p.journal.LogPlay(ctx, station, observation)
	if err != nil {
		outcome := metrics.OutcomeLogFailed
		if errors.Is(err, journal.ErrConditionFailed) {
			outcome = metrics.OutcomeConflict
		}
		p.metrics.ObservePoll(fetcherKind, outcome)
		p.logger.Error("log play failed", append(fields, zap.Error(err))...)
		return nil, fmt.Errorf("log play: %w", err)
	}

	p.metrics.ObservePoll(fetcherKind, string(result.Kind))
	p.logger.Info("play added",
		append(fields,
			zap.String("outcome", string(result.Kind)),
			zap.String("artist", result.Artist),
			zap.String("title", result.Title),
			zap.String("track_id", result.TrackID),
			zap.String("play_id", result.PlayID))...)
	if p.sink != nil {
		p.sink.Publish(result)
	}
	return &result, nil
}

// Run executes a pass immediately and then on every tick of interval until
// ctx is cancelled. Pass failures are logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Warn("poll pass completed with errors", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
