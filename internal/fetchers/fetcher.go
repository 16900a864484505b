// Package fetchers reads the currently playing song from the external sources
// a station can be configured with.
package fetchers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/radiojournal/backend/internal/journal"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.3"
)

var (
	// ErrUnsupportedFetcher indicates a config whose kind has no registered fetcher.
	ErrUnsupportedFetcher = errors.New("fetchers: unsupported fetcher")
	// ErrMisconfigured indicates a config routed to the wrong fetcher or missing its parameters.
	ErrMisconfigured = errors.New("fetchers: misconfigured fetcher")
	// ErrUpstream indicates the upstream source answered with an error status or an unusable body.
	ErrUpstream = errors.New("fetchers: upstream error")
	// ErrNothingPlaying indicates the upstream source reported no current song.
	ErrNothingPlaying = errors.New("fetchers: nothing playing")
)

// Fetcher reports what is on air for one fetcher configuration.
type Fetcher interface {
	FetchPlay(ctx context.Context, config journal.FetcherConfig) (journal.Observation, error)
}

// Config bundles the dependencies shared by every fetcher.
type Config struct {
	HTTPClient      *http.Client
	Timeout         time.Duration
	UserAgent       string
	CoolismUsername string
	CoolismPassword string
	Logger          *zap.Logger
	Clock           func() time.Time
}

// Registry dispatches a fetcher config to the fetcher of its kind.
type Registry struct {
	fetchers map[journal.FetcherKind]Fetcher
	logger   *zap.Logger
}

// NewRegistry wires the coolism, iheart and atime fetchers against their public endpoints.
func NewRegistry(cfg Config) *Registry {
	client := newHTTPClient(cfg)
	registry := &Registry{
		fetchers: make(map[journal.FetcherKind]Fetcher, 3),
		logger:   client.logger,
	}
	registry.Register(journal.FetcherCoolism, newCoolism(client, cfg.CoolismUsername, cfg.CoolismPassword))
	registry.Register(journal.FetcherIHeart, newIHeart(client))
	registry.Register(journal.FetcherAtime, newAtime(client))
	return registry
}

// Register replaces the fetcher used for kind.
func (r *Registry) Register(kind journal.FetcherKind, fetcher Fetcher) {
	r.fetchers[kind] = fetcher
}

// FetchPlay validates config and delegates to the fetcher registered for its kind.
func (r *Registry) FetchPlay(ctx context.Context, config journal.FetcherConfig) (journal.Observation, error) {
	if err := config.Validate(); err != nil {
		return journal.Observation{}, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	fetcher, ok := r.fetchers[config.Kind]
	if !ok {
		return journal.Observation{}, fmt.Errorf("%w: %s", ErrUnsupportedFetcher, config.Kind)
	}
	observed, err := fetcher.FetchPlay(ctx, config)
	if err != nil {
		return journal.Observation{}, err
	}
	r.logger.Debug("fetched play",
		zap.String("fetcher", config.String()),
		zap.String("artist", observed.Artist),
		zap.String("title", observed.Title))
	return observed, nil
}

// httpClient carries the transport and default headers shared by the fetchers.
type httpClient struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger
	clock     func() time.Time
}

func newHTTPClient(cfg Config) *httpClient {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &httpClient{
		client:    client,
		timeout:   timeout,
		userAgent: userAgent,
		logger:    logger,
		clock:     clock,
	}
}

// doJSON sends req with the shared headers and a per-request timeout and
// decodes a 200 response into out.
func (c *httpClient) doJSON(ctx context.Context, req *http.Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	response, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s %s returned status %d", ErrUpstream, req.Method, req.URL.Path, response.StatusCode)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, req.URL.Path, err)
	}
	return nil
}

func observation(artist, title string) (journal.Observation, error) {
	if strings.TrimSpace(artist) == "" || strings.TrimSpace(title) == "" {
		return journal.Observation{}, ErrNothingPlaying
	}
	return journal.Observation{Artist: artist, Title: title, IsSong: true}, nil
}
