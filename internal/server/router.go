package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/radiojournal/backend/internal/auth"
	"github.com/radiojournal/backend/internal/journal"
	"github.com/radiojournal/backend/internal/metrics"
	"go.uber.org/zap"
)

const adminSubjectContextKey = "radiojournal_admin_subject"

var (
	errMissingJournal       = errors.New("journal dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// Journal is the read and station management surface the API exposes.
type Journal interface {
	GetStation(ctx context.Context, stationID journal.StationID) (journal.Station, error)
	ListStations(ctx context.Context, limit int) ([]journal.Station, error)
	CreateStation(ctx context.Context, request journal.NewStation) (journal.Station, error)
	ListPlays(ctx context.Context, query journal.PlaysQuery) ([]journal.Play, string, error)
	ListTracks(ctx context.Context, stationID journal.StationID, limit int, token string) ([]journal.Track, string, error)
	ListTracksByArtist(ctx context.Context, stationID journal.StationID, artist string, limit int, token string) ([]journal.Track, string, error)
	ListPlaysOfTrack(ctx context.Context, stationID journal.StationID, trackID journal.TrackID, limit int, token string) ([]journal.TrackPlay, string, error)
	GetTrack(ctx context.Context, stationID journal.StationID, trackID journal.TrackID) (journal.Track, error)
	BatchGetTrackSummaries(ctx context.Context, stationID journal.StationID, trackIDs []string) (map[string]journal.TrackSummary, error)
}

// TokenValidator validates admin bearer tokens and returns their subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	Journal        Journal
	TokenManager   TokenValidator
	Live           *LiveDispatcher
	Metrics        *metrics.Collectors
	MetricsHandler http.Handler
	Logger         *zap.Logger
	Clock          func() time.Time
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Journal == nil {
		return nil, errMissingJournal
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		journal: deps.Journal,
		tokens:  deps.TokenManager,
		live:    deps.Live,
		metrics: deps.Metrics,
		logger:  logger,
		clock:   clock,
	}
	router.Use(handler.observeRequest)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	v1 := router.Group("/v1")
	v1.GET("/stations", handler.handleListStations)
	v1.GET("/station/:station_id", handler.handleGetStation)
	v1.GET("/station/:station_id/plays", handler.handleListPlays)
	v1.GET("/station/:station_id/tracks", handler.handleListTracks)
	v1.GET("/station/:station_id/track/:track_id", handler.handleGetTrack)
	v1.GET("/station/:station_id/track/:track_id/plays", handler.handleListPlaysOfTrack)
	if deps.Live != nil {
		v1.GET("/station/:station_id/live", handler.handleLiveStream)
	}

	admin := v1.Group("/")
	admin.Use(handler.authorizeRequest)
	admin.POST("/stations", handler.handleCreateStation)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:          12 * time.Hour,
	})
}

type httpHandler struct {
	journal Journal
	tokens  TokenValidator
	live    *LiveDispatcher
	metrics *metrics.Collectors
	logger  *zap.Logger
	clock   func() time.Time
}

func (h *httpHandler) observeRequest(c *gin.Context) {
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	h.metrics.ObserveRequest(route, c.Writer.Status())
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, errInvalidAuthorization.Error())
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, errInvalidAuthorization.Error())
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}
	c.Set(adminSubjectContextKey, subject)
	c.Next()
}
