package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/radiojournal/backend/internal/keys"
)

var (
	// ErrInvalidStationID indicates that a station identifier is not a time-ordered id.
	ErrInvalidStationID = errors.New("journal: invalid station id")
	// ErrInvalidTrackID indicates that a track identifier is not a time-ordered id.
	ErrInvalidTrackID = errors.New("journal: invalid track id")
	// ErrInvalidFetcher indicates an unknown or incomplete fetcher configuration.
	ErrInvalidFetcher = errors.New("journal: invalid fetcher config")
)

// StationID represents a validated station identifier.
type StationID string

// NewStationID validates raw input and returns a StationID.
func NewStationID(rawInput string) (StationID, error) {
	id, err := keys.ParseID(strings.TrimSpace(rawInput))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStationID, err)
	}
	return StationID(id), nil
}

// String returns the underlying string identifier.
func (id StationID) String() string {
	return string(id)
}

// TrackID represents a validated track identifier.
type TrackID string

// NewTrackID validates raw input and returns a TrackID.
func NewTrackID(rawInput string) (TrackID, error) {
	id, err := keys.ParseID(strings.TrimSpace(rawInput))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTrackID, err)
	}
	return TrackID(id), nil
}

// String returns the underlying string identifier.
func (id TrackID) String() string {
	return string(id)
}

// FetcherKind tags the external source feeding a station.
type FetcherKind string

const (
	FetcherCoolism FetcherKind = "coolism"
	FetcherIHeart  FetcherKind = "iheart"
	FetcherAtime   FetcherKind = "atime"
)

// AtimeStation enumerates the channels published by the atime source.
type AtimeStation string

const (
	AtimeEFM       AtimeStation = "efm"
	AtimeGreenwave AtimeStation = "greenwave"
	AtimeChill     AtimeStation = "chill"
)

// FetcherConfig is a closed tagged variant: Slug is only set for iheart and
// Station only for atime.
type FetcherConfig struct {
	Kind    FetcherKind  `dynamodbav:"id" json:"id"`
	Slug    string       `dynamodbav:"slug,omitempty" json:"slug,omitempty"`
	Station AtimeStation `dynamodbav:"station,omitempty" json:"station,omitempty"`
}

// Validate checks that the variant carries exactly the fields it needs.
func (c FetcherConfig) Validate() error {
	switch c.Kind {
	case FetcherCoolism:
		if c.Slug != "" || c.Station != "" {
			return fmt.Errorf("%w: coolism takes no parameters", ErrInvalidFetcher)
		}
	case FetcherIHeart:
		if strings.TrimSpace(c.Slug) == "" {
			return fmt.Errorf("%w: iheart requires a slug", ErrInvalidFetcher)
		}
		if c.Station != "" {
			return fmt.Errorf("%w: iheart takes no station", ErrInvalidFetcher)
		}
	case FetcherAtime:
		switch c.Station {
		case AtimeEFM, AtimeGreenwave, AtimeChill:
		default:
			return fmt.Errorf("%w: unknown atime station %q", ErrInvalidFetcher, c.Station)
		}
		if c.Slug != "" {
			return fmt.Errorf("%w: atime takes no slug", ErrInvalidFetcher)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFetcher, c.Kind)
	}
	return nil
}

// String renders the config in the form accepted by ParseFetcherConfig.
func (c FetcherConfig) String() string {
	switch c.Kind {
	case FetcherIHeart:
		return fmt.Sprintf("%s:%s", c.Kind, c.Slug)
	case FetcherAtime:
		return fmt.Sprintf("%s:%s", c.Kind, c.Station)
	default:
		return string(c.Kind)
	}
}

// ParseFetcherConfig reads "coolism", "iheart:<slug>" or "atime:<station>".
func ParseFetcherConfig(raw string) (FetcherConfig, error) {
	kind, param, _ := strings.Cut(strings.TrimSpace(raw), ":")
	config := FetcherConfig{Kind: FetcherKind(strings.ToLower(kind))}
	switch config.Kind {
	case FetcherIHeart:
		config.Slug = param
	case FetcherAtime:
		config.Station = AtimeStation(strings.ToLower(param))
	default:
		if param != "" {
			return FetcherConfig{}, fmt.Errorf("%w: %q", ErrInvalidFetcher, raw)
		}
	}
	if err := config.Validate(); err != nil {
		return FetcherConfig{}, err
	}
	return config, nil
}

// LatestPlay is the denormalized pointer a station keeps to its newest play.
type LatestPlay struct {
	ID      string `dynamodbav:"id" json:"id"`
	TrackID string `dynamodbav:"track_id" json:"track_id"`
	Artist  string `dynamodbav:"artist" json:"artist"`
	Title   string `dynamodbav:"title" json:"title"`
}

// Station is a radio station and its play accounting. UpdatedTS is the
// optimistic lock token for every station write.
type Station struct {
	ID          string         `dynamodbav:"id" json:"id"`
	Name        string         `dynamodbav:"name" json:"name"`
	Location    *string        `dynamodbav:"location" json:"location"`
	Fetcher     *FetcherConfig `dynamodbav:"fetcher" json:"fetcher"`
	FirstPlayID *string        `dynamodbav:"first_play_id" json:"first_play_id"`
	LatestPlay  *LatestPlay    `dynamodbav:"latest_play" json:"latest_play"`
	TrackCount  int64          `dynamodbav:"track_count" json:"track_count"`
	PlayCount   int64          `dynamodbav:"play_count" json:"play_count"`
	CreatedTS   time.Time      `dynamodbav:"created_ts" json:"created_ts"`
	UpdatedTS   time.Time      `dynamodbav:"updated_ts" json:"updated_ts"`
}

// Track is a distinct (artist, title) pair heard on a station.
type Track struct {
	ID           string    `dynamodbav:"id" json:"id"`
	Title        string    `dynamodbav:"title" json:"title"`
	Artist       string    `dynamodbav:"artist" json:"artist"`
	IsSong       bool      `dynamodbav:"is_song" json:"is_song"`
	PlayCount    int64     `dynamodbav:"play_count" json:"play_count"`
	LatestPlayID *string   `dynamodbav:"latest_play_id" json:"latest_play_id"`
	CreatedTS    time.Time `dynamodbav:"created_ts" json:"created_ts"`
	UpdatedTS    time.Time `dynamodbav:"updated_ts" json:"updated_ts"`
}

// TrackSummary is the projection of a track joined onto listed plays.
type TrackSummary struct {
	ID     string `dynamodbav:"id" json:"id"`
	Title  string `dynamodbav:"title" json:"title"`
	Artist string `dynamodbav:"artist" json:"artist"`
	IsSong bool   `dynamodbav:"is_song" json:"is_song"`
}

// TrackMetadata resolves (station, artist, title) to a track.
type TrackMetadata struct {
	TrackID string `dynamodbav:"track_id" json:"track_id"`
}

// Play is one contiguous airing of a track. Repeated observations of the same
// airing only advance UpdatedTS.
type Play struct {
	ID        string    `dynamodbav:"id" json:"id"`
	TrackID   string    `dynamodbav:"track_id" json:"track_id"`
	CreatedTS time.Time `dynamodbav:"created_ts" json:"created_ts"`
	UpdatedTS time.Time `dynamodbav:"updated_ts" json:"updated_ts"`
}

// TrackPlay is the secondary index projection of a play. CreatedTS is derived
// from the play id.
type TrackPlay struct {
	ID        string    `dynamodbav:"id" json:"id"`
	TrackID   string    `dynamodbav:"track_id" json:"track_id"`
	CreatedTS time.Time `dynamodbav:"-" json:"created_ts"`
}

// Observation is what a fetcher reports as currently on air.
type Observation struct {
	Artist string
	Title  string
	IsSong bool
}

// NewStation describes a station to create.
type NewStation struct {
	Name     string
	Location *string
	Fetcher  *FetcherConfig
}

type stationItem struct {
	PK string `dynamodbav:"pk" json:"pk"`
	SK string `dynamodbav:"sk" json:"sk"`
	Station
}

type trackItem struct {
	PK string `dynamodbav:"pk" json:"pk"`
	SK string `dynamodbav:"sk" json:"sk"`
	Track
}

type trackMetadataItem struct {
	PK string `dynamodbav:"pk" json:"pk"`
	SK string `dynamodbav:"sk" json:"sk"`
	TrackMetadata
}

type playItem struct {
	PK     string `dynamodbav:"pk" json:"pk"`
	SK     string `dynamodbav:"sk" json:"sk"`
	GSI1PK string `dynamodbav:"gsi1pk" json:"gsi1pk"`
	Play
}

// Attribute names referenced by conditional writes and projections.
const (
	attrID           = "id"
	attrTrackID      = "track_id"
	attrTitle        = "title"
	attrArtist       = "artist"
	attrIsSong       = "is_song"
	attrPlayCount    = "play_count"
	attrTrackCount   = "track_count"
	attrLatestPlay   = "latest_play"
	attrLatestPlayID = "latest_play_id"
	attrFirstPlayID  = "first_play_id"
	attrUpdatedTS    = "updated_ts"
)
