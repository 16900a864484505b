package journal

import (
	"errors"
	"fmt"

	"github.com/radiojournal/backend/internal/store"
)

var (
	// ErrNotFound indicates that the requested entity does not exist.
	ErrNotFound = errors.New("journal: not found")
	// ErrConditionFailed indicates that an optimistic lock or play guard rejected
	// a write. The caller may re-read and retry.
	ErrConditionFailed = errors.New("journal: condition failed")
	// ErrValidationFailed indicates that the request itself is invalid.
	ErrValidationFailed = errors.New("journal: validation failed")
	// ErrStoreUnavailable indicates an infrastructure failure talking to the store.
	ErrStoreUnavailable = errors.New("journal: store unavailable")

	errMissingStore      = errors.New("store is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError carries a dotted machine-readable code next to the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew         = "journal.service.new"
	opGetStation         = "journal.get_station"
	opListStations       = "journal.list_stations"
	opCreateStation      = "journal.create_station"
	opLogPlay            = "journal.log_play"
	opListPlays          = "journal.list_plays"
	opListTracks         = "journal.list_tracks"
	opListTracksByArtist = "journal.list_tracks_by_artist"
	opListPlaysOfTrack   = "journal.list_plays_of_track"
	opGetTrack           = "journal.get_track"
	opBatchGetTracks     = "journal.batch_get_tracks"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// classify attaches the journal sentinel matching a store failure.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrConditionFailed):
		return fmt.Errorf("%w: %w", ErrConditionFailed, err)
	case errors.Is(err, store.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	default:
		return err
	}
}
