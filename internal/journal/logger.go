package journal

import (
	"context"
	"errors"

	"github.com/radiojournal/backend/internal/store"
	"go.uber.org/zap"
)

// LogResult reports how an observation was recorded. Station is the snapshot
// after the write; the input station is never modified.
type LogResult struct {
	Kind    OutcomeKind
	PlayID  string
	TrackID string
	Artist  string
	Title   string
	Station Station
}

// LogPlay records observation against station. Consecutive observations of the
// same (artist, title) extend the latest play; anything else becomes a new play,
// creating the track on first sight. A stale station yields ErrConditionFailed
// and nothing is written; callers must re-read the station before retrying.
func (s *Service) LogPlay(ctx context.Context, station Station, observation Observation) (LogResult, error) {
	stationField := zap.String("station_id", station.ID)
	if station.ID == "" {
		return LogResult{}, s.fail(opLogPlay, "missing_station_id", validationError("station id is required"))
	}
	if observation.Artist == "" || observation.Title == "" {
		return LogResult{}, s.fail(opLogPlay, "invalid_observation",
			validationError("artist and title are required"), stationField)
	}

	now := s.now()
	var plan writePlan
	if latest := station.LatestPlay; latest != nil && latest.Artist == observation.Artist && latest.Title == observation.Title {
		var err error
		plan, err = planExistingPlay(station, now)
		if err != nil {
			return LogResult{}, s.fail(opLogPlay, "plan_failed", err, stationField)
		}
	} else {
		trackID, found, err := s.lookupTrack(ctx, station.ID, observation.Artist, observation.Title)
		if err != nil {
			return LogResult{}, s.fail(opLogPlay, "track_lookup_failed", err, stationField)
		}
		playID, err := s.idProvider.NewID(now)
		if err != nil {
			return LogResult{}, s.fail(opLogPlay, "id_generation_failed", err, stationField)
		}
		if found {
			plan = planNewPlay(station, observation, trackID, playID, now)
		} else {
			trackID, err = s.idProvider.NewID(now)
			if err != nil {
				return LogResult{}, s.fail(opLogPlay, "id_generation_failed", err, stationField)
			}
			plan = planNewTrack(station, observation, trackID, playID, now)
		}
	}

	if err := s.execute(ctx, plan.Ops); err != nil {
		return LogResult{}, s.fail(opLogPlay, "write_failed", err,
			stationField,
			zap.String("outcome", string(plan.Kind)),
			zap.String("play_id", plan.PlayID),
			zap.String("track_id", plan.TrackID))
	}

	s.loggerOrDefault().Debug("play logged",
		stationField,
		zap.String("outcome", string(plan.Kind)),
		zap.String("play_id", plan.PlayID),
		zap.String("track_id", plan.TrackID))

	return LogResult{
		Kind:    plan.Kind,
		PlayID:  plan.PlayID,
		TrackID: plan.TrackID,
		Artist:  observation.Artist,
		Title:   observation.Title,
		Station: plan.Station,
	}, nil
}

// lookupTrack resolves (artist, title) with a consistent read so that a track
// written moments ago is never duplicated.
func (s *Service) lookupTrack(ctx context.Context, stationID, artist, title string) (string, bool, error) {
	record, err := s.store.Get(ctx, trackMetadataKey(stationID, artist, title), store.GetOptions{ConsistentRead: true})
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var metadata TrackMetadata
	if err := record.Decode(&metadata); err != nil {
		return "", false, err
	}
	return metadata.TrackID, true, nil
}

// execute sends a lone update directly and everything else as one transaction.
func (s *Service) execute(ctx context.Context, ops []store.WriteOp) error {
	if len(ops) == 1 && ops[0].Update != nil {
		return s.store.Update(ctx, *ops[0].Update)
	}
	return s.store.Transact(ctx, ops)
}
