package journal

import (
	"time"

	"github.com/radiojournal/backend/internal/keys"
	"github.com/radiojournal/backend/internal/store"
)

// OutcomeKind classifies how an observation was recorded.
type OutcomeKind string

const (
	// OutcomeExistingPlay means the observation continued the station's latest play.
	OutcomeExistingPlay OutcomeKind = "existing_play"
	// OutcomeNewPlay means a new play of a known track was recorded.
	OutcomeNewPlay OutcomeKind = "new_play"
	// OutcomeNewTrack means a new track and its first play were recorded.
	OutcomeNewTrack OutcomeKind = "new_track"
)

// writePlan lists the writes for one observation and the station as it will
// be once they commit.
type writePlan struct {
	Kind    OutcomeKind
	PlayID  string
	TrackID string
	Ops     []store.WriteOp
	Station Station
}

func stationKey(stationID string) store.Key {
	return store.Key{PK: keys.StationsPartition(), SK: keys.StationSort(stationID)}
}

func trackKey(stationID, trackID string) store.Key {
	return store.Key{PK: keys.TracksPartition(stationID), SK: keys.TrackSort(trackID)}
}

func trackMetadataKey(stationID, artist, title string) store.Key {
	return store.Key{PK: keys.ArtistPartition(stationID, artist), SK: keys.TitleSort(title)}
}

func playKey(stationID string, createdAt time.Time, playID string) store.Key {
	return store.Key{PK: keys.PlaysPartition(stationID, createdAt), SK: keys.PlaySort(playID)}
}

// planExistingPlay advances updated_ts of the station's latest play. The play
// partition is recovered from the play id timestamp.
func planExistingPlay(station Station, now time.Time) (writePlan, error) {
	latest := station.LatestPlay
	if latest == nil {
		return writePlan{}, validationError("station %s has no latest play", station.ID)
	}
	createdAt, err := keys.TimestampOf(latest.ID)
	if err != nil {
		return writePlan{}, validationError("latest play id %q: %v", latest.ID, err)
	}

	update := &store.Update{
		Key: playKey(station.ID, createdAt, latest.ID),
		Set: []store.Assignment{{Attr: attrUpdatedTS, Value: now}},
		Conditions: []store.Condition{
			store.Equals(attrID, latest.ID),
			store.Equals(attrTrackID, latest.TrackID),
		},
	}
	return writePlan{
		Kind:    OutcomeExistingPlay,
		PlayID:  latest.ID,
		TrackID: latest.TrackID,
		Ops:     []store.WriteOp{{Update: update}},
		Station: station,
	}, nil
}

// planNewPlay records another play of an existing track.
func planNewPlay(station Station, observation Observation, trackID, playID string, now time.Time) writePlan {
	latest := LatestPlay{ID: playID, TrackID: trackID, Artist: observation.Artist, Title: observation.Title}

	trackUpdate := &store.Update{
		Key: trackKey(station.ID, trackID),
		Set: []store.Assignment{
			{Attr: attrUpdatedTS, Value: now},
			{Attr: attrLatestPlayID, Value: playID},
		},
		Increment:  []store.Increment{{Attr: attrPlayCount, By: 1}},
		Conditions: []store.Condition{store.Exists(attrID)},
	}

	next := station
	next.PlayCount++
	next.LatestPlay = &latest
	next.UpdatedTS = now

	return writePlan{
		Kind:    OutcomeNewPlay,
		PlayID:  playID,
		TrackID: trackID,
		Ops: []store.WriteOp{
			{Put: &store.Put{Item: newPlayItem(station.ID, trackID, playID, now)}},
			{Update: trackUpdate},
			{Update: stationUpdate(station, latest, false, now)},
		},
		Station: next,
	}
}

// planNewTrack records a never-seen track, its lookup row and its first play.
func planNewTrack(station Station, observation Observation, trackID, playID string, now time.Time) writePlan {
	latest := LatestPlay{ID: playID, TrackID: trackID, Artist: observation.Artist, Title: observation.Title}

	track := trackItem{
		PK: keys.TracksPartition(station.ID),
		SK: keys.TrackSort(trackID),
		Track: Track{
			ID:           trackID,
			Title:        observation.Title,
			Artist:       observation.Artist,
			IsSong:       observation.IsSong,
			PlayCount:    1,
			LatestPlayID: &playID,
			CreatedTS:    now,
			UpdatedTS:    now,
		},
	}
	metadataKey := trackMetadataKey(station.ID, observation.Artist, observation.Title)
	metadata := trackMetadataItem{
		PK:            metadataKey.PK,
		SK:            metadataKey.SK,
		TrackMetadata: TrackMetadata{TrackID: trackID},
	}

	next := station
	next.PlayCount++
	next.TrackCount++
	next.LatestPlay = &latest
	next.UpdatedTS = now
	if next.FirstPlayID == nil {
		firstPlayID := playID
		next.FirstPlayID = &firstPlayID
	}

	return writePlan{
		Kind:    OutcomeNewTrack,
		PlayID:  playID,
		TrackID: trackID,
		Ops: []store.WriteOp{
			{Put: &store.Put{Item: track}},
			{Put: &store.Put{Item: metadata}},
			{Put: &store.Put{Item: newPlayItem(station.ID, trackID, playID, now)}},
			{Update: stationUpdate(station, latest, true, now)},
		},
		Station: next,
	}
}

func newPlayItem(stationID, trackID, playID string, now time.Time) playItem {
	key := playKey(stationID, now, playID)
	return playItem{
		PK:     key.PK,
		SK:     key.SK,
		GSI1PK: keys.TrackPlaysPartition(trackID, now),
		Play: Play{
			ID:        playID,
			TrackID:   trackID,
			CreatedTS: now,
			UpdatedTS: now,
		},
	}
}

// stationUpdate advances the station counters under the optimistic lock held
// by station.UpdatedTS. The first play is only claimed while still unset.
func stationUpdate(station Station, latest LatestPlay, newTrack bool, now time.Time) *store.Update {
	update := &store.Update{
		Key: stationKey(station.ID),
		Set: []store.Assignment{
			{Attr: attrUpdatedTS, Value: now},
			{Attr: attrLatestPlay, Value: latest},
		},
		Increment:  []store.Increment{{Attr: attrPlayCount, By: 1}},
		Conditions: []store.Condition{store.Equals(attrUpdatedTS, station.UpdatedTS)},
	}
	if newTrack {
		update.Increment = append(update.Increment, store.Increment{Attr: attrTrackCount, By: 1})
		if station.FirstPlayID == nil {
			update.Set = append(update.Set, store.Assignment{Attr: attrFirstPlayID, Value: latest.ID})
			update.Conditions = append(update.Conditions, store.Absent(attrFirstPlayID))
		}
	}
	return update
}
