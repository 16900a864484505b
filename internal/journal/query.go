package journal

import (
	"context"
	"strings"
	"time"

	"github.com/radiojournal/backend/internal/keys"
	"github.com/radiojournal/backend/internal/store"
	"go.uber.org/zap"
)

// PlaysQuery selects plays of a station created within [Start, End].
type PlaysQuery struct {
	StationID  StationID
	Start      time.Time
	End        time.Time
	Limit      int
	Cursor     string
	Descending bool
}

// ListPlays walks the day partitions covering the query window one partition
// per call. A page may be empty while a cursor is still returned; iteration is
// complete only when the returned cursor is empty.
func (s *Service) ListPlays(ctx context.Context, query PlaysQuery) ([]Play, string, error) {
	stationID := query.StationID.String()
	stationField := zap.String("station_id", stationID)
	if !query.End.After(query.Start) {
		return nil, "", s.fail(opListPlays, "invalid_range", validationError("`end` must be later than `start`"), stationField)
	}

	startDay := keys.Day(query.Start)
	endDay := keys.Day(query.End)
	day := startDay
	if query.Descending {
		day = endDay
	}

	var exclusiveStart *store.Key
	if query.Cursor != "" {
		resumed, err := decodeCursor(query.Cursor)
		if err != nil {
			return nil, "", s.fail(opListPlays, "invalid_cursor", err, stationField)
		}
		day, err = keys.ParseDayPartition(resumed.Partition)
		if err != nil || day.Before(startDay) || day.After(endDay) {
			return nil, "", s.fail(opListPlays, "invalid_cursor", validationError("invalid next_token"), stationField)
		}
		if resumed.SortKey != "" {
			if !strings.HasPrefix(resumed.SortKey, keys.PlaySortPrefix()) {
				return nil, "", s.fail(opListPlays, "invalid_cursor", validationError("invalid next_token"), stationField)
			}
			exclusiveStart = &store.Key{PK: keys.PlaysPartition(stationID, day), SK: resumed.SortKey}
		}
	}

	page, err := s.store.Query(ctx, store.Query{
		PartitionKey: keys.PlaysPartition(stationID, day),
		SortBetween: &store.SortRange{
			Low:  keys.PlaySort(keys.MinIDAt(query.Start)),
			High: keys.PlaySort(keys.MaxIDAt(query.End)),
		},
		Descending:        query.Descending,
		Limit:             clampLimit(query.Limit),
		ExclusiveStartKey: exclusiveStart,
	})
	if err != nil {
		return nil, "", s.fail(opListPlays, "query_failed", err, stationField)
	}

	plays := make([]Play, 0, len(page.Records))
	for _, record := range page.Records {
		var play Play
		if err := record.Decode(&play); err != nil {
			return nil, "", s.fail(opListPlays, "decode_failed", err, stationField)
		}
		plays = append(plays, play)
	}

	var next string
	switch {
	case page.LastEvaluatedKey != nil:
		next = cursor{Partition: keys.DayPartition(day), SortKey: page.LastEvaluatedKey.SK}.encode()
	case !query.Descending && day.Before(endDay):
		next = cursor{Partition: keys.DayPartition(day.AddDate(0, 0, 1))}.encode()
	case query.Descending && day.After(startDay):
		next = cursor{Partition: keys.DayPartition(day.AddDate(0, 0, -1))}.encode()
	}
	return plays, next, nil
}

// ListTracks returns the tracks of a station, newest first.
func (s *Service) ListTracks(ctx context.Context, stationID StationID, limit int, token string) ([]Track, string, error) {
	stationField := zap.String("station_id", stationID.String())
	partition := keys.TracksPartition(stationID.String())

	exclusiveStart, err := sortKeyStart(token, partition, keys.TrackSortPrefix())
	if err != nil {
		return nil, "", s.fail(opListTracks, "invalid_cursor", err, stationField)
	}

	page, err := s.store.Query(ctx, store.Query{
		PartitionKey:      partition,
		SortPrefix:        keys.TrackSortPrefix(),
		Descending:        true,
		Limit:             clampLimit(limit),
		ExclusiveStartKey: exclusiveStart,
	})
	if err != nil {
		return nil, "", s.fail(opListTracks, "query_failed", err, stationField)
	}

	tracks := make([]Track, 0, len(page.Records))
	for _, record := range page.Records {
		var track Track
		if err := record.Decode(&track); err != nil {
			return nil, "", s.fail(opListTracks, "decode_failed", err, stationField)
		}
		tracks = append(tracks, track)
	}
	return tracks, sortKeyCursor(page), nil
}

// ListTracksByArtist returns the tracks of one artist in descending title order.
func (s *Service) ListTracksByArtist(ctx context.Context, stationID StationID, artist string, limit int, token string) ([]Track, string, error) {
	stationField := zap.String("station_id", stationID.String())
	if artist == "" {
		return nil, "", s.fail(opListTracksByArtist, "missing_artist", validationError("artist is required"), stationField)
	}
	partition := keys.ArtistPartition(stationID.String(), artist)

	exclusiveStart, err := sortKeyStart(token, partition, keys.TitleSortPrefix())
	if err != nil {
		return nil, "", s.fail(opListTracksByArtist, "invalid_cursor", err, stationField)
	}

	page, err := s.store.Query(ctx, store.Query{
		PartitionKey:      partition,
		SortPrefix:        keys.TitleSortPrefix(),
		Descending:        true,
		Limit:             clampLimit(limit),
		Projection:        []string{attrTrackID},
		ExclusiveStartKey: exclusiveStart,
	})
	if err != nil {
		return nil, "", s.fail(opListTracksByArtist, "query_failed", err, stationField)
	}

	trackIDs := make([]string, 0, len(page.Records))
	for _, record := range page.Records {
		var metadata TrackMetadata
		if err := record.Decode(&metadata); err != nil {
			return nil, "", s.fail(opListTracksByArtist, "decode_failed", err, stationField)
		}
		trackIDs = append(trackIDs, metadata.TrackID)
	}

	tracks, err := s.BatchGetTracks(ctx, stationID, trackIDs)
	if err != nil {
		return nil, "", err
	}
	return tracks, sortKeyCursor(page), nil
}

// ListPlaysOfTrack returns the plays of one track on one station, newest
// first, walking month partitions of the secondary index back to the month
// the track was created in.
func (s *Service) ListPlaysOfTrack(ctx context.Context, stationID StationID, trackID TrackID, limit int, token string) ([]TrackPlay, string, error) {
	fields := []zap.Field{zap.String("station_id", stationID.String()), zap.String("track_id", trackID.String())}
	trackCreated, err := keys.TimestampOf(trackID.String())
	if err != nil {
		return nil, "", s.fail(opListPlaysOfTrack, "invalid_track_id", validationError("%v", err), fields...)
	}

	month := keys.Month(s.now())
	var exclusiveStart *store.Key
	if token != "" {
		resumed, err := decodeCursor(token)
		if err != nil {
			return nil, "", s.fail(opListPlaysOfTrack, "invalid_cursor", err, fields...)
		}
		month, err = keys.ParseMonthPartition(resumed.Partition)
		if err != nil || month.After(keys.Month(s.now())) || month.Before(keys.Month(trackCreated)) {
			return nil, "", s.fail(opListPlaysOfTrack, "invalid_cursor", validationError("invalid next_token"), fields...)
		}
		if resumed.SortKey != "" {
			if !strings.HasPrefix(resumed.PK, keys.PlaysStationPrefix(stationID.String())) ||
				!strings.HasPrefix(resumed.SortKey, keys.PlaySortPrefix()) {
				return nil, "", s.fail(opListPlaysOfTrack, "invalid_cursor", validationError("invalid next_token"), fields...)
			}
			exclusiveStart = &store.Key{
				PK:     resumed.PK,
				SK:     resumed.SortKey,
				GSI1PK: keys.TrackPlaysPartition(trackID.String(), month),
			}
		}
	}

	page, err := s.store.Query(ctx, store.Query{
		Index:             store.IndexGSI1,
		PartitionKey:      keys.TrackPlaysPartition(trackID.String(), month),
		SortPrefix:        keys.PlaySortPrefix(),
		Filters:           []store.Condition{store.BeginsWith(store.AttrPK, keys.PlaysStationPrefix(stationID.String()))},
		Descending:        true,
		Limit:             clampLimit(limit),
		Projection:        []string{attrID, attrTrackID},
		ExclusiveStartKey: exclusiveStart,
	})
	if err != nil {
		return nil, "", s.fail(opListPlaysOfTrack, "query_failed", err, fields...)
	}

	plays := make([]TrackPlay, 0, len(page.Records))
	for _, record := range page.Records {
		var play TrackPlay
		if err := record.Decode(&play); err != nil {
			return nil, "", s.fail(opListPlaysOfTrack, "decode_failed", err, fields...)
		}
		createdAt, err := keys.TimestampOf(play.ID)
		if err != nil {
			return nil, "", s.fail(opListPlaysOfTrack, "decode_failed", err, fields...)
		}
		play.CreatedTS = createdAt
		plays = append(plays, play)
	}

	var next string
	switch {
	case page.LastEvaluatedKey != nil:
		next = cursor{
			Partition: keys.MonthPartition(month),
			SortKey:   page.LastEvaluatedKey.SK,
			PK:        page.LastEvaluatedKey.PK,
		}.encode()
	case trackCreated.Before(month):
		next = cursor{Partition: keys.MonthPartition(month.AddDate(0, -1, 0))}.encode()
	}
	return plays, next, nil
}

// GetTrack reads one track of a station.
func (s *Service) GetTrack(ctx context.Context, stationID StationID, trackID TrackID) (Track, error) {
	record, err := s.store.Get(ctx, trackKey(stationID.String(), trackID.String()), store.GetOptions{})
	if err != nil {
		return Track{}, s.fail(opGetTrack, "get_failed", err,
			zap.String("station_id", stationID.String()),
			zap.String("track_id", trackID.String()))
	}
	var track Track
	if err := record.Decode(&track); err != nil {
		return Track{}, s.fail(opGetTrack, "decode_failed", err, zap.String("track_id", trackID.String()))
	}
	return track, nil
}

// BatchGetTracks reads tracks in the order of trackIDs, skipping ids that do not exist.
func (s *Service) BatchGetTracks(ctx context.Context, stationID StationID, trackIDs []string) ([]Track, error) {
	records, err := s.batchGet(ctx, stationID, trackIDs, nil)
	if err != nil {
		return nil, s.fail(opBatchGetTracks, "batch_get_failed", err, zap.String("station_id", stationID.String()))
	}

	byID := make(map[string]Track, len(records))
	for _, record := range records {
		var track Track
		if err := record.Decode(&track); err != nil {
			return nil, s.fail(opBatchGetTracks, "decode_failed", err, zap.String("station_id", stationID.String()))
		}
		byID[track.ID] = track
	}

	tracks := make([]Track, 0, len(trackIDs))
	for _, trackID := range trackIDs {
		if track, ok := byID[trackID]; ok {
			tracks = append(tracks, track)
		}
	}
	return tracks, nil
}

// BatchGetTrackSummaries reads the summary projection of tracks keyed by id.
func (s *Service) BatchGetTrackSummaries(ctx context.Context, stationID StationID, trackIDs []string) (map[string]TrackSummary, error) {
	records, err := s.batchGet(ctx, stationID, trackIDs, []string{attrID, attrTitle, attrArtist, attrIsSong})
	if err != nil {
		return nil, s.fail(opBatchGetTracks, "batch_get_failed", err, zap.String("station_id", stationID.String()))
	}

	summaries := make(map[string]TrackSummary, len(records))
	for _, record := range records {
		var summary TrackSummary
		if err := record.Decode(&summary); err != nil {
			return nil, s.fail(opBatchGetTracks, "decode_failed", err, zap.String("station_id", stationID.String()))
		}
		summaries[summary.ID] = summary
	}
	return summaries, nil
}

func (s *Service) batchGet(ctx context.Context, stationID StationID, trackIDs []string, projection []string) ([]store.Record, error) {
	seen := make(map[string]struct{}, len(trackIDs))
	requestKeys := make([]store.Key, 0, len(trackIDs))
	for _, trackID := range trackIDs {
		if _, ok := seen[trackID]; ok {
			continue
		}
		seen[trackID] = struct{}{}
		requestKeys = append(requestKeys, trackKey(stationID.String(), trackID))
	}
	if len(requestKeys) == 0 {
		return nil, nil
	}
	return s.store.BatchGet(ctx, requestKeys, projection)
}

// sortKeyStart decodes a cursor over a single fixed partition.
func sortKeyStart(token, partition, sortPrefix string) (*store.Key, error) {
	if token == "" {
		return nil, nil
	}
	resumed, err := decodeCursor(token)
	if err != nil {
		return nil, err
	}
	if resumed.Partition != "" || !strings.HasPrefix(resumed.SortKey, sortPrefix) {
		return nil, validationError("invalid next_token")
	}
	return &store.Key{PK: partition, SK: resumed.SortKey}, nil
}

func sortKeyCursor(page store.Page) string {
	if page.LastEvaluatedKey == nil {
		return ""
	}
	return cursor{SortKey: page.LastEvaluatedKey.SK}.encode()
}
