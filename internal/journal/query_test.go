package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radiojournal/backend/internal/keys"
	"github.com/radiojournal/backend/internal/store"
)

type playSchedule struct {
	at     time.Time
	artist string
	title  string
}

// logSchedule replays observations in order, moving the clock to each instant.
func logSchedule(t *testing.T, service *Service, clock *testClock, station Station, schedule []playSchedule) (Station, []LogResult) {
	t.Helper()
	results := make([]LogResult, 0, len(schedule))
	for _, entry := range schedule {
		clock.Set(entry.at)
		result := mustLogPlay(t, service, station, entry.artist, entry.title)
		station = result.Station
		results = append(results, result)
	}
	return station, results
}

func collectPlays(t *testing.T, service *Service, query PlaysQuery) ([]string, []int) {
	t.Helper()
	var ids []string
	var pageSizes []int
	for page := 0; page < 20; page++ {
		plays, next, err := service.ListPlays(context.Background(), query)
		if err != nil {
			t.Fatalf("failed to list plays: %v", err)
		}
		pageSizes = append(pageSizes, len(plays))
		for _, play := range plays {
			ids = append(ids, play.ID)
		}
		if next == "" {
			return ids, pageSizes
		}
		query.Cursor = next
	}
	t.Fatalf("pagination did not terminate")
	return nil, nil
}

func TestListPlaysWalksDayPartitions(t *testing.T) {
	backing := openTestStore(t)
	clock := newTestClock(journalEpoch)
	service := newTestService(t, backing, clock)
	station := mustCreateStation(t, service, "Pages FM")

	dayOne := keys.Day(journalEpoch)
	dayThree := dayOne.AddDate(0, 0, 2)
	_, results := logSchedule(t, service, clock, station, []playSchedule{
		{at: dayOne.Add(8*time.Hour + 30*time.Minute), artist: "Early", title: "Bird"},
		{at: dayOne.Add(9 * time.Hour), artist: "A", title: "One"},
		{at: dayOne.Add(10 * time.Hour), artist: "B", title: "Two"},
		{at: dayOne.Add(11 * time.Hour), artist: "C", title: "Three"},
		{at: dayThree.Add(12 * time.Hour), artist: "D", title: "Four"},
	})

	query := PlaysQuery{
		StationID: StationID(station.ID),
		Start:     dayOne.Add(8*time.Hour + 45*time.Minute),
		End:       dayThree.Add(23 * time.Hour),
		Limit:     2,
	}

	testCases := []struct {
		name       string
		descending bool
		wantIDs    []string
		wantPages  []int
	}{
		{
			name:      "ascending",
			wantIDs:   []string{results[1].PlayID, results[2].PlayID, results[3].PlayID, results[4].PlayID},
			wantPages: []int{2, 1, 0, 1},
		},
		{
			name:       "descending",
			descending: true,
			wantIDs:    []string{results[4].PlayID, results[3].PlayID, results[2].PlayID, results[1].PlayID},
			wantPages:  []int{1, 0, 2, 1},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			request := query
			request.Descending = testCase.descending
			ids, pages := collectPlays(t, service, request)
			if len(ids) != len(testCase.wantIDs) {
				t.Fatalf("expected %d plays, got %d (%v)", len(testCase.wantIDs), len(ids), ids)
			}
			for index := range ids {
				if ids[index] != testCase.wantIDs[index] {
					t.Fatalf("unexpected play at %d: got %s want %s", index, ids[index], testCase.wantIDs[index])
				}
			}
			if len(pages) != len(testCase.wantPages) {
				t.Fatalf("expected page sizes %v, got %v", testCase.wantPages, pages)
			}
			for index := range pages {
				if pages[index] != testCase.wantPages[index] {
					t.Fatalf("expected page sizes %v, got %v", testCase.wantPages, pages)
				}
			}
		})
	}
}

func TestListPlaysSingleDayWithoutCursor(t *testing.T) {
	backing := openTestStore(t)
	clock := newTestClock(journalEpoch)
	service := newTestService(t, backing, clock)
	station := mustCreateStation(t, service, "Single FM")

	_, results := logSchedule(t, service, clock, station, []playSchedule{
		{at: journalEpoch.Add(time.Hour), artist: "A", title: "One"},
	})

	plays, next, err := service.ListPlays(context.Background(), PlaysQuery{
		StationID: StationID(station.ID),
		Start:     journalEpoch,
		End:       journalEpoch.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to list plays: %v", err)
	}
	if next != "" {
		t.Fatalf("expected no cursor, got %q", next)
	}
	if len(plays) != 1 || plays[0].ID != results[0].PlayID || plays[0].TrackID != results[0].TrackID {
		t.Fatalf("unexpected plays %+v", plays)
	}
}

func TestListPlaysRejectsInvalidRequests(t *testing.T) {
	service := newTestService(t, openTestStore(t), newTestClock(journalEpoch))
	station := mustCreateStation(t, service, "Invalid FM")
	stationID := StationID(station.ID)

	outside := cursor{Partition: keys.DayPartition(journalEpoch.AddDate(0, 0, 5))}.encode()
	foreignSort := cursor{Partition: keys.DayPartition(journalEpoch), SortKey: "TRACK#x"}.encode()

	testCases := []struct {
		name  string
		query PlaysQuery
	}{
		{name: "end before start", query: PlaysQuery{StationID: stationID, Start: journalEpoch, End: journalEpoch.Add(-time.Hour)}},
		{name: "empty window", query: PlaysQuery{StationID: stationID, Start: journalEpoch, End: journalEpoch}},
		{name: "garbage cursor", query: PlaysQuery{StationID: stationID, Start: journalEpoch, End: journalEpoch.Add(time.Hour), Cursor: "%%%"}},
		{name: "cursor outside window", query: PlaysQuery{StationID: stationID, Start: journalEpoch, End: journalEpoch.Add(time.Hour), Cursor: outside}},
		{name: "cursor with foreign sort key", query: PlaysQuery{StationID: stationID, Start: journalEpoch, End: journalEpoch.Add(time.Hour), Cursor: foreignSort}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, _, err := service.ListPlays(context.Background(), testCase.query)
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
		})
	}
}

func TestListTracksPagesNewestFirst(t *testing.T) {
	backing := openTestStore(t)
	clock := newTestClock(journalEpoch)
	service := newTestService(t, backing, clock)
	station := mustCreateStation(t, service, "Tracks FM")

	_, results := logSchedule(t, service, clock, station, []playSchedule{
		{at: journalEpoch.Add(time.Minute), artist: "A", title: "One"},
		{at: journalEpoch.Add(2 * time.Minute), artist: "B", title: "Two"},
		{at: journalEpoch.Add(3 * time.Minute), artist: "C", title: "Three"},
	})

	first, next, err := service.ListTracks(context.Background(), StationID(station.ID), 2, "")
	if err != nil {
		t.Fatalf("failed to list tracks: %v", err)
	}
	if len(first) != 2 || first[0].ID != results[2].TrackID || first[1].ID != results[1].TrackID {
		t.Fatalf("unexpected first page %+v", first)
	}
	if next == "" {
		t.Fatalf("expected a cursor after a full page")
	}

	second, next, err := service.ListTracks(context.Background(), StationID(station.ID), 2, next)
	if err != nil {
		t.Fatalf("failed to list second page: %v", err)
	}
	if len(second) != 1 || second[0].ID != results[0].TrackID {
		t.Fatalf("unexpected second page %+v", second)
	}
	if next != "" {
		t.Fatalf("expected iteration to finish, got %q", next)
	}

	if _, _, err := service.ListTracks(context.Background(), StationID(station.ID), 2, cursor{SortKey: "PLAY#x"}.encode()); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected foreign cursor to be rejected, got %v", err)
	}
}

func TestListTracksByArtistOrdersByTitleDescending(t *testing.T) {
	backing := openTestStore(t)
	clock := newTestClock(journalEpoch)
	service := newTestService(t, backing, clock)
	station := mustCreateStation(t, service, "Artist FM")

	_, results := logSchedule(t, service, clock, station, []playSchedule{
		{at: journalEpoch.Add(time.Minute), artist: "Band", title: "Beta"},
		{at: journalEpoch.Add(2 * time.Minute), artist: "Other", title: "Zulu"},
		{at: journalEpoch.Add(3 * time.Minute), artist: "Band", title: "Gamma"},
		{at: journalEpoch.Add(4 * time.Minute), artist: "Band", title: "Alpha"},
	})

	tracks, next, err := service.ListTracksByArtist(context.Background(), StationID(station.ID), "Band", 10, "")
	if err != nil {
		t.Fatalf("failed to list tracks by artist: %v", err)
	}
	if next != "" {
		t.Fatalf("expected no cursor, got %q", next)
	}
	want := []string{results[2].TrackID, results[0].TrackID, results[3].TrackID}
	if len(tracks) != len(want) {
		t.Fatalf("expected %d tracks, got %+v", len(want), tracks)
	}
	for index, track := range tracks {
		if track.ID != want[index] || track.Artist != "Band" {
			t.Fatalf("unexpected track at %d: %+v", index, track)
		}
	}

	if _, _, err := service.ListTracksByArtist(context.Background(), StationID(station.ID), "", 10, ""); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected missing artist to fail validation, got %v", err)
	}
}

func TestListPlaysOfTrackWalksMonthsAndFiltersStations(t *testing.T) {
	backing := openTestStore(t)
	april := time.Date(2024, 4, 20, 9, 0, 0, 0, time.UTC)
	clock := newTestClock(april)
	service := newTestService(t, backing, clock)
	station := mustCreateStation(t, service, "Months FM")

	_, results := logSchedule(t, service, clock, station, []playSchedule{
		{at: april, artist: "A", title: "Song"},
		{at: april.Add(time.Hour), artist: "B", title: "Song"},
		{at: journalEpoch.Add(time.Hour), artist: "A", title: "Song"},
		{at: journalEpoch.Add(2 * time.Hour), artist: "B", title: "Song"},
		{at: journalEpoch.Add(3 * time.Hour), artist: "A", title: "Song"},
	})
	trackID := results[0].TrackID
	clock.Set(journalEpoch.Add(4 * time.Hour))

	foreignStation := mustID(t, april)
	foreignAt := journalEpoch.Add(90 * time.Minute)
	foreignPlay := newPlayItem(foreignStation, trackID, mustID(t, foreignAt), foreignAt)
	if err := backing.Put(context.Background(), store.Put{Item: foreignPlay}); err != nil {
		t.Fatalf("failed to seed foreign play: %v", err)
	}

	may, next, err := service.ListPlaysOfTrack(context.Background(), StationID(station.ID), mustTrackID(t, trackID), 10, "")
	if err != nil {
		t.Fatalf("failed to list plays of track: %v", err)
	}
	if len(may) != 2 || may[0].ID != results[4].PlayID || may[1].ID != results[2].PlayID {
		t.Fatalf("unexpected may plays %+v", may)
	}
	if !may[0].CreatedTS.Equal(journalEpoch.Add(3 * time.Hour)) {
		t.Fatalf("expected created_ts from the play id, got %s", may[0].CreatedTS)
	}
	if may[0].TrackID != trackID {
		t.Fatalf("unexpected track id %s", may[0].TrackID)
	}
	if next == "" {
		t.Fatalf("expected a cursor into april")
	}

	previous, next, err := service.ListPlaysOfTrack(context.Background(), StationID(station.ID), mustTrackID(t, trackID), 10, next)
	if err != nil {
		t.Fatalf("failed to list april plays: %v", err)
	}
	if len(previous) != 1 || previous[0].ID != results[0].PlayID {
		t.Fatalf("unexpected april plays %+v", previous)
	}
	if next != "" {
		t.Fatalf("expected iteration to stop at the creation month, got %q", next)
	}
}

func TestListPlaysOfTrackPagesWithinMonth(t *testing.T) {
	backing := openTestStore(t)
	clock := newTestClock(journalEpoch)
	service := newTestService(t, backing, clock)
	station := mustCreateStation(t, service, "Paging FM")

	_, results := logSchedule(t, service, clock, station, []playSchedule{
		{at: journalEpoch.Add(time.Minute), artist: "A", title: "Song"},
		{at: journalEpoch.Add(2 * time.Minute), artist: "B", title: "Song"},
		{at: journalEpoch.Add(3 * time.Minute), artist: "A", title: "Song"},
	})
	trackID := mustTrackID(t, results[0].TrackID)

	first, next, err := service.ListPlaysOfTrack(context.Background(), StationID(station.ID), trackID, 1, "")
	if err != nil {
		t.Fatalf("failed to list first page: %v", err)
	}
	if len(first) != 1 || first[0].ID != results[2].PlayID || next == "" {
		t.Fatalf("unexpected first page %+v next=%q", first, next)
	}

	second, next, err := service.ListPlaysOfTrack(context.Background(), StationID(station.ID), trackID, 1, next)
	if err != nil {
		t.Fatalf("failed to list second page: %v", err)
	}
	if len(second) != 1 || second[0].ID != results[0].PlayID {
		t.Fatalf("unexpected second page %+v", second)
	}

	// full pages always carry a continuation
	third, next, err := service.ListPlaysOfTrack(context.Background(), StationID(station.ID), trackID, 1, next)
	if err != nil {
		t.Fatalf("failed to list third page: %v", err)
	}
	if len(third) != 0 || next != "" {
		t.Fatalf("expected an empty final page, got %+v next=%q", third, next)
	}
}

func TestListPlaysOfTrackRejectsCursorOutsideTrackLifetime(t *testing.T) {
	clock := newTestClock(journalEpoch)
	service := newTestService(t, openTestStore(t), clock)
	trackID := mustTrackID(t, mustID(t, journalEpoch))

	testCases := []string{
		cursor{Partition: keys.MonthPartition(journalEpoch.AddDate(0, -1, 0))}.encode(),
		cursor{Partition: keys.MonthPartition(journalEpoch.AddDate(0, 1, 0))}.encode(),
		cursor{Partition: keys.MonthPartition(journalEpoch), SortKey: "PLAY#x", PK: "STATION#other#PLAYS#2024-05-14"}.encode(),
	}
	for _, token := range testCases {
		if _, _, err := service.ListPlaysOfTrack(context.Background(), StationID(mustID(t, journalEpoch)), trackID, 10, token); !errors.Is(err, ErrValidationFailed) {
			t.Fatalf("expected ErrValidationFailed for %q, got %v", token, err)
		}
	}
}

func TestBatchGetTracksPreservesOrderAndSkipsMissing(t *testing.T) {
	backing := openTestStore(t)
	clock := newTestClock(journalEpoch)
	service := newTestService(t, backing, clock)
	station := mustCreateStation(t, service, "Batch FM")

	_, results := logSchedule(t, service, clock, station, []playSchedule{
		{at: journalEpoch.Add(time.Minute), artist: "A", title: "One"},
		{at: journalEpoch.Add(2 * time.Minute), artist: "B", title: "Two"},
	})
	missing := mustID(t, journalEpoch.Add(time.Hour))

	tracks, err := service.BatchGetTracks(context.Background(), StationID(station.ID),
		[]string{results[1].TrackID, missing, results[0].TrackID, results[1].TrackID})
	if err != nil {
		t.Fatalf("failed to batch get tracks: %v", err)
	}
	if len(tracks) != 3 || tracks[0].ID != results[1].TrackID || tracks[1].ID != results[0].TrackID || tracks[2].ID != results[1].TrackID {
		t.Fatalf("unexpected tracks %+v", tracks)
	}

	summaries, err := service.BatchGetTrackSummaries(context.Background(), StationID(station.ID), []string{results[0].TrackID, missing})
	if err != nil {
		t.Fatalf("failed to batch get summaries: %v", err)
	}
	summary, ok := summaries[results[0].TrackID]
	if len(summaries) != 1 || !ok || summary.Artist != "A" || summary.Title != "One" || !summary.IsSong {
		t.Fatalf("unexpected summaries %+v", summaries)
	}

	empty, err := service.BatchGetTracks(context.Background(), StationID(station.ID), nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty batch, got %+v err=%v", empty, err)
	}
}

func TestGetTrackNotFound(t *testing.T) {
	service := newTestService(t, openTestStore(t), newTestClock(journalEpoch))
	_, err := service.GetTrack(context.Background(), StationID(mustID(t, journalEpoch)), mustTrackID(t, mustID(t, journalEpoch)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
