package journal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreateStationPersistsStation(t *testing.T) {
	backing := openTestStore(t)
	clock := newTestClock(journalEpoch)
	service := newTestService(t, backing, clock)

	location := "Seoul"
	fetcher := FetcherConfig{Kind: FetcherIHeart, Slug: "kiss-fm"}
	created, err := service.CreateStation(context.Background(), NewStation{
		Name:     "  Kiss FM  ",
		Location: &location,
		Fetcher:  &fetcher,
	})
	if err != nil {
		t.Fatalf("failed to create station: %v", err)
	}
	if created.Name != "Kiss FM" {
		t.Fatalf("expected trimmed name, got %q", created.Name)
	}
	if created.PlayCount != 0 || created.TrackCount != 0 || created.LatestPlay != nil || created.FirstPlayID != nil {
		t.Fatalf("expected zeroed accounting, got %+v", created)
	}
	if !created.CreatedTS.Equal(journalEpoch) || !created.UpdatedTS.Equal(journalEpoch) {
		t.Fatalf("expected timestamps at clock, got %+v", created)
	}

	stored := mustGetStation(t, service, created.ID)
	if stored.Fetcher == nil || *stored.Fetcher != fetcher {
		t.Fatalf("expected fetcher to round trip, got %+v", stored.Fetcher)
	}
	if stored.Location == nil || *stored.Location != location {
		t.Fatalf("expected location to round trip, got %v", stored.Location)
	}
	if !stored.UpdatedTS.Equal(created.UpdatedTS) {
		t.Fatalf("lock token changed on read: %s vs %s", stored.UpdatedTS, created.UpdatedTS)
	}
}

func TestCreateStationValidation(t *testing.T) {
	service := newTestService(t, openTestStore(t), newTestClock(journalEpoch))

	testCases := []struct {
		name    string
		request NewStation
	}{
		{name: "blank name", request: NewStation{Name: "   "}},
		{name: "long name", request: NewStation{Name: strings.Repeat("x", maxStationNameLength+1)}},
		{name: "iheart without slug", request: NewStation{Name: "A", Fetcher: &FetcherConfig{Kind: FetcherIHeart}}},
		{name: "unknown atime station", request: NewStation{Name: "A", Fetcher: &FetcherConfig{Kind: FetcherAtime, Station: "jazz"}}},
		{name: "unknown kind", request: NewStation{Name: "A", Fetcher: &FetcherConfig{Kind: "shoutcast"}}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := service.CreateStation(context.Background(), testCase.request); !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
		})
	}
}

func TestListStationsOldestFirst(t *testing.T) {
	clock := newTestClock(journalEpoch)
	service := newTestService(t, openTestStore(t), clock)

	first := mustCreateStation(t, service, "First")
	clock.Advance(time.Second)
	second := mustCreateStation(t, service, "Second")

	stations, err := service.ListStations(context.Background(), 0)
	if err != nil {
		t.Fatalf("failed to list stations: %v", err)
	}
	if len(stations) != 2 || stations[0].ID != first.ID || stations[1].ID != second.ID {
		t.Fatalf("unexpected stations %+v", stations)
	}

	limited, err := service.ListStations(context.Background(), 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one station, got %d err=%v", len(limited), err)
	}
}

func TestGetStationNotFound(t *testing.T) {
	service := newTestService(t, openTestStore(t), newTestClock(journalEpoch))
	_, err := service.GetStation(context.Background(), StationID(mustID(t, journalEpoch)))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "journal.get_station.get_failed" {
		t.Fatalf("unexpected error code %v", err)
	}
}

func TestParseFetcherConfig(t *testing.T) {
	testCases := []struct {
		raw     string
		want    FetcherConfig
		wantErr bool
	}{
		{raw: "coolism", want: FetcherConfig{Kind: FetcherCoolism}},
		{raw: "iheart:kiss-fm", want: FetcherConfig{Kind: FetcherIHeart, Slug: "kiss-fm"}},
		{raw: "ATIME:Chill", want: FetcherConfig{Kind: FetcherAtime, Station: AtimeChill}},
		{raw: "coolism:extra", wantErr: true},
		{raw: "iheart", wantErr: true},
		{raw: "atime:jazz", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, testCase := range testCases {
		config, err := ParseFetcherConfig(testCase.raw)
		if testCase.wantErr {
			if !errors.Is(err, ErrInvalidFetcher) {
				t.Fatalf("%q: expected ErrInvalidFetcher, got %v", testCase.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", testCase.raw, err)
		}
		if config != testCase.want {
			t.Fatalf("%q: got %+v want %+v", testCase.raw, config, testCase.want)
		}
		if reparsed, err := ParseFetcherConfig(config.String()); err != nil || reparsed != config {
			t.Fatalf("%q: string form did not round trip: %+v %v", testCase.raw, reparsed, err)
		}
	}
}

func TestFetcherConfigWireShape(t *testing.T) {
	payload, err := json.Marshal(FetcherConfig{Kind: FetcherAtime, Station: AtimeEFM})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(payload) != `{"id":"atime","station":"efm"}` {
		t.Fatalf("unexpected fetcher json %s", payload)
	}
}

func TestNewStationIDRejectsMalformedInput(t *testing.T) {
	if _, err := NewStationID("station-1"); !errors.Is(err, ErrInvalidStationID) {
		t.Fatalf("expected ErrInvalidStationID, got %v", err)
	}
	raw := mustID(t, journalEpoch)
	id, err := NewStationID("  " + raw + " ")
	if err != nil || id.String() != raw {
		t.Fatalf("expected trimmed id %s, got %s err=%v", raw, id, err)
	}
}
