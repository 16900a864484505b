package journal

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/radiojournal/backend/internal/keys"
	"github.com/radiojournal/backend/internal/store"
	"github.com/radiojournal/backend/internal/store/sqlstore"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(step)
}

func openTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(sqlstore.Config{
		Path:      filepath.Join(t.TempDir(), "journal.db"),
		TableName: "journal",
		Logger:    zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func newTestService(t *testing.T, backing store.Store, clock *testClock) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Store:      backing,
		Clock:      clock.Now,
		IDProvider: keys.NewIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service
}

func mustCreateStation(t *testing.T, service *Service, name string) Station {
	t.Helper()
	station, err := service.CreateStation(context.Background(), NewStation{Name: name})
	if err != nil {
		t.Fatalf("failed to create station: %v", err)
	}
	return station
}

func mustLogPlay(t *testing.T, service *Service, station Station, artist, title string) LogResult {
	t.Helper()
	result, err := service.LogPlay(context.Background(), station, Observation{Artist: artist, Title: title, IsSong: true})
	if err != nil {
		t.Fatalf("failed to log %s - %s: %v", artist, title, err)
	}
	return result
}

func mustGetStation(t *testing.T, service *Service, stationID string) Station {
	t.Helper()
	station, err := service.GetStation(context.Background(), StationID(stationID))
	if err != nil {
		t.Fatalf("failed to get station: %v", err)
	}
	return station
}

func mustGetPlay(t *testing.T, backing store.Store, stationID, playID string) Play {
	t.Helper()
	createdAt, err := keys.TimestampOf(playID)
	if err != nil {
		t.Fatalf("invalid play id %s: %v", playID, err)
	}
	record, err := backing.Get(context.Background(), playKey(stationID, createdAt, playID), store.GetOptions{})
	if err != nil {
		t.Fatalf("failed to get play %s: %v", playID, err)
	}
	var play Play
	if err := record.Decode(&play); err != nil {
		t.Fatalf("failed to decode play: %v", err)
	}
	return play
}

func mustTrackID(t *testing.T, value string) TrackID {
	t.Helper()
	id, err := NewTrackID(value)
	if err != nil {
		t.Fatalf("unexpected track id error: %v", err)
	}
	return id
}
