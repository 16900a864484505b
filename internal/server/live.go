package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/radiojournal/backend/internal/journal"
)

const (
	LiveEventPlay      = "play"
	liveEventHeartbeat = "heartbeat"
	liveHeartbeatEvery = 15 * time.Second
)

// LiveMessage is one logged play fanned out to live subscribers of a station.
type LiveMessage struct {
	StationID string              `json:"station_id"`
	EventType string              `json:"-"`
	Outcome   journal.OutcomeKind `json:"outcome"`
	PlayID    string              `json:"play_id"`
	TrackID   string              `json:"track_id"`
	Artist    string              `json:"artist"`
	Title     string              `json:"title"`
	Timestamp time.Time           `json:"timestamp"`
}

// LiveDispatcher fans logged plays out to per-station subscribers. Slow
// subscribers drop messages instead of blocking the poller.
type LiveDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*liveSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type liveSubscriber struct {
	id     int64
	stream chan LiveMessage
}

func NewLiveDispatcher() *LiveDispatcher {
	return &LiveDispatcher{
		subscribers: make(map[string]map[int64]*liveSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

func (d *LiveDispatcher) Subscribe(ctx context.Context, stationID string) (<-chan LiveMessage, func()) {
	if stationID == "" {
		ch := make(chan LiveMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &liveSubscriber{
		id:     d.nextSequence(),
		stream: make(chan LiveMessage, d.bufferSize),
	}
	d.registerSubscriber(stationID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(stationID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish implements the poller sink.
func (d *LiveDispatcher) Publish(result journal.LogResult) {
	d.publish(LiveMessage{
		StationID: result.Station.ID,
		EventType: LiveEventPlay,
		Outcome:   result.Kind,
		PlayID:    result.PlayID,
		TrackID:   result.TrackID,
		Artist:    result.Artist,
		Title:     result.Title,
		Timestamp: d.clock().UTC(),
	})
}

func (d *LiveDispatcher) publish(message LiveMessage) {
	if message.StationID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.StationID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*liveSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *LiveDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *LiveDispatcher) registerSubscriber(stationID string, subscriber *liveSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[stationID]; !ok {
		d.subscribers[stationID] = make(map[int64]*liveSubscriber)
	}
	d.subscribers[stationID][subscriber.id] = subscriber
}

func (d *LiveDispatcher) unregisterSubscriber(stationID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[stationID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, stationID)
		}
	}
	d.mu.Unlock()
}

// handleLiveStream streams plays logged for one station as server-sent events
// until the client goes away.
func (h *httpHandler) handleLiveStream(c *gin.Context) {
	stationID, ok := stationIDParam(c)
	if !ok {
		return
	}
	if _, err := h.journal.GetStation(c.Request.Context(), stationID); err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.live.Subscribe(ctx, stationID.String())
	defer cleanup()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(liveHeartbeatEvery)
	defer heartbeat.Stop()

	c.SSEvent(liveEventHeartbeat, gin.H{"timestamp": h.clock().UTC()})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, message)
			return true
		case <-heartbeat.C:
			c.SSEvent(liveEventHeartbeat, gin.H{"timestamp": h.clock().UTC()})
			return true
		}
	})
}
