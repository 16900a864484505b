package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/radiojournal/backend/internal/journal"
	"go.uber.org/zap"
)

const (
	orderAscending  = "asc"
	orderDescending = "desc"
)

type stationPayload struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Location   *string                `json:"location"`
	Fetcher    *journal.FetcherConfig `json:"fetcher,omitempty"`
	TrackCount int64                  `json:"track_count"`
	PlayCount  int64                  `json:"play_count"`
	LatestPlay *journal.LatestPlay    `json:"latest_play"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

type stationsResponse struct {
	Stations []stationPayload `json:"stations"`
}

type trackPayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	IsSong    bool      `json:"is_song"`
	PlayCount int64     `json:"play_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type tracksResponse struct {
	Tracks    []trackPayload `json:"tracks"`
	NextToken *string        `json:"next_token"`
}

type playPayload struct {
	ID       string               `json:"id"`
	PlayedAt time.Time            `json:"played_at"`
	Track    journal.TrackSummary `json:"track"`
}

type playsResponse struct {
	Plays     []playPayload `json:"plays"`
	NextToken *string       `json:"next_token"`
}

type trackPlayPayload struct {
	ID       string    `json:"id"`
	PlayedAt time.Time `json:"played_at"`
}

type trackPlaysResponse struct {
	Plays     []trackPlayPayload `json:"plays"`
	NextToken *string            `json:"next_token"`
}

type createStationPayload struct {
	Name     string                 `json:"name"`
	Location *string                `json:"location"`
	Fetcher  *journal.FetcherConfig `json:"fetcher"`
}

func (h *httpHandler) handleListStations(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	stations, err := h.journal.ListStations(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := stationsResponse{Stations: make([]stationPayload, 0, len(stations))}
	for _, station := range stations {
		response.Stations = append(response.Stations, newStationPayload(station))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetStation(c *gin.Context) {
	stationID, ok := stationIDParam(c)
	if !ok {
		return
	}
	station, err := h.journal.GetStation(c.Request.Context(), stationID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newStationPayload(station))
}

func (h *httpHandler) handleCreateStation(c *gin.Context) {
	var request createStationPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badInput(c, "Request body must be a station object")
		return
	}
	station, err := h.journal.CreateStation(c.Request.Context(), journal.NewStation{
		Name:     request.Name,
		Location: request.Location,
		Fetcher:  request.Fetcher,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("station created",
		zap.String("station_id", station.ID),
		zap.String("admin_subject", c.GetString(adminSubjectContextKey)))
	c.JSON(http.StatusCreated, newStationPayload(station))
}

func (h *httpHandler) handleListPlays(c *gin.Context) {
	stationID, ok := stationIDParam(c)
	if !ok {
		return
	}
	start, ok := queryTime(c, "start")
	if !ok {
		return
	}
	end, ok := queryTime(c, "end")
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	descending := false
	switch strings.ToLower(c.DefaultQuery("order", orderAscending)) {
	case orderAscending:
	case orderDescending:
		descending = true
	default:
		badInput(c, "`order` must be asc or desc")
		return
	}

	ctx := c.Request.Context()
	plays, nextToken, err := h.journal.ListPlays(ctx, journal.PlaysQuery{
		StationID:  stationID,
		Start:      start,
		End:        end,
		Limit:      limit,
		Cursor:     c.Query("next_token"),
		Descending: descending,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	trackIDs := make([]string, 0, len(plays))
	seen := make(map[string]struct{}, len(plays))
	for _, play := range plays {
		if _, ok := seen[play.TrackID]; ok {
			continue
		}
		seen[play.TrackID] = struct{}{}
		trackIDs = append(trackIDs, play.TrackID)
	}
	summaries := map[string]journal.TrackSummary{}
	if len(trackIDs) > 0 {
		summaries, err = h.journal.BatchGetTrackSummaries(ctx, stationID, trackIDs)
		if err != nil {
			h.respondError(c, err)
			return
		}
	}

	response := playsResponse{Plays: make([]playPayload, 0, len(plays)), NextToken: optionalToken(nextToken)}
	for _, play := range plays {
		summary, found := summaries[play.TrackID]
		if !found {
			summary = journal.TrackSummary{ID: play.TrackID}
		}
		response.Plays = append(response.Plays, playPayload{
			ID:       play.ID,
			PlayedAt: truncateToMinute(play.CreatedTS),
			Track:    summary,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListTracks(c *gin.Context) {
	stationID, ok := stationIDParam(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	var (
		tracks    []journal.Track
		nextToken string
		err       error
	)
	token := c.Query("next_token")
	if artist, present := c.GetQuery("artist"); present {
		tracks, nextToken, err = h.journal.ListTracksByArtist(c.Request.Context(), stationID, artist, limit, token)
	} else {
		tracks, nextToken, err = h.journal.ListTracks(c.Request.Context(), stationID, limit, token)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := tracksResponse{Tracks: make([]trackPayload, 0, len(tracks)), NextToken: optionalToken(nextToken)}
	for _, track := range tracks {
		response.Tracks = append(response.Tracks, newTrackPayload(track))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetTrack(c *gin.Context) {
	stationID, ok := stationIDParam(c)
	if !ok {
		return
	}
	trackID, ok := trackIDParam(c)
	if !ok {
		return
	}
	track, err := h.journal.GetTrack(c.Request.Context(), stationID, trackID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTrackPayload(track))
}

func (h *httpHandler) handleListPlaysOfTrack(c *gin.Context) {
	stationID, ok := stationIDParam(c)
	if !ok {
		return
	}
	trackID, ok := trackIDParam(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	plays, nextToken, err := h.journal.ListPlaysOfTrack(c.Request.Context(), stationID, trackID, limit, c.Query("next_token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := trackPlaysResponse{Plays: make([]trackPlayPayload, 0, len(plays)), NextToken: optionalToken(nextToken)}
	for _, play := range plays {
		response.Plays = append(response.Plays, trackPlayPayload{
			ID:       play.ID,
			PlayedAt: truncateToMinute(play.CreatedTS),
		})
	}
	c.JSON(http.StatusOK, response)
}

func stationIDParam(c *gin.Context) (journal.StationID, bool) {
	stationID, err := journal.NewStationID(c.Param("station_id"))
	if err != nil {
		badInput(c, "`station_id` is not a valid id")
		return "", false
	}
	return stationID, true
}

func trackIDParam(c *gin.Context) (journal.TrackID, bool) {
	trackID, err := journal.NewTrackID(c.Param("track_id"))
	if err != nil {
		badInput(c, "`track_id` is not a valid id")
		return "", false
	}
	return trackID, true
}

func queryTime(c *gin.Context, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		badInput(c, "`"+name+"` is required")
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		badInput(c, "`"+name+"` must be an RFC 3339 timestamp")
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// queryLimit returns zero when no limit was given so the journal applies its default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		badInput(c, "`limit` must be a positive integer")
		return 0, false
	}
	return limit, true
}

func optionalToken(token string) *string {
	if token == "" {
		return nil
	}
	return &token
}

func truncateToMinute(value time.Time) time.Time {
	return value.UTC().Truncate(time.Minute)
}

func newStationPayload(station journal.Station) stationPayload {
	return stationPayload{
		ID:         station.ID,
		Name:       station.Name,
		Location:   station.Location,
		Fetcher:    station.Fetcher,
		TrackCount: station.TrackCount,
		PlayCount:  station.PlayCount,
		LatestPlay: station.LatestPlay,
		CreatedAt:  truncateToMinute(station.CreatedTS),
		UpdatedAt:  truncateToMinute(station.UpdatedTS),
	}
}

func newTrackPayload(track journal.Track) trackPayload {
	return trackPayload{
		ID:        track.ID,
		Title:     track.Title,
		Artist:    track.Artist,
		IsSong:    track.IsSong,
		PlayCount: track.PlayCount,
		CreatedAt: truncateToMinute(track.CreatedTS),
		UpdatedAt: truncateToMinute(track.UpdatedTS),
	}
}
