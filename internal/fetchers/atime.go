package fetchers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/radiojournal/backend/internal/journal"
)

const (
	atimeNowPlayingURL = "https://onair.atime.live/nowplaying"
	atimeOrigin        = "https://atime.live"
)

// atimeChannel identifies a channel inside the shared atime now playing list.
// Both the numeric id and the display name must match.
type atimeChannel struct {
	id   int
	name string
}

var atimeChannels = map[journal.AtimeStation]atimeChannel{
	journal.AtimeEFM:       {id: 1, name: "EFM"},
	journal.AtimeGreenwave: {id: 2, name: "Green Wave"},
	journal.AtimeChill:     {id: 3, name: "Chill"},
}

// atime reads the now playing list shared by every atime channel.
type atime struct {
	http     *httpClient
	endpoint string
}

func newAtime(client *httpClient) *atime {
	return &atime{http: client, endpoint: atimeNowPlayingURL}
}

type atimeResponse struct {
	Data []struct {
		StationID   int    `json:"station_id"`
		StationName string `json:"station_name"`
		Title       string `json:"title"`
		Artists     string `json:"artists"`
	} `json:"data"`
}

func (f *atime) FetchPlay(ctx context.Context, config journal.FetcherConfig) (journal.Observation, error) {
	channel, ok := atimeChannels[config.Station]
	if config.Kind != journal.FetcherAtime || !ok {
		return journal.Observation{}, fmt.Errorf("%w: atime fetcher got %s", ErrMisconfigured, config)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return journal.Observation{}, err
	}
	req.Header.Set("Origin", atimeOrigin)
	req.Header.Set("Referer", atimeOrigin+"/")

	var response atimeResponse
	if err := f.http.doJSON(ctx, req, &response); err != nil {
		return journal.Observation{}, fmt.Errorf("atime now playing: %w", err)
	}
	for _, entry := range response.Data {
		if entry.StationID == channel.id && entry.StationName == channel.name {
			return observation(entry.Artists, entry.Title)
		}
	}
	return journal.Observation{}, fmt.Errorf("%w: station id=%d name=%q missing from atime response",
		ErrUpstream, channel.id, channel.name)
}
