package fetchers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/radiojournal/backend/internal/journal"
)

const (
	coolismBaseURL = "https://api.coolism.net"
	coolismOrigin  = "https://www.coolism.net"
)

// coolism exchanges basic credentials for a short-lived token on every fetch
// and then reads the now playing song with it.
type coolism struct {
	http     *httpClient
	baseURL  string
	username string
	password string
}

func newCoolism(client *httpClient, username, password string) *coolism {
	return &coolism{
		http:     client,
		baseURL:  coolismBaseURL,
		username: username,
		password: password,
	}
}

type coolismTokenResponse struct {
	Token string `json:"token"`
}

type coolismNowPlayingResponse struct {
	Data struct {
		NowSong struct {
			Song   string `json:"song"`
			Artist string `json:"artist"`
		} `json:"nowSong"`
	} `json:"data"`
}

func (c *coolism) FetchPlay(ctx context.Context, config journal.FetcherConfig) (journal.Observation, error) {
	if config.Kind != journal.FetcherCoolism {
		return journal.Observation{}, fmt.Errorf("%w: coolism fetcher got %s", ErrMisconfigured, config)
	}
	if c.username == "" || c.password == "" {
		return journal.Observation{}, fmt.Errorf("%w: coolism credentials are not configured", ErrMisconfigured)
	}

	token, err := c.fetchToken(ctx)
	if err != nil {
		return journal.Observation{}, fmt.Errorf("coolism token: %w", err)
	}

	query := url.Values{}
	query.Set("type", "start")
	query.Set("t", strconv.FormatInt(c.http.clock().UnixMilli(), 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/song/radio/nowPlaying?"+query.Encode(), nil)
	if err != nil {
		return journal.Observation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	setCoolismOrigin(req)

	var response coolismNowPlayingResponse
	if err := c.http.doJSON(ctx, req, &response); err != nil {
		return journal.Observation{}, fmt.Errorf("coolism now playing: %w", err)
	}
	return observation(response.Data.NowSong.Artist, response.Data.NowSong.Song)
}

func (c *coolism) fetchToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/gettoken", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.username, c.password)
	setCoolismOrigin(req)

	var response coolismTokenResponse
	if err := c.http.doJSON(ctx, req, &response); err != nil {
		return "", err
	}
	if response.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrUpstream)
	}
	return response.Token, nil
}

func setCoolismOrigin(req *http.Request) {
	req.Header.Set("Origin", coolismOrigin)
	req.Header.Set("Referer", coolismOrigin+"/")
}
