package fetchers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/radiojournal/backend/internal/journal"
)

const (
	iheartGraphQLURL     = "https://webapi.radioedit.iheart.com/graphql"
	iheartOperation      = "GetCurrentlyPlayingSongs"
	iheartPersistedQuery = "386763c17145056713327cddec890cd9d4fea7558efc56d09b7cd4167eef6060"
)

// iheart runs the persisted GraphQL query the iHeart web player uses to show
// the current song of a site.
type iheart struct {
	http     *httpClient
	endpoint string
}

func newIHeart(client *httpClient) *iheart {
	return &iheart{http: client, endpoint: iheartGraphQLURL}
}

type iheartVariables struct {
	Slug   string `json:"slug"`
	Paging struct {
		Take int `json:"take"`
	} `json:"paging"`
}

type iheartExtensions struct {
	PersistedQuery struct {
		Version    int    `json:"version"`
		SHA256Hash string `json:"sha256Hash"`
	} `json:"persistedQuery"`
}

type iheartResponse struct {
	Data struct {
		Sites struct {
			Find struct {
				Stream struct {
					AMP struct {
						CurrentlyPlaying struct {
							Tracks []struct {
								Title  string `json:"title"`
								Artist struct {
									ArtistName string `json:"artistName"`
								} `json:"artist"`
							} `json:"tracks"`
						} `json:"currentlyPlaying"`
					} `json:"amp"`
				} `json:"stream"`
			} `json:"find"`
		} `json:"sites"`
	} `json:"data"`
}

func (f *iheart) FetchPlay(ctx context.Context, config journal.FetcherConfig) (journal.Observation, error) {
	if config.Kind != journal.FetcherIHeart || config.Slug == "" {
		return journal.Observation{}, fmt.Errorf("%w: iheart fetcher got %s", ErrMisconfigured, config)
	}

	requestURL, err := f.requestURL(config.Slug)
	if err != nil {
		return journal.Observation{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return journal.Observation{}, err
	}

	var response iheartResponse
	if err := f.http.doJSON(ctx, req, &response); err != nil {
		return journal.Observation{}, fmt.Errorf("iheart %s: %w", config.Slug, err)
	}
	tracks := response.Data.Sites.Find.Stream.AMP.CurrentlyPlaying.Tracks
	if len(tracks) == 0 {
		return journal.Observation{}, fmt.Errorf("iheart %s: %w", config.Slug, ErrNothingPlaying)
	}
	return observation(tracks[0].Artist.ArtistName, tracks[0].Title)
}

func (f *iheart) requestURL(slug string) (string, error) {
	variables := iheartVariables{Slug: slug}
	variables.Paging.Take = 1
	encodedVariables, err := json.Marshal(variables)
	if err != nil {
		return "", err
	}

	var extensions iheartExtensions
	extensions.PersistedQuery.Version = 1
	extensions.PersistedQuery.SHA256Hash = iheartPersistedQuery
	encodedExtensions, err := json.Marshal(extensions)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("operationName", iheartOperation)
	query.Set("variables", string(encodedVariables))
	query.Set("extensions", string(encodedExtensions))
	return f.endpoint + "?" + query.Encode(), nil
}
