package source

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/profile-enricher/internal/config"
	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/models"
)

// Twitter fetches account data from the Twitter v2 API.
type Twitter struct {
	api *apiClient
}

// NewTwitter creates a Twitter data source.
func NewTwitter(cfg config.ServiceConfig) *Twitter {
	return &Twitter{
		api: newAPIClient("twitter", cfg.BaseURL, cfg.Token, cfg.RequestsPerSecond),
	}
}

func (t *Twitter) Name() string { return "twitter" }

type twitterUserResponse struct {
	Data *struct {
		ID              string `json:"id"`
		Username        string `json:"username"`
		Description     string `json:"description"`
		ProfileImageURL string `json:"profile_image_url"`
		Protected       bool   `json:"protected"`
		PublicMetrics   struct {
			FollowersCount int `json:"followers_count"`
			FollowingCount int `json:"following_count"`
			TweetCount     int `json:"tweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Errors []struct {
		Title string `json:"title"`
	} `json:"errors"`
}

func (t *Twitter) lookup(ctx context.Context, identifier string) (*twitterUserResponse, error) {
	path := "/2/users/by/username/" + identifier +
		"?user.fields=description,profile_image_url,protected,public_metrics"

	var resp twitterUserResponse
	if err := t.api.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	// The v2 API reports unknown usernames with a 200 and an errors array.
	if resp.Data == nil {
		return nil, apperrors.NewNotFoundError("twitter account", identifier)
	}
	return &resp, nil
}

// Fetch retrieves the account snapshot for the username.
func (t *Twitter) Fetch(ctx context.Context, identifier string) (json.RawMessage, error) {
	resp, err := t.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}

	// The v2 API serializes account ids as decimal strings.
	accountID, err := strconv.ParseInt(resp.Data.ID, 10, 64)
	if err != nil {
		return nil, apperrors.NewInternalError("twitter returned a non-numeric account id", err)
	}

	profile := models.TwitterProfile{
		ProfileURL:     "https://twitter.com/" + resp.Data.Username,
		AvatarURL:      resp.Data.ProfileImageURL,
		Biography:      resp.Data.Description,
		AccountID:      accountID,
		Private:        resp.Data.Protected,
		TweetCount:     resp.Data.PublicMetrics.TweetCount,
		FollowingCount: resp.Data.PublicMetrics.FollowingCount,
		FollowersCount: resp.Data.PublicMetrics.FollowersCount,
	}

	return json.Marshal(profile)
}

// Probe checks that the username exists.
func (t *Twitter) Probe(ctx context.Context, identifier string) error {
	_, err := t.lookup(ctx, identifier)
	return err
}
