package source

import (
	"context"
	"encoding/json"

	"github.com/profile-enricher/internal/config"
	"github.com/profile-enricher/internal/models"
)

// Dribbble fetches account data from the Dribbble API.
type Dribbble struct {
	api *apiClient
}

// NewDribbble creates a Dribbble data source.
func NewDribbble(cfg config.ServiceConfig) *Dribbble {
	return &Dribbble{
		api: newAPIClient("dribbble", cfg.BaseURL, cfg.Token, cfg.RequestsPerSecond),
	}
}

func (d *Dribbble) Name() string { return "dribbble" }

type dribbbleUser struct {
	HTMLURL        string `json:"html_url"`
	AvatarURL      string `json:"avatar_url"`
	ShotsCount     int    `json:"shots_count"`
	LikesReceived  int    `json:"likes_received_count"`
	FollowingCount int    `json:"followings_count"`
	FollowersCount int    `json:"followers_count"`
}

type dribbbleShot struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"html_url"`
	Images struct {
		Normal string `json:"normal"`
	} `json:"images"`
	Width         int `json:"width"`
	Height        int `json:"height"`
	ViewsCount    int `json:"views_count"`
	CommentsCount int `json:"comments_count"`
}

// Fetch retrieves the player's profile and shots.
func (d *Dribbble) Fetch(ctx context.Context, identifier string) (json.RawMessage, error) {
	var user dribbbleUser
	if err := d.api.getJSON(ctx, "/v2/users/"+identifier, &user); err != nil {
		return nil, err
	}

	var shots []dribbbleShot
	if err := d.api.getJSON(ctx, "/v2/users/"+identifier+"/shots", &shots); err != nil {
		return nil, err
	}

	profile := models.DribbbleProfile{
		ProfileURL:         user.HTMLURL,
		AvatarURL:          user.AvatarURL,
		ShotsCount:         user.ShotsCount,
		LikesReceivedCount: user.LikesReceived,
		FollowingCount:     user.FollowingCount,
		FollowersCount:     user.FollowersCount,
	}
	for _, s := range shots {
		profile.Shots = append(profile.Shots, models.DribbbleShot{
			ShotID:        s.ID,
			Title:         s.Title,
			URL:           s.URL,
			ImageURL:      s.Images.Normal,
			Width:         s.Width,
			Height:        s.Height,
			ViewsCount:    s.ViewsCount,
			CommentsCount: s.CommentsCount,
		})
	}

	return json.Marshal(profile)
}

// Probe checks that the username exists.
func (d *Dribbble) Probe(ctx context.Context, identifier string) error {
	var user dribbbleUser
	return d.api.getJSON(ctx, "/v2/users/"+identifier, &user)
}
