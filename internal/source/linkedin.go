package source

import (
	"context"
	"encoding/json"

	"github.com/profile-enricher/internal/config"
	"github.com/profile-enricher/internal/models"
)

// LinkedIn fetches minimal profile data from the LinkedIn API. The
// upstream API exposes far less than the other services, so the
// payload stays thin.
type LinkedIn struct {
	api *apiClient
}

// NewLinkedIn creates a LinkedIn data source.
func NewLinkedIn(cfg config.ServiceConfig) *LinkedIn {
	return &LinkedIn{
		api: newAPIClient("linkedin", cfg.BaseURL, cfg.Token, cfg.RequestsPerSecond),
	}
}

func (l *LinkedIn) Name() string { return "linkedin" }

type linkedinProfile struct {
	VanityName string `json:"vanityName"`
	Headline   struct {
		Localized map[string]string `json:"localized"`
	} `json:"headline"`
}

func (l *LinkedIn) lookup(ctx context.Context, identifier string) (*linkedinProfile, error) {
	var profile linkedinProfile
	if err := l.api.getJSON(ctx, "/v2/people/(vanityName:"+identifier+")", &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Fetch retrieves the profile snapshot for the vanity name.
func (l *LinkedIn) Fetch(ctx context.Context, identifier string) (json.RawMessage, error) {
	resp, err := l.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}

	headline := ""
	for _, v := range resp.Headline.Localized {
		headline = v
		break
	}

	profile := models.LinkedInProfile{
		ProfileURL: "https://www.linkedin.com/in/" + identifier,
		Headline:   headline,
	}

	return json.Marshal(profile)
}

// Probe checks that the vanity name exists.
func (l *LinkedIn) Probe(ctx context.Context, identifier string) error {
	_, err := l.lookup(ctx, identifier)
	return err
}
