package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/profile-enricher/internal/config"
	"github.com/profile-enricher/internal/models"
)

// GitHub fetches account data from the GitHub REST API.
type GitHub struct {
	api *apiClient
}

// NewGitHub creates a GitHub data source.
func NewGitHub(cfg config.ServiceConfig) *GitHub {
	return &GitHub{
		api: newAPIClient("github", cfg.BaseURL, cfg.Token, cfg.RequestsPerSecond),
	}
}

func (g *GitHub) Name() string { return "github" }

type githubUser struct {
	Login       string `json:"login"`
	HTMLURL     string `json:"html_url"`
	AvatarURL   string `json:"avatar_url"`
	Company     string `json:"company"`
	Bio         string `json:"bio"`
	PublicRepos int    `json:"public_repos"`
	Following   int    `json:"following"`
	Followers   int    `json:"followers"`
}

type githubRepo struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	HTMLURL     string     `json:"html_url"`
	Fork        bool       `json:"fork"`
	Forks       int        `json:"forks_count"`
	Watchers    int        `json:"watchers_count"`
	OpenIssues  int        `json:"open_issues_count"`
	PushedAt    *time.Time `json:"pushed_at"`
}

// Fetch retrieves the user's profile and public repositories.
func (g *GitHub) Fetch(ctx context.Context, identifier string) (json.RawMessage, error) {
	var user githubUser
	if err := g.api.getJSON(ctx, "/users/"+identifier, &user); err != nil {
		return nil, err
	}

	var repos []githubRepo
	if err := g.api.getJSON(ctx, fmt.Sprintf("/users/%s/repos?per_page=200", identifier), &repos); err != nil {
		return nil, err
	}

	profile := models.GitHubProfile{
		ProfileURL:     user.HTMLURL,
		AvatarURL:      user.AvatarURL,
		Company:        user.Company,
		Biography:      user.Bio,
		RepoCount:      user.PublicRepos,
		FollowingCount: user.Following,
		FollowersCount: user.Followers,
	}
	for _, r := range repos {
		profile.Repositories = append(profile.Repositories, models.GitHubRepository{
			RepositoryID:    r.ID,
			Name:            r.Name,
			Description:     r.Description,
			URL:             r.HTMLURL,
			Fork:            r.Fork,
			ForkCount:       r.Forks,
			WatchersCount:   r.Watchers,
			OpenIssuesCount: r.OpenIssues,
			PushedAt:        r.PushedAt,
		})
	}

	return json.Marshal(profile)
}

// Probe checks that the username exists.
func (g *GitHub) Probe(ctx context.Context, identifier string) error {
	var user githubUser
	return g.api.getJSON(ctx, "/users/"+identifier, &user)
}
