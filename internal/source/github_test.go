package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-enricher/internal/config"
	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/models"
)

func newGitHubTestSource(t *testing.T, handler http.HandlerFunc) *GitHub {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGitHub(config.ServiceConfig{
		BaseURL:           srv.URL,
		Token:             "token",
		RequestsPerSecond: 100,
	})
}

func TestGitHub_Fetch(t *testing.T) {
	src := newGitHubTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/defunkt":
			_, _ = w.Write([]byte(`{
				"login": "defunkt",
				"html_url": "https://github.com/defunkt",
				"avatar_url": "https://avatars.githubusercontent.com/u/2",
				"company": "GitHub",
				"bio": "🍔",
				"public_repos": 107,
				"following": 210,
				"followers": 21000
			}`))
		case "/users/defunkt/repos":
			_, _ = w.Write([]byte(`[
				{"id": 1, "name": "mustache", "html_url": "https://github.com/defunkt/mustache",
				 "fork": false, "forks_count": 900, "watchers_count": 10000, "open_issues_count": 20}
			]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	raw, err := src.Fetch(context.Background(), "defunkt")
	require.NoError(t, err)

	var profile models.GitHubProfile
	require.NoError(t, json.Unmarshal(raw, &profile))

	assert.Equal(t, "https://github.com/defunkt", profile.ProfileURL)
	assert.Equal(t, "GitHub", profile.Company)
	assert.Equal(t, 107, profile.RepoCount)
	require.Len(t, profile.Repositories, 1)
	assert.Equal(t, "mustache", profile.Repositories[0].Name)
	assert.Equal(t, 10000, profile.Repositories[0].WatchersCount)
}

func TestGitHub_ProbeUnknownUser(t *testing.T) {
	src := newGitHubTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	err := src.Probe(context.Background(), "nobody-here")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
