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

func newTwitterTestSource(t *testing.T, handler http.HandlerFunc) *Twitter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTwitter(config.ServiceConfig{
		BaseURL:           srv.URL,
		Token:             "token",
		RequestsPerSecond: 100,
	})
}

func twitterUserBody(id string) []byte {
	return []byte(`{
		"data": {
			"id": "` + id + `",
			"username": "jack",
			"description": "whatever",
			"profile_image_url": "https://pbs.twimg.com/jack.jpg",
			"protected": false,
			"public_metrics": {"followers_count": 100, "following_count": 50, "tweet_count": 9}
		}
	}`)
}

func TestTwitter_Fetch(t *testing.T) {
	src := newTwitterTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(twitterUserBody("12"))
	})

	raw, err := src.Fetch(context.Background(), "jack")
	require.NoError(t, err)

	var profile models.TwitterProfile
	require.NoError(t, json.Unmarshal(raw, &profile))

	assert.Equal(t, "https://twitter.com/jack", profile.ProfileURL)
	assert.Equal(t, int64(12), profile.AccountID)
	assert.Equal(t, 100, profile.FollowersCount)
	assert.False(t, profile.Private)
}

func TestTwitter_Fetch_NonNumericAccountID(t *testing.T) {
	src := newTwitterTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(twitterUserBody("not-a-number"))
	})

	// A malformed id must surface, not persist accountId 0.
	_, err := src.Fetch(context.Background(), "jack")
	require.Error(t, err)
	assert.False(t, apperrors.IsTransient(err))
}

func TestTwitter_ProbeUnknownUsername(t *testing.T) {
	src := newTwitterTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		// The v2 API reports unknown usernames with a 200 and an
		// errors array.
		_, _ = w.Write([]byte(`{"errors": [{"title": "Not Found Error"}]}`))
	})

	err := src.Probe(context.Background(), "nobody-here")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
