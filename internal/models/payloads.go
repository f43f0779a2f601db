package models

import "time"

// GitHubProfile is the payload schema for github service records.
type GitHubProfile struct {
	ProfileURL     string             `json:"profileUrl"`
	AvatarURL      string             `json:"avatarUrl"`
	Company        string             `json:"company,omitempty"`
	Biography      string             `json:"biography,omitempty"`
	RepoCount      int                `json:"repoCount"`
	FollowingCount int                `json:"followingCount"`
	FollowersCount int                `json:"followersCount"`
	Repositories   []GitHubRepository `json:"repositories,omitempty"`
}

// GitHubRepository is one public repository belonging to a github
// profile snapshot.
type GitHubRepository struct {
	RepositoryID    int64      `json:"repositoryId"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	URL             string     `json:"url"`
	Fork            bool       `json:"fork"`
	ForkCount       int        `json:"forkCount"`
	WatchersCount   int        `json:"watchersCount"`
	OpenIssuesCount int        `json:"openIssuesCount"`
	PushedAt        *time.Time `json:"pushedAt,omitempty"`
}

// TwitterProfile is the payload schema for twitter service records.
type TwitterProfile struct {
	ProfileURL     string `json:"profileUrl"`
	AvatarURL      string `json:"avatarUrl"`
	Biography      string `json:"biography,omitempty"`
	AccountID      int64  `json:"accountId"`
	Private        bool   `json:"private"`
	TweetCount     int    `json:"tweetCount"`
	FollowingCount int    `json:"followingCount"`
	FollowersCount int    `json:"followersCount"`
}

// DribbbleProfile is the payload schema for dribbble service records.
type DribbbleProfile struct {
	ProfileURL         string         `json:"profileUrl"`
	AvatarURL          string         `json:"avatarUrl"`
	ShotsCount         int            `json:"shotsCount"`
	LikesReceivedCount int            `json:"likesReceivedCount"`
	FollowingCount     int            `json:"followingCount"`
	FollowersCount     int            `json:"followersCount"`
	Shots              []DribbbleShot `json:"shots,omitempty"`
}

// DribbbleShot is one shot belonging to a dribbble profile snapshot.
type DribbbleShot struct {
	ShotID        int64  `json:"shotId"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	ImageURL      string `json:"imageUrl"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	ViewsCount    int    `json:"viewsCount"`
	CommentsCount int    `json:"commentsCount"`
}

// LinkedInProfile is the payload schema for linkedin service records.
type LinkedInProfile struct {
	ProfileURL string `json:"profileUrl"`
	Headline   string `json:"headline,omitempty"`
	JobTitle   string `json:"jobTitle,omitempty"`
}
