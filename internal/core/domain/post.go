package domain

import (
	"sort"
	"time"
)

type PostID string

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Post is a feed item stored at posts/{id}.
type Post struct {
	ID        PostID    `json:"id"`
	UserID    UserID    `json:"userId"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar"`
	Caption   string    `json:"caption"`
	Type      MediaType `json:"type"`
	MediaURL  string    `json:"mediaUrl"`
	Timestamp time.Time `json:"timestamp"`
	Likes     int       `json:"likes"`
	Comments  int       `json:"comments"`
}

// SortNewestFirst orders posts by timestamp, newest first, breaking ties by
// descending id.
func SortNewestFirst(posts []*Post) {
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].Timestamp.Equal(posts[j].Timestamp) {
			return posts[i].Timestamp.After(posts[j].Timestamp)
		}
		return posts[i].ID > posts[j].ID
	})
}

// OwnerPopup is the broadcast message every connected client shows.
type OwnerPopup struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	SendBy    string    `json:"sendBy"`
}

// Stats is the admin console summary.
type Stats struct {
	TotalUsers  int `json:"totalUsers"`
	BannedUsers int `json:"bannedUsers"`
	TotalPosts  int `json:"totalPosts"`
	ActiveLives int `json:"activeLives"`
}

type BanFilter string

const (
	BanFilterAll    BanFilter = "all"
	BanFilterBanned BanFilter = "banned"
	BanFilterActive BanFilter = "active"
)
