package domain

import (
	"regexp"
	"strings"
	"time"
)

type UserID string

// DefaultAvatar is assigned on registration.
const DefaultAvatar = "data:image/svg+xml;base64,PHN2ZyB3aWR0aD0iMTAwIiBoZWlnaHQ9IjEwMCIgeG1sbnM9Imh0dHA6Ly93d3cudzMub3JnLzIwMDAvc3ZnIj48Y2lyY2xlIGN4PSI1MCIgY3k9IjUwIiByPSI1MCIgZmlsbD0iIzZCN0FBQSIvPjx0ZXh0IHg9IjUwJSIgeT0iNTAlIiBmb250LXNpemU9IjQwIiBmaWxsPSJ3aGl0ZSIgdGV4dC1hbmNob3I9Im1pZGRsZSIgZHk9Ii4zZW0iPjwvdGV4dD48L3N2Zz4="

// OwnerBadge prefixes owner display names.
const OwnerBadge = "🪬"

var emojiPattern = regexp.MustCompile(`[\x{1F300}-\x{1F9FF}]`)

// User is the public profile stored at users/{uid}.
type User struct {
	ID        UserID    `json:"-"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsOwner   bool      `json:"isOwner"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
	Banned    bool      `json:"banned"`
	PostCount int       `json:"postCount"`
}

// DisplayName is the username as other users see it.
func (u *User) DisplayName() string {
	return DisplayName(u.Username)
}

// Account holds credentials at accounts/{uid}. It is never served to clients.
type Account struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

// UserRole is derived from the username.
type UserRole string

const (
	RoleOwner UserRole = "owner"
	RoleUser  UserRole = "user"
)

// IsOwnerName reports whether a username carries the privileged owner role.
func IsOwnerName(username string) bool {
	return strings.Contains(strings.ToLower(username), "dev")
}

// RoleOf returns the role a username grants.
func RoleOf(username string) UserRole {
	if IsOwnerName(username) {
		return RoleOwner
	}
	return RoleUser
}

// ContainsEmoji reports whether s has a pictograph emoji.
func ContainsEmoji(s string) bool {
	return emojiPattern.MatchString(s)
}

// CanUseEmoji reports whether username may contain emoji.
func CanUseEmoji(username string) bool {
	return IsOwnerName(username)
}

func DisplayName(username string) string {
	if IsOwnerName(username) {
		return OwnerBadge + " " + username
	}
	return username
}
