package domain

import "strings"

// Store collections and documents.
const (
	LivesCollection     = "lives"
	CooldownsCollection = "cooldowns"
	UsersCollection     = "users"
	AccountsCollection  = "accounts"
	PostsCollection     = "posts"
	OwnerPopupDocument  = "ownerPopup"
)

// LivePath is the broadcast record of id.
func LivePath(id UserID) string {
	return JoinPath(LivesCollection, string(id))
}

// CooldownPath is the cooldown record of id.
func CooldownPath(id UserID) string {
	return JoinPath(CooldownsCollection, string(id))
}

func UserPath(id UserID) string {
	return JoinPath(UsersCollection, string(id))
}

func AccountPath(id UserID) string {
	return JoinPath(AccountsCollection, string(id))
}

func PostPath(id PostID) string {
	return JoinPath(PostsCollection, string(id))
}

func JoinPath(parts ...string) string {
	return strings.Join(parts, "/")
}

// SplitPath returns the parent collection and child key of path.
// A top-level path has an empty parent.
func SplitPath(path string) (parent, key string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
