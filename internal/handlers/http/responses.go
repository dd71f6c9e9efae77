package http

import (
	"time"

	"novaled/internal/core/domain"
)

// UserResponse is the public view of a user. Email is only filled in for
// the user themselves and for owners.
type UserResponse struct {
	ID          domain.UserID `json:"id"`
	Username    string        `json:"username"`
	DisplayName string        `json:"displayName"`
	Email       string        `json:"email,omitempty"`
	IsOwner     bool          `json:"isOwner"`
	Avatar      string        `json:"avatar"`
	CreatedAt   time.Time     `json:"createdAt"`
	Banned      bool          `json:"banned"`
	PostCount   int           `json:"postCount"`
}

func NewUserResponse(u *domain.User, withEmail bool) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: domain.DisplayName(u.Username),
		IsOwner:     u.IsOwner,
		Avatar:      u.Avatar,
		CreatedAt:   u.CreatedAt,
		Banned:      u.Banned,
		PostCount:   u.PostCount,
	}
	if withEmail {
		resp.Email = u.Email
	}
	return resp
}

func newUserResponses(users []*domain.User, withEmail bool) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, NewUserResponse(u, withEmail))
	}
	return out
}
