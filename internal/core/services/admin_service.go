package services

import (
	"context"
	"sort"
	"strings"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"

	"go.uber.org/zap"
)

// BanListener is told when a user is banned so their connections can be closed.
type BanListener interface {
	UserBanned(ctx context.Context, id domain.UserID)
}

// AdminService backs the owner console. Every method checks that the caller
// holds the owner role.
type AdminService struct {
	users    ports.UserRepository
	posts    ports.PostRepository
	lives    ports.LiveRepository
	listener BanListener
	logger   *zap.SugaredLogger
}

// NewAdminService creates an admin service.
func NewAdminService(
	users ports.UserRepository,
	posts ports.PostRepository,
	lives ports.LiveRepository,
	logger *zap.SugaredLogger,
) *AdminService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AdminService{users: users, posts: posts, lives: lives, logger: logger}
}

// SetBanListener registers the component that disconnects banned users.
func (s *AdminService) SetBanListener(l BanListener) {
	s.listener = l
}

func (s *AdminService) requireOwner(ctx context.Context, caller domain.UserID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !domain.IsOwnerName(user.Username) {
		return nil, domain.ErrOwnerOnly
	}
	return user, nil
}

// Stats returns site-wide counters.
func (s *AdminService) Stats(ctx context.Context, caller domain.UserID) (*domain.Stats, error) {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.Count(ctx)
	if err != nil {
		return nil, err
	}
	lives, err := s.lives.ListLive(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.Stats{
		TotalUsers:  len(users),
		TotalPosts:  posts,
		ActiveLives: len(lives),
	}
	for _, u := range users {
		if u.Banned {
			stats.BannedUsers++
		}
	}
	return stats, nil
}

// ListUsers returns users matching search, most recently registered first.
func (s *AdminService) ListUsers(ctx context.Context, caller domain.UserID, search string) ([]*domain.User, error) {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := filterUsers(users, func(u *domain.User) bool { return matchesSearch(u, search) })
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// BanList lists every user except the caller, filtered by ban state and
// search, ordered by username.
func (s *AdminService) BanList(ctx context.Context, caller domain.UserID, filter domain.BanFilter, search string) ([]*domain.User, error) {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return nil, err
	}

	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := filterUsers(users, func(u *domain.User) bool {
		if u.ID == caller {
			return false
		}
		switch filter {
		case domain.BanFilterBanned:
			if !u.Banned {
				return false
			}
		case domain.BanFilterActive:
			if u.Banned {
				return false
			}
		}
		return matchesSearch(u, search)
	})
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username)
	})
	return out, nil
}

// SetBanned bans or unbans target. Owners cannot be banned.
func (s *AdminService) SetBanned(ctx context.Context, caller, target domain.UserID, banned bool) error {
	if _, err := s.requireOwner(ctx, caller); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, target)
	if err != nil {
		return err
	}
	if banned && (user.IsOwner || domain.IsOwnerName(user.Username)) {
		return domain.ErrOwnerCannotBeBanned
	}

	if err := s.users.Update(ctx, target, map[string]any{"banned": banned}); err != nil {
		return err
	}

	s.logger.Infow("ban state changed", "by", caller, "user_id", target, "banned", banned)
	if banned && s.listener != nil {
		s.listener.UserBanned(ctx, target)
	}
	return nil
}

func filterUsers(users []*domain.User, keep func(*domain.User) bool) []*domain.User {
	out := make([]*domain.User, 0, len(users))
	for _, u := range users {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}

func matchesSearch(u *domain.User, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(u.Username), search) ||
		strings.Contains(strings.ToLower(u.Email), search)
}

// UsersFromSnapshot decodes a users snapshot, most recently registered
// first, and returns the keys it could not decode.
func UsersFromSnapshot(snap ports.Snapshot) ([]*domain.User, []string) {
	users := make([]*domain.User, 0, len(snap.Children))
	skipped := ports.ForEachValid(snap, func(key string, u *domain.User) {
		u.ID = domain.UserID(key)
		users = append(users, u)
	})
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, skipped
}
