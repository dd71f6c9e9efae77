package document

import (
	"context"
	"sort"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"

	"go.uber.org/zap"
)

// LiveRepository reads and removes lives/{uid} records.
type LiveRepository struct {
	store  ports.SessionStore
	logger *zap.SugaredLogger
}

func NewLiveRepository(store ports.SessionStore, logger *zap.SugaredLogger) *LiveRepository {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LiveRepository{store: store, logger: logger}
}

// ListLive returns every record marked live, oldest broadcast first. Records
// that do not decode are logged and skipped.
func (r *LiveRepository) ListLive(ctx context.Context) ([]*domain.BroadcastSession, error) {
	snap, err := r.store.Read(ctx, domain.LivesCollection)
	if err != nil {
		return nil, domain.NewStoreError("read", domain.LivesCollection, err)
	}

	sessions := make([]*domain.BroadcastSession, 0, len(snap.Children))
	skipped := ports.ForEachValid(snap, func(key string, s *domain.BroadcastSession) {
		if s.OwnerID == "" {
			s.OwnerID = domain.UserID(key)
		}
		if s.IsLive {
			sessions = append(sessions, s)
		}
	})
	if len(skipped) > 0 {
		r.logger.Warnw("skipping undecodable live records", "keys", skipped)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions, nil
}

// Delete removes a live record regardless of owner. Used by the stale-session reaper.
func (r *LiveRepository) Delete(ctx context.Context, id domain.UserID) error {
	path := domain.LivePath(id)
	if err := r.store.Delete(ctx, path); err != nil {
		return domain.NewStoreError("delete", path, err)
	}
	return nil
}
