package services

import (
	"context"
	"sync"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
	"novaled/pkg/utils"
	"novaled/pkg/validation"

	"go.uber.org/zap"
)

// PopupService sends the owner's broadcast message to every connected client.
type PopupService struct {
	store  ports.SessionStore
	users  ports.UserRepository
	logger *zap.SugaredLogger
}

// NewPopupService creates a popup service.
func NewPopupService(store ports.SessionStore, users ports.UserRepository, logger *zap.SugaredLogger) *PopupService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PopupService{store: store, users: users, logger: logger}
}

// Send writes a popup message visible to every client.
func (s *PopupService) Send(ctx context.Context, caller domain.UserID, message string) (*domain.OwnerPopup, error) {
	message = utils.SanitizeString(message)
	if err := validation.ValidateStringLength(message, 1, validation.MaxMessageLength, "message"); err != nil {
		return nil, invalidInput(err)
	}

	user, err := s.users.GetByID(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !domain.IsOwnerName(user.Username) {
		return nil, domain.ErrOwnerOnly
	}

	now, err := s.store.ServerTimestamp(ctx)
	if err != nil {
		return nil, domain.NewStoreError("timestamp", domain.OwnerPopupDocument, err)
	}

	popup := &domain.OwnerPopup{
		Message:   message,
		Timestamp: now,
		SendBy:    user.DisplayName(),
	}
	if err := s.store.Write(ctx, domain.OwnerPopupDocument, popup); err != nil {
		return nil, domain.NewStoreError("write", domain.OwnerPopupDocument, err)
	}

	s.logger.Infow("owner popup sent", "user_id", caller, "preview", utils.TruncateString(message, 40))
	return popup, nil
}

// Subscribe calls fn for every popup sent after since. The stored popup from
// before since is not replayed, and the same popup is delivered once.
func (s *PopupService) Subscribe(ctx context.Context, since time.Time, fn func(domain.OwnerPopup)) (ports.Unsubscribe, error) {
	var mu sync.Mutex
	last := since

	return s.store.Subscribe(ctx, domain.OwnerPopupDocument, func(snap ports.Snapshot) {
		if !snap.Exists() {
			return
		}
		var popup domain.OwnerPopup
		if err := snap.Decode(&popup); err != nil {
			s.logger.Warnw("undecodable owner popup", "error", err)
			return
		}

		mu.Lock()
		fresh := popup.Timestamp.After(last)
		if fresh {
			last = popup.Timestamp
		}
		mu.Unlock()

		if fresh {
			fn(popup)
		}
	})
}
