package document

import (
	"context"
	"sort"

	"novaled/internal/core/domain"
	"novaled/internal/core/ports"
)

// UserRepository keeps profiles at users/{uid} and credentials at accounts/{uid}.
type UserRepository struct {
	store ports.SessionStore
}

// NewUserRepository creates a user repository over store.
func NewUserRepository(store ports.SessionStore) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User, account *domain.Account) error {
	userPath := domain.UserPath(user.ID)
	if err := r.store.Write(ctx, userPath, user); err != nil {
		return domain.NewStoreError("write", userPath, err)
	}

	accountPath := domain.AccountPath(user.ID)
	if err := r.store.Write(ctx, accountPath, account); err != nil {
		// A profile without credentials can never log in; drop it.
		_ = r.store.Delete(ctx, userPath)
		return domain.NewStoreError("write", accountPath, err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	path := domain.UserPath(id)
	snap, err := r.store.Read(ctx, path)
	if err != nil {
		return nil, domain.NewStoreError("read", path, err)
	}
	if !snap.Exists() {
		return nil, domain.ErrUserNotFound
	}

	var user domain.User
	if err := snap.Decode(&user); err != nil {
		return nil, domain.NewStoreError("decode", path, err)
	}
	user.ID = id
	return &user, nil
}

// GetAccount returns the private account record of id.
func (r *UserRepository) GetAccount(ctx context.Context, id domain.UserID) (*domain.Account, error) {
	path := domain.AccountPath(id)
	snap, err := r.store.Read(ctx, path)
	if err != nil {
		return nil, domain.NewStoreError("read", path, err)
	}
	if !snap.Exists() {
		return nil, domain.ErrUserNotFound
	}

	var account domain.Account
	if err := snap.Decode(&account); err != nil {
		return nil, domain.NewStoreError("decode", path, err)
	}
	return &account, nil
}

// FindByUsername matches the username exactly.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.find(ctx, func(u *domain.User) bool { return u.Username == username })
}

// FindByEmail scans accounts for a normalized email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.find(ctx, func(u *domain.User) bool { return u.Email == email })
}

// List returns every user ordered by id.
func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	snap, err := r.store.Read(ctx, domain.UsersCollection)
	if err != nil {
		return nil, domain.NewStoreError("read", domain.UsersCollection, err)
	}

	users := make([]*domain.User, 0, len(snap.Children))
	err = ports.ForEach(snap, func(key string, u *domain.User) error {
		u.ID = domain.UserID(key)
		users = append(users, u)
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("decode", domain.UsersCollection, err)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *UserRepository) Update(ctx context.Context, id domain.UserID, fields map[string]any) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}

	path := domain.UserPath(id)
	if err := r.store.Patch(ctx, path, fields); err != nil {
		return domain.NewStoreError("patch", path, err)
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id domain.UserID, hash string) error {
	path := domain.AccountPath(id)
	if err := r.store.Patch(ctx, path, map[string]any{"passwordHash": hash}); err != nil {
		return domain.NewStoreError("patch", path, err)
	}
	return nil
}

func (r *UserRepository) find(ctx context.Context, match func(*domain.User) bool) (*domain.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if match(u) {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}
