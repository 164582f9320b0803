// Package identitysvc resolves which catalog user the storefront acts as.
//
// There is no authentication: logging in picks the next user of a fixed
// rotating pool and logging in as admin always picks the first one.
package identitysvc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mkrupp/storefront/internal/domain"
	"github.com/mkrupp/storefront/internal/infra/logging"
	"github.com/mkrupp/storefront/internal/repo/kv"
	"github.com/mkrupp/storefront/internal/svc/catalogclient"
)

// ErrInvalidPoolSize is returned by NewIdentityService for a pool size below 1.
var ErrInvalidPoolSize = errors.New("pool size must be at least 1")

// IdentityConfig holds configuration for the identity service.
type IdentityConfig struct {
	// PoolSize is the number of catalog users logins rotate through
	PoolSize int64 `env:"POOL_SIZE" envDefault:"10"`
}

// IdentityService keeps the active user under domain.KeyAuthUser and the
// rotation cursor under domain.KeyNextUserID.
type IdentityService struct {
	repo    kv.Repository
	catalog catalogclient.CatalogClient
	cfg     IdentityConfig
	log     logging.Logger

	// mu orders the storage writes of concurrent switches. Catalog fetches
	// happen outside of it.
	mu sync.Mutex
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(
	repo kv.Repository,
	catalog catalogclient.CatalogClient,
	cfg IdentityConfig,
) (*IdentityService, error) {
	if cfg.PoolSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPoolSize, cfg.PoolSize)
	}

	return &IdentityService{
		repo:    repo,
		catalog: catalog,
		cfg:     cfg,
		log:     logging.GetLogger("svc.identitysvc"),
	}, nil
}

// Login switches to the next user of the pool and advances the cursor,
// wrapping from the last pool entry back to 1. The active user is written
// last, so a failed call never leaves a new user active.
func (s *IdentityService) Login(ctx context.Context) (user *domain.User, err error) {
	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "login failed", "error", err)
		} else {
			s.log.InfoContext(ctx, "logged in", logging.Group("user", "id", user.ID, "username", user.Username))
		}
	}()

	s.mu.Lock()
	id := s.nextUserID(ctx)
	s.mu.Unlock()

	user, err = s.fetchUser(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := kv.Save(ctx, s.repo, domain.KeyNextUserID, id%s.cfg.PoolSize+1); err != nil {
		return nil, fmt.Errorf("save next user id: %w", err)
	}

	if err := s.storeUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// LoginAsAdmin switches to the admin user and points the cursor at the
// entry after it.
func (s *IdentityService) LoginAsAdmin(ctx context.Context) (user *domain.User, err error) {
	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "admin login failed", "error", err)
		} else {
			s.log.InfoContext(ctx, "logged in as admin", logging.Group("user", "id", user.ID, "username", user.Username))
		}
	}()

	user, err = s.fetchUser(ctx, domain.AdminUserID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := kv.Save(ctx, s.repo, domain.KeyNextUserID, domain.AdminUserID%s.cfg.PoolSize+1); err != nil {
		return nil, fmt.Errorf("save next user id: %w", err)
	}

	if err := s.storeUser(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Logout forgets the active user. The rotation cursor is kept.
func (s *IdentityService) Logout(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "logout failed", "error", err)
		} else {
			s.log.InfoContext(ctx, "logged out")
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, domain.KeyAuthUser); err != nil {
		return fmt.Errorf("delete auth user: %w", err)
	}

	return nil
}

// Current returns the active user, or nil for a guest. A stored record that
// does not decode is removed.
func (s *IdentityService) Current(ctx context.Context) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current(ctx)
}

// CurrentUserID returns the id of the active user.
func (s *IdentityService) CurrentUserID(ctx context.Context) (int64, bool) {
	user := s.Current(ctx)
	if user == nil {
		return 0, false
	}

	return user.ID, true
}

// UpdateCurrent rewrites the stored active user if it has the same id as
// user. It returns false when user is not the active one.
func (s *IdentityService) UpdateCurrent(ctx context.Context, user domain.User) (updated bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current(ctx)
	if current == nil || current.ID != user.ID {
		return false, nil
	}

	if err := s.storeUser(ctx, &user); err != nil {
		return false, err
	}

	s.log.DebugContext(ctx, "current user updated", logging.Group("user", "id", user.ID))

	return true, nil
}

// IsAdmin reports whether user is the administrator.
func (s *IdentityService) IsAdmin(user *domain.User) bool {
	return user.IsAdmin()
}

func (s *IdentityService) current(ctx context.Context) *domain.User {
	decoded := kv.Load[*domain.User](ctx, s.repo, domain.KeyAuthUser, s.log)

	switch decoded.State {
	case kv.Present:
		if decoded.Value == nil || decoded.Value.ID == 0 {
			return nil
		}

		return decoded.Value
	case kv.Corrupt:
		if err := s.repo.Delete(ctx, domain.KeyAuthUser); err != nil {
			s.log.WarnContext(ctx, "remove corrupt auth user failed", "error", err)
		}

		return nil
	default:
		return nil
	}
}

// nextUserID reads the rotation cursor. Anything outside 1..PoolSize reads as 1.
func (s *IdentityService) nextUserID(ctx context.Context) int64 {
	decoded := kv.Load[int64](ctx, s.repo, domain.KeyNextUserID, s.log)
	if !decoded.Present() || decoded.Value < 1 || decoded.Value > s.cfg.PoolSize {
		return 1
	}

	return decoded.Value
}

func (s *IdentityService) fetchUser(ctx context.Context, id int64) (*domain.User, error) {
	remote, err := s.catalog.User(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch user %d: %w", id, err)
	}

	user := remote.AsUser()

	return &user, nil
}

func (s *IdentityService) storeUser(ctx context.Context, user *domain.User) error {
	if err := kv.Save(ctx, s.repo, domain.KeyAuthUser, user); err != nil {
		return fmt.Errorf("save auth user: %w", err)
	}

	return nil
}
