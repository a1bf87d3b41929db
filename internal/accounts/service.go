package accounts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort abstracts persistence for the directory service.
type RepositoryPort interface {
	GetByCode(ctx context.Context, companyID int64, code string) (Account, error)
	GetByID(ctx context.Context, id int64) (Account, error)
	List(ctx context.Context, companyID int64) ([]Account, error)
	SetActive(ctx context.Context, companyID int64, code string, active bool) error
	Seed(ctx context.Context, companyID int64) error
}

// Service resolves stable account codes to account records.
type Service struct {
	repo  RepositoryPort
	cache *Cache
	group singleflight.Group
}

// NewService constructs the directory service. cache may be nil.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Resolve returns the account for a stable code. Lookups collapse through
// singleflight so a cold cache does not stampede the database.
func (s *Service) Resolve(ctx context.Context, companyID int64, code string) (Account, error) {
	if code == "" {
		return Account{}, errors.New("accounts: code required")
	}
	if account, ok := s.cache.Get(ctx, companyID, code); ok {
		return account, nil
	}
	value, err, _ := s.group.Do(fmt.Sprintf("%d:%s", companyID, code), func() (any, error) {
		account, err := s.repo.GetByCode(ctx, companyID, code)
		if err != nil {
			return Account{}, err
		}
		_ = s.cache.Set(ctx, account)
		return account, nil
	})
	if err != nil {
		return Account{}, err
	}
	return value.(Account), nil
}

// ResolveActive resolves a code and rejects deactivated accounts. New postings
// must not target an inactive account; historical entries are unaffected.
func (s *Service) ResolveActive(ctx context.Context, companyID int64, code string) (Account, error) {
	account, err := s.Resolve(ctx, companyID, code)
	if err != nil {
		return Account{}, err
	}
	if !account.IsActive {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountInactive, code)
	}
	return account, nil
}

// List returns the chart of accounts for a company.
func (s *Service) List(ctx context.Context, companyID int64) ([]Account, error) {
	return s.repo.List(ctx, companyID)
}

// SetActive toggles an account and invalidates the cache entry.
func (s *Service) SetActive(ctx context.Context, companyID int64, code string, active bool) error {
	if err := s.repo.SetActive(ctx, companyID, code, active); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, companyID, code)
}

// Seed provisions the fixed chart for a company.
func (s *Service) Seed(ctx context.Context, companyID int64) error {
	return s.repo.Seed(ctx, companyID)
}
