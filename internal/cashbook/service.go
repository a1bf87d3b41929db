package cashbook

import (
	"context"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, m Movement) (Movement, error)
	List(ctx context.Context, companyID int64, limit int) ([]Movement, error)
}

// Service registers cash and bank movements for settled documents.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Register validates and persists a movement.
func (s *Service) Register(ctx context.Context, m Movement) (Movement, error) {
	if err := m.Validate(); err != nil {
		return Movement{}, err
	}
	return s.repo.Insert(ctx, m)
}

// List returns recent movements for a company.
func (s *Service) List(ctx context.Context, companyID int64, limit int) ([]Movement, error) {
	return s.repo.List(ctx, companyID, limit)
}
