package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service owns account records. Emails are compared case-insensitively, so
// they are normalized before they reach the repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create stores a new account on the free plan.
func (s *Service) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	now := s.now().UTC()
	user := &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Plan:         PlanFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByEmail returns nil, nil when no account matches.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

// GetByID returns nil, nil when no account matches.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.repo.ExistsByEmail(ctx, NormalizeEmail(email))
}

// ChangePlan switches the advertised plan. It does not touch the daily quota.
func (s *Service) ChangePlan(ctx context.Context, id uuid.UUID, plan string) error {
	p, err := ParsePlan(plan)
	if err != nil {
		return err
	}
	return s.repo.UpdatePlan(ctx, id, p)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
