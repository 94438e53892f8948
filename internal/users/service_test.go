package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	created  *User
	lookups  []string
	plans    map[uuid.UUID]Plan
	notFound bool
}

func (r *stubRepo) Create(_ context.Context, u *User) error {
	r.created = u
	return nil
}

func (r *stubRepo) GetByID(context.Context, uuid.UUID) (*User, error) { return nil, nil }

func (r *stubRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.lookups = append(r.lookups, email)
	return nil, nil
}

func (r *stubRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.lookups = append(r.lookups, email)
	return false, nil
}

func (r *stubRepo) UpdatePlan(_ context.Context, id uuid.UUID, p Plan) error {
	if r.notFound {
		return ErrUserNotFound
	}
	if r.plans == nil {
		r.plans = map[uuid.UUID]Plan{}
	}
	r.plans[id] = p
	return nil
}

func TestService_NormalizesEmail(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	u, err := svc.Create(ctx, "  Ada@Example.COM ", "hash")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Equal(t, PlanFree, u.Plan)
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)

	_, _ = svc.GetByEmail(ctx, "ADA@example.com")
	_, _ = svc.ExistsByEmail(ctx, "Ada@Example.com")
	assert.Equal(t, []string{"ada@example.com", "ada@example.com"}, repo.lookups)
}

func TestService_ChangePlan(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)
	id := uuid.New()

	require.NoError(t, svc.ChangePlan(context.Background(), id, "business"))
	assert.Equal(t, PlanBusiness, repo.plans[id])

	assert.Error(t, svc.ChangePlan(context.Background(), id, "enterprise"))

	repo.notFound = true
	assert.ErrorIs(t, svc.ChangePlan(context.Background(), id, "basic"), ErrUserNotFound)
}
