package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-dead-mans-switch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func ptr(s string) *string { return &s }

func newTestService() (Service, *mockUserStore, *clock.Mock) {
	repo := new(mockUserStore)
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return NewService(repo, clk), repo, clk
}

func TestSaveContact_CreatesRecord(t *testing.T) {
	svc, repo, clk := newTestService()
	repo.On("Get", mock.Anything, "u1").Return(nil, domain.ErrNotFound)
	repo.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	u, err := svc.SaveContact(context.Background(), "u1", ContactRequest{
		Name: "Ada", Email: "ada@example.com", Phone: ptr("+15550100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, clk.Now(), u.CreatedAt)
	assert.False(t, u.PhoneConfirmed)
}

func TestSaveContact_ChangedPhoneClearsConfirmation(t *testing.T) {
	svc, repo, _ := newTestService()
	existing := &domain.User{
		UserID: "u1", Name: "Ada", Email: "ada@example.com", Phone: ptr("+15550100"),
		EmailConfirmed: true, PhoneConfirmed: true,
	}
	repo.On("Get", mock.Anything, "u1").Return(existing, nil)
	repo.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	u, err := svc.SaveContact(context.Background(), "u1", ContactRequest{
		Name: "Ada L.", Email: "ada@example.com", Phone: ptr("+15550199"),
	})
	require.NoError(t, err)
	assert.True(t, u.EmailConfirmed)
	assert.False(t, u.PhoneConfirmed)
	assert.Equal(t, "Ada L.", u.Name)
}

func TestSaveContact_Invalid(t *testing.T) {
	svc, repo, _ := newTestService()
	_, err := svc.SaveContact(context.Background(), "u1", ContactRequest{Name: "Ada", Email: "nope"})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	_, err = svc.SaveContact(context.Background(), "u1", ContactRequest{Name: "Ada", Email: "a@b.co", Phone: ptr("555")})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	repo.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestConfirm(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.On("Get", mock.Anything, "nophone").Return(&domain.User{UserID: "nophone"}, nil)
	repo.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", Phone: ptr("+15550100")}, nil)
	repo.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	_, err := svc.Confirm(context.Background(), "nophone", ConfirmRequest{Phone: true})
	assert.True(t, errors.Is(err, domain.ErrBadRequest))

	u, err := svc.Confirm(context.Background(), "u1", ConfirmRequest{Phone: true})
	require.NoError(t, err)
	assert.True(t, u.HasVerifiedPhone())
	assert.False(t, u.EmailConfirmed)
}
