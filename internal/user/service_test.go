package user

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/todoman/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return nil
}
func (m *mockUserRepo) UpdateProfile(ctx context.Context, id, email, name string, updatedAt time.Time) error {
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

type invalidatorFunc func(userID string)

func (f invalidatorFunc) InvalidateUser(userID string) { f(userID) }

// recorder は呼び出し順序を記録するモック群を生成する。
func newRecordingService(steps *[]string, sessionErr, deleteErr error) *Service {
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			*steps = append(*steps, "user:"+id)
			return deleteErr
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			*steps = append(*steps, "sessions:"+userID)
			return sessionErr
		},
	}
	inv := invalidatorFunc(func(userID string) {
		*steps = append(*steps, "cache:"+userID)
	})
	return NewService(userRepo, sessionRepo, inv)
}

func TestWithdraw_DeletesInOrder(t *testing.T) {
	var steps []string
	svc := newRecordingService(&steps, nil, nil)

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}

	want := []string{"sessions:user-1", "cache:user-1", "user:user-1"}
	if !reflect.DeepEqual(steps, want) {
		t.Errorf("steps = %v, want %v", steps, want)
	}
}

func TestWithdraw_UserNotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			t.Error("sessions should not be deleted")
			return nil
		},
	}, nil)

	err := svc.Withdraw(context.Background(), "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("error = %v, want USER_NOT_FOUND", err)
	}
}

func TestWithdraw_SessionDeleteFails_StopsBeforeUserDelete(t *testing.T) {
	var steps []string
	svc := newRecordingService(&steps, errors.New("db error"), nil)

	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
	if !reflect.DeepEqual(steps, []string{"sessions:user-1"}) {
		t.Errorf("steps = %v", steps)
	}
}

func TestWithdraw_UserDeleteFails_ReturnsError(t *testing.T) {
	var steps []string
	svc := newRecordingService(&steps, nil, errors.New("db error"))

	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWithdraw_FindFails_ReturnsError(t *testing.T) {
	svc := NewService(&mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}, &mockSessionRepo{}, nil)

	err := svc.Withdraw(context.Background(), "user-1")
	var apiErr *model.APIError
	if err == nil || errors.As(err, &apiErr) {
		t.Errorf("error = %v, want wrapped internal error", err)
	}
}
