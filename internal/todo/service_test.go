package todo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/security"
)

// memoryRepo は所有者条件を各文に含めるPostgreSQL実装と同じ振る舞いをするインメモリ実装。
type memoryRepo struct {
	mu      sync.Mutex
	rows    map[string]model.Todo
	inserts int
	failErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[string]model.Todo)}
}

func (r *memoryRepo) ListByUserID(_ context.Context, userID string, limit int) ([]*model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}

	var out []*model.Todo
	for _, row := range r.rows {
		if row.UserID == userID {
			row := row
			out = append(out, &row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) Create(_ context.Context, todo *model.Todo) (*model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	r.inserts++
	r.rows[todo.ID] = *todo
	out := *todo
	return &out, nil
}

func (r *memoryRepo) UpdateOwned(_ context.Context, id, userID, title string, description *string, updatedAt time.Time) (*model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.UserID != userID {
		return nil, nil
	}
	row.Title, row.Description, row.UpdatedAt = title, description, updatedAt
	r.rows[id] = row
	return &row, nil
}

func (r *memoryRepo) SetCompletedOwned(_ context.Context, id, userID string, completed bool, updatedAt time.Time) (*model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.UserID != userID {
		return nil, nil
	}
	row.Completed, row.UpdatedAt = completed, updatedAt
	r.rows[id] = row
	return &row, nil
}

func (r *memoryRepo) DeleteOwned(_ context.Context, id, userID string) (*model.Todo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.UserID != userID {
		return nil, nil
	}
	delete(r.rows, id)
	return &row, nil
}

var _ repository.TodoRepository = (*memoryRepo)(nil)

func strPtr(s string) *string { return &s }

// newTestService は時刻を1秒ずつ進めるServiceを返す。
func newTestService(repo repository.TodoRepository) *Service {
	svc := NewService(repo, security.NewTextSanitizer())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc
}

func TestCreate_ThenList_NewestFirstAndOwnerOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Create(ctx, "alice", "first", strPtr(""))
	require.NoError(t, err)
	milk, err := svc.Create(ctx, "alice", "buy milk", strPtr("2%"))
	require.NoError(t, err)

	aliceTodos, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceTodos, 2)
	assert.Equal(t, milk.ID, aliceTodos[0].ID, "newest first")
	assert.Equal(t, first.ID, aliceTodos[1].ID)

	want := &model.Todo{
		ID:          milk.ID,
		Title:       "buy milk",
		Description: strPtr("2%"),
		Completed:   false,
		UserID:      "alice",
		CreatedAt:   milk.CreatedAt,
		UpdatedAt:   milk.CreatedAt,
	}
	if diff := cmp.Diff(want, aliceTodos[0]); diff != "" {
		t.Errorf("created todo mismatch (-want +got):\n%s", diff)
	}

	bobTodos, err := svc.List(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, bobTodos, "empty list encodes as []")
	assert.Empty(t, bobTodos)
}

func TestList_LimitsToTen(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := svc.Create(ctx, "alice", "t", nil)
		require.NoError(t, err)
	}

	todos, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, todos, ListLimit)
}

func TestCreate_SanitizesHTML(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	got, err := svc.Create(context.Background(), "alice", "<b>buy</b> milk<script>x()</script>", strPtr(`<a href="x">2%</a>`))
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got.Title)
	assert.Equal(t, "2%", *got.Description)
}

func TestCreate_TitleEmptyAfterSanitize_IsValidationError(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), "alice", "<b></b>", nil)

	var apiErr *model.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, model.ErrCodeValidation, apiErr.Code)
	assert.Zero(t, repo.inserts, "nothing is inserted")
}

func TestUpdate_OwnershipScoped(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	todo, err := svc.Create(ctx, "alice", "original", strPtr("d"))
	require.NoError(t, err)

	got, err := svc.Update(ctx, "bob", todo.ID, "hijacked", nil)
	require.NoError(t, err)
	assert.Nil(t, got, "non-owner gets nothing")
	assert.Equal(t, "original", repo.rows[todo.ID].Title, "row unchanged")

	got, err = svc.Update(ctx, "alice", todo.ID, "renamed", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "renamed", got.Title)
	assert.Nil(t, got.Description)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	got, err = svc.Update(ctx, "alice", "missing", "x", nil)
	require.NoError(t, err)
	assert.Nil(t, got, "missing and not-owned are indistinguishable")
}

func TestSetCompleted_OwnershipScoped(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	todo, err := svc.Create(ctx, "alice", "task", nil)
	require.NoError(t, err)

	got, err := svc.SetCompleted(ctx, "bob", todo.ID, true)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, repo.rows[todo.ID].Completed)

	got, err = svc.SetCompleted(ctx, "alice", todo.ID, true)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Completed)
}

func TestDelete_OwnershipScoped(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	todo, err := svc.Create(ctx, "alice", "keep", nil)
	require.NoError(t, err)

	got, err := svc.Delete(ctx, "bob", todo.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Contains(t, repo.rows, todo.ID)

	got, err = svc.Delete(ctx, "alice", todo.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, todo.ID, got.ID)
	assert.NotContains(t, repo.rows, todo.ID)
}

func TestRepositoryFailure_IsWrapped(t *testing.T) {
	repo := newMemoryRepo()
	storeErr := errors.New("connection reset")
	repo.failErr = storeErr
	svc := newTestService(repo)

	_, err := svc.List(context.Background(), "alice")
	assert.ErrorIs(t, err, storeErr)

	_, err = svc.Create(context.Background(), "alice", "x", nil)
	assert.ErrorIs(t, err, storeErr)
}
