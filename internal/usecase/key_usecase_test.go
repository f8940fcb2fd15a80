package usecase_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"app/internal/domain/model"
	infraRepo "app/internal/infra/repository"
	repo "app/internal/repository"
	"app/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type AdminKeyRepoMock struct{ mock.Mock }

func (m *AdminKeyRepoMock) Create(ctx context.Context, key *model.AccessKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *AdminKeyRepoMock) FindByID(ctx context.Context, id string) (*model.AccessKey, error) {
	args := m.Called(ctx, id)
	key, _ := args.Get(0).(*model.AccessKey)
	return key, args.Error(1)
}

func (m *AdminKeyRepoMock) ConditionalBind(ctx context.Context, id string, deviceID string, now time.Time) (repo.BindResult, error) {
	panic("not used in KeyUsecase tests")
}

func (m *AdminKeyRepoMock) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	args := m.Called(ctx, id, expiresAt)
	return args.Error(0)
}

func (m *AdminKeyRepoMock) UpdateLabel(ctx context.Context, id string, label string) error {
	args := m.Called(ctx, id, label)
	return args.Error(0)
}

func (m *AdminKeyRepoMock) ClearBinding(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *AdminKeyRepoMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *AdminKeyRepoMock) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AdminKeyRepoMock) List(ctx context.Context, q repo.AccessKeyListQuery) ([]model.AccessKey, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.AccessKey)
	return items, args.Get(1).(int64), args.Error(2)
}

type seqIDGenerator struct{ n int }

func (g *seqIDGenerator) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func assertStatusContains(t *testing.T, err error, status int, msg string) {
	t.Helper()

	he, ok := usecase.AsHTTPError(err)
	if !ok {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	assert.Equal(t, status, he.Status)
	assert.Contains(t, he.Message, msg)
}

// =====================
// Issue / BulkIssue
// =====================

func TestKeyUsecase_Issue_InvalidDuration(t *testing.T) {
	uc := usecase.NewKeyUsecase(new(AdminKeyRepoMock), &seqIDGenerator{}, &fixedClock{now: baseTime})

	_, err := uc.Issue(context.Background(), usecase.IssueKeyInput{Label: "a", DurationDays: 0})
	assertStatusContains(t, err, 400, "duration_days")
}

func TestKeyUsecase_Issue_Success(t *testing.T) {
	ctx := context.Background()

	store := infraRepo.NewAccessKeyMemoryRepository()
	uc := usecase.NewKeyUsecase(store, &seqIDGenerator{}, &fixedClock{now: baseTime})

	key, err := uc.Issue(ctx, usecase.IssueKeyInput{Label: "  trial  ", DurationDays: 30})
	assert.NoError(t, err)

	assert.Equal(t, "id-1", key.ID)
	assert.Equal(t, "trial", key.Label)
	assert.Nil(t, key.BoundDeviceID)
	assert.Equal(t, baseTime, key.CreatedAt)
	assert.Equal(t, baseTime.Add(30*24*time.Hour), key.ExpiresAt)

	saved, err := store.FindByID(ctx, "id-1")
	assert.NoError(t, err)
	assert.Nil(t, saved.BoundDeviceID)
}

// ID衝突は作り直しで吸収される
func TestKeyUsecase_Issue_RetriesOnConflict(t *testing.T) {
	ctx := context.Background()

	kRepo := new(AdminKeyRepoMock)
	kRepo.On("Create", mock.Anything, mock.Anything).Return(repo.ErrConflict).Once()
	kRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	key, err := uc.Issue(ctx, usecase.IssueKeyInput{Label: "a", DurationDays: 1})
	assert.NoError(t, err)
	assert.Equal(t, "id-2", key.ID)

	kRepo.AssertExpectations(t)
}

func TestKeyUsecase_Issue_ConflictAfterRetries(t *testing.T) {
	ctx := context.Background()

	kRepo := new(AdminKeyRepoMock)
	kRepo.On("Create", mock.Anything, mock.Anything).Return(repo.ErrConflict)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	_, err := uc.Issue(ctx, usecase.IssueKeyInput{Label: "a", DurationDays: 1})
	assertStatusContains(t, err, 409, "conflict")
}

func TestKeyUsecase_BulkIssue_CountCap(t *testing.T) {
	uc := usecase.NewKeyUsecase(new(AdminKeyRepoMock), &seqIDGenerator{}, &fixedClock{now: baseTime})

	_, err := uc.BulkIssue(context.Background(), usecase.BulkIssueInput{Count: 51, Label: "a", DurationDays: 1})
	assertStatusContains(t, err, 400, "<= 50")

	_, err = uc.BulkIssue(context.Background(), usecase.BulkIssueInput{Count: 0, Label: "a", DurationDays: 1})
	assertStatusContains(t, err, 400, ">= 1")
}

func TestKeyUsecase_BulkIssue_Success(t *testing.T) {
	ctx := context.Background()

	store := infraRepo.NewAccessKeyMemoryRepository()
	uc := usecase.NewKeyUsecase(store, &seqIDGenerator{}, &fixedClock{now: baseTime})

	out, err := uc.BulkIssue(ctx, usecase.BulkIssueInput{Count: 5, Label: "batch", DurationDays: 7})
	assert.NoError(t, err)
	assert.Equal(t, 5, out.Requested)
	assert.Equal(t, 5, out.Created)
	assert.Equal(t, 5, len(out.Items))
}

// 途中で失敗したら止まり、成功済み件数が正確に残る
func TestKeyUsecase_BulkIssue_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()

	kRepo := new(AdminKeyRepoMock)
	kRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Twice()
	kRepo.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	out, err := uc.BulkIssue(ctx, usecase.BulkIssueInput{Count: 5, Label: "batch", DurationDays: 7})
	assert.Error(t, err)
	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 2, len(out.Items))
}

// =====================
// Extend
// =====================

// 期限内のキーは「今の期限」に積む
func TestKeyUsecase_Extend_Unexpired(t *testing.T) {
	ctx := context.Background()

	oldExpiry := baseTime.Add(10 * 24 * time.Hour)

	kRepo := new(AdminKeyRepoMock)
	kRepo.On("FindByID", mock.Anything, "key-1").Return(&model.AccessKey{
		ID:        "key-1",
		ExpiresAt: oldExpiry,
	}, nil)
	kRepo.On("UpdateExpiry", mock.Anything, "key-1", oldExpiry.Add(5*24*time.Hour)).Return(nil)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	key, err := uc.Extend(ctx, "key-1", usecase.ExtendKeyInput{ExtraDays: 5})
	assert.NoError(t, err)
	assert.Equal(t, oldExpiry.Add(5*24*time.Hour), key.ExpiresAt)

	kRepo.AssertExpectations(t)
}

// 期限切れのキーは延長時点からやり直す（過去の期限には積まない）
func TestKeyUsecase_Extend_ExpiredRestartsFromNow(t *testing.T) {
	ctx := context.Background()

	kRepo := new(AdminKeyRepoMock)
	kRepo.On("FindByID", mock.Anything, "key-1").Return(&model.AccessKey{
		ID:        "key-1",
		ExpiresAt: baseTime.Add(-30 * 24 * time.Hour),
	}, nil)
	kRepo.On("UpdateExpiry", mock.Anything, "key-1", baseTime.Add(5*24*time.Hour)).Return(nil)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	key, err := uc.Extend(ctx, "key-1", usecase.ExtendKeyInput{ExtraDays: 5})
	assert.NoError(t, err)
	assert.Equal(t, baseTime.Add(5*24*time.Hour), key.ExpiresAt)

	kRepo.AssertExpectations(t)
}

func TestKeyUsecase_Extend_NotFound(t *testing.T) {
	kRepo := new(AdminKeyRepoMock)
	kRepo.On("FindByID", mock.Anything, "missing").Return(nil, repo.ErrNotFound)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	_, err := uc.Extend(context.Background(), "missing", usecase.ExtendKeyInput{ExtraDays: 5})
	assertStatusContains(t, err, 404, "not found")
}

func TestKeyUsecase_Extend_InvalidExtraDays(t *testing.T) {
	uc := usecase.NewKeyUsecase(new(AdminKeyRepoMock), &seqIDGenerator{}, &fixedClock{now: baseTime})

	_, err := uc.Extend(context.Background(), "key-1", usecase.ExtendKeyInput{ExtraDays: 0})
	assertStatusContains(t, err, 400, "extra_days")
}

// =====================
// ResetBinding / UpdateLabel / Delete
// =====================

func TestKeyUsecase_ResetBinding(t *testing.T) {
	kRepo := new(AdminKeyRepoMock)
	kRepo.On("ClearBinding", mock.Anything, "key-1").Return(nil)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	assert.NoError(t, uc.ResetBinding(context.Background(), "key-1"))
	kRepo.AssertExpectations(t)
}

func TestKeyUsecase_ResetBinding_NotFound(t *testing.T) {
	kRepo := new(AdminKeyRepoMock)
	kRepo.On("ClearBinding", mock.Anything, "missing").Return(repo.ErrNotFound)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	err := uc.ResetBinding(context.Background(), "missing")
	assertStatusContains(t, err, 404, "not found")
}

func TestKeyUsecase_UpdateLabel_NotFound(t *testing.T) {
	kRepo := new(AdminKeyRepoMock)
	kRepo.On("UpdateLabel", mock.Anything, "missing", "new label").Return(repo.ErrNotFound)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	err := uc.UpdateLabel(context.Background(), "missing", "new label")
	assertStatusContains(t, err, 404, "not found")
}

func TestKeyUsecase_Delete_NotFound(t *testing.T) {
	kRepo := new(AdminKeyRepoMock)
	kRepo.On("Delete", mock.Anything, "missing").Return(repo.ErrNotFound)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	err := uc.Delete(context.Background(), "missing")
	assertStatusContains(t, err, 404, "not found")
}

// =====================
// PurgeExpired
// =====================

// 期限切れだけが消え、期限内は残る
func TestKeyUsecase_PurgeExpired_IsExact(t *testing.T) {
	ctx := context.Background()

	store := infraRepo.NewAccessKeyMemoryRepository()
	assert.NoError(t, store.Create(ctx, &model.AccessKey{ID: "expired-1", ExpiresAt: baseTime.Add(-time.Hour)}))
	assert.NoError(t, store.Create(ctx, &model.AccessKey{ID: "expired-2", ExpiresAt: baseTime.Add(-time.Minute)}))
	assert.NoError(t, store.Create(ctx, &model.AccessKey{ID: "live-1", ExpiresAt: baseTime.Add(time.Hour)}))

	uc := usecase.NewKeyUsecase(store, &seqIDGenerator{}, &fixedClock{now: baseTime})

	out, err := uc.PurgeExpired(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), out.Deleted)

	_, err = store.FindByID(ctx, "expired-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = store.FindByID(ctx, "live-1")
	assert.NoError(t, err)
}

// =====================
// Duplicate
// =====================

// 残り36時間→2日に切り上げて引き継ぐ
func TestKeyUsecase_Duplicate_CarriesRemainingDaysRoundedUp(t *testing.T) {
	ctx := context.Background()

	store := infraRepo.NewAccessKeyMemoryRepository()
	device := "device-x"
	assert.NoError(t, store.Create(ctx, &model.AccessKey{
		ID:            "src",
		Label:         "gold",
		BoundDeviceID: &device,
		CreatedAt:     baseTime.Add(-24 * time.Hour),
		ExpiresAt:     baseTime.Add(36 * time.Hour),
	}))

	uc := usecase.NewKeyUsecase(store, &seqIDGenerator{}, &fixedClock{now: baseTime})

	key, err := uc.Duplicate(ctx, "src")
	assert.NoError(t, err)

	assert.NotEqual(t, "src", key.ID)
	assert.Equal(t, "gold (copy)", key.Label)
	assert.Equal(t, baseTime.Add(2*24*time.Hour), key.ExpiresAt)

	//複製は必ず未使用から始まる
	assert.Nil(t, key.BoundDeviceID)
}

// 期限切れの複製でも最低1日は付く
func TestKeyUsecase_Duplicate_ExpiredGetsOneDay(t *testing.T) {
	ctx := context.Background()

	store := infraRepo.NewAccessKeyMemoryRepository()
	assert.NoError(t, store.Create(ctx, &model.AccessKey{
		ID:        "src",
		Label:     "old",
		CreatedAt: baseTime.Add(-48 * time.Hour),
		ExpiresAt: baseTime.Add(-24 * time.Hour),
	}))

	uc := usecase.NewKeyUsecase(store, &seqIDGenerator{}, &fixedClock{now: baseTime})

	key, err := uc.Duplicate(ctx, "src")
	assert.NoError(t, err)
	assert.Equal(t, baseTime.Add(24*time.Hour), key.ExpiresAt)
}

func TestKeyUsecase_Duplicate_NotFound(t *testing.T) {
	kRepo := new(AdminKeyRepoMock)
	kRepo.On("FindByID", mock.Anything, "missing").Return(nil, repo.ErrNotFound)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	_, err := uc.Duplicate(context.Background(), "missing")
	assertStatusContains(t, err, 404, "not found")
}

// =====================
// List
// =====================

func TestKeyUsecase_List_InvalidPage(t *testing.T) {
	uc := usecase.NewKeyUsecase(new(AdminKeyRepoMock), &seqIDGenerator{}, &fixedClock{now: baseTime})

	_, err := uc.List(context.Background(), usecase.KeyListInput{Page: 0, Limit: 20})
	assertStatusContains(t, err, 400, "invalid page")
}

func TestKeyUsecase_List_Success(t *testing.T) {
	ctx := context.Background()

	kRepo := new(AdminKeyRepoMock)
	q := repo.AccessKeyListQuery{Page: 1, Limit: 20}
	items := []model.AccessKey{{ID: "key-1"}}
	kRepo.On("List", mock.Anything, q).Return(items, int64(1), nil)

	uc := usecase.NewKeyUsecase(kRepo, &seqIDGenerator{}, &fixedClock{now: baseTime})

	out, err := uc.List(ctx, usecase.KeyListInput{Page: 1, Limit: 20})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), out.Total)
	assert.Equal(t, 1, len(out.Items))

	kRepo.AssertExpectations(t)
}
