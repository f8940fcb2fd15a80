package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// 一括発行の上限件数
const BulkIssueMax = 50

// UUID衝突時の再生成回数
const issueRetryMax = 3

// KeyUsecaseはアクセスキーの管理操作（発行・延長・解除・複製など）。
// 権限チェックはmiddleware側で済んでいる前提で、ストアを直接操作する。
type KeyUsecase struct {
	keyRepo repo.AccessKeyRepository
	idGen   IDGenerator
	clock   Clock
}

// DI
func NewKeyUsecase(keyRepo repo.AccessKeyRepository, idGen IDGenerator, clock Clock) *KeyUsecase {
	return &KeyUsecase{
		keyRepo: keyRepo,
		idGen:   idGen,
		clock:   clock,
	}
}

type IssueKeyInput struct {
	Label        string
	DurationDays int
}

func (u *KeyUsecase) Issue(ctx context.Context, in IssueKeyInput) (model.AccessKey, error) {
	if in.DurationDays < 1 {
		return model.AccessKey{}, NewHTTPError(http.StatusBadRequest, "duration_days must be >= 1")
	}
	if len(in.Label) > 255 {
		return model.AccessKey{}, NewHTTPError(http.StatusBadRequest, "label too long")
	}

	now := u.clock.Now()
	key := model.AccessKey{
		Label:         strings.TrimSpace(in.Label),
		BoundDeviceID: nil,
		CreatedAt:     now,
		ExpiresAt:     now.Add(DurationDays(in.DurationDays).Duration()),
	}

	created, err := u.createWithFreshID(ctx, key)
	if err != nil {
		return model.AccessKey{}, err
	}
	return created, nil
}

type BulkIssueInput struct {
	Count        int
	Label        string
	DurationDays int
}

type BulkIssueOutput struct {
	Requested int               `json:"requested"`
	Created   int               `json:"created"`
	Items     []model.AccessKey `json:"items"`
}

// 一括発行。途中で失敗したらそこで止め、成功済み件数を正確に返す。
func (u *KeyUsecase) BulkIssue(ctx context.Context, in BulkIssueInput) (BulkIssueOutput, error) {
	out := BulkIssueOutput{Requested: in.Count, Items: []model.AccessKey{}}

	if in.Count < 1 {
		return out, NewHTTPError(http.StatusBadRequest, "count must be >= 1")
	}
	if in.Count > BulkIssueMax {
		return out, NewHTTPError(http.StatusBadRequest, "count must be <= 50")
	}

	for i := 0; i < in.Count; i++ {
		key, err := u.Issue(ctx, IssueKeyInput{Label: in.Label, DurationDays: in.DurationDays})
		if err != nil {
			return out, err
		}
		out.Items = append(out.Items, key)
		out.Created++
	}

	return out, nil
}

type ExtendKeyInput struct {
	ExtraDays int
}

// 延長の起点は max(expires_at, now)。期限切れのキーを延長すると
// 過去の期限に積むのではなく、延長した時点からやり直しになる。
func (u *KeyUsecase) Extend(ctx context.Context, keyID string, in ExtendKeyInput) (model.AccessKey, error) {
	if strings.TrimSpace(keyID) == "" {
		return model.AccessKey{}, NewHTTPError(http.StatusBadRequest, "invalid key id")
	}
	if in.ExtraDays < 1 {
		return model.AccessKey{}, NewHTTPError(http.StatusBadRequest, "extra_days must be >= 1")
	}

	key, err := u.keyRepo.FindByID(ctx, keyID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.AccessKey{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.AccessKey{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := u.clock.Now()
	base := key.ExpiresAt
	if now.After(base) {
		base = now
	}
	newExpiresAt := base.Add(DurationDays(in.ExtraDays).Duration())

	if err := u.keyRepo.UpdateExpiry(ctx, keyID, newExpiresAt); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.AccessKey{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return model.AccessKey{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	key.ExpiresAt = newExpiresAt
	return *key, nil
}

// 端末の紐付けを解除する。有効期限は変えない。
func (u *KeyUsecase) ResetBinding(ctx context.Context, keyID string) error {
	if strings.TrimSpace(keyID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid key id")
	}

	err := u.keyRepo.ClearBinding(ctx, keyID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *KeyUsecase) UpdateLabel(ctx context.Context, keyID string, label string) error {
	if strings.TrimSpace(keyID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid key id")
	}
	if len(label) > 255 {
		return NewHTTPError(http.StatusBadRequest, "label too long")
	}

	err := u.keyRepo.UpdateLabel(ctx, keyID, strings.TrimSpace(label))
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *KeyUsecase) Delete(ctx context.Context, keyID string) error {
	if strings.TrimSpace(keyID) == "" {
		return NewHTTPError(http.StatusBadRequest, "invalid key id")
	}

	err := u.keyRepo.Delete(ctx, keyID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

type PurgeExpiredOutput struct {
	Deleted int64 `json:"deleted"`
}

// 期限切れレコードを一括削除する。期限内のレコードには触らない。
func (u *KeyUsecase) PurgeExpired(ctx context.Context) (PurgeExpiredOutput, error) {
	deleted, err := u.keyRepo.DeleteExpired(ctx, u.clock.Now())
	if err != nil {
		return PurgeExpiredOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return PurgeExpiredOutput{Deleted: deleted}, nil
}

// 既存キーの複製。残り日数（切り上げ・最低1日）を引き継ぎ、
// ラベルに複製元の注記を付け、紐付けは必ず未使用から始まる。
func (u *KeyUsecase) Duplicate(ctx context.Context, keyID string) (model.AccessKey, error) {
	if strings.TrimSpace(keyID) == "" {
		return model.AccessKey{}, NewHTTPError(http.StatusBadRequest, "invalid key id")
	}

	src, err := u.keyRepo.FindByID(ctx, keyID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.AccessKey{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.AccessKey{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	now := u.clock.Now()
	days := remainingDays(src.ExpiresAt, now)

	label := src.Label
	if label == "" {
		label = src.ID
	}
	label = label + " (copy)"
	if len(label) > 255 {
		label = label[:255]
	}

	key := model.AccessKey{
		Label:         label,
		BoundDeviceID: nil,
		CreatedAt:     now,
		ExpiresAt:     now.Add(DurationDays(days).Duration()),
	}

	created, err := u.createWithFreshID(ctx, key)
	if err != nil {
		return model.AccessKey{}, err
	}
	return created, nil
}

type KeyListInput struct {
	Page  int
	Limit int
}

type KeyListOutput struct {
	Items []model.AccessKey `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// 作成日時の降順で一覧を返す
func (u *KeyUsecase) List(ctx context.Context, in KeyListInput) (KeyListOutput, error) {
	if in.Page < 1 {
		return KeyListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return KeyListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	items, total, err := u.keyRepo.List(ctx, repo.AccessKeyListQuery{
		Page:  in.Page,
		Limit: in.Limit,
	})
	if err != nil {
		return KeyListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return KeyListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

// 新しいIDで保存する。UUIDの衝突はほぼ起きないが、
// 起きた場合は数回だけ作り直してから諦める。
func (u *KeyUsecase) createWithFreshID(ctx context.Context, key model.AccessKey) (model.AccessKey, error) {
	for i := 0; i < issueRetryMax; i++ {
		key.ID = u.idGen.NewID()

		err := u.keyRepo.Create(ctx, &key)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, repo.ErrConflict) {
			return model.AccessKey{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
	}
	return model.AccessKey{}, NewHTTPError(http.StatusConflict, "key id conflict")
}

// 残り時間を日数に切り上げる（最低1日）
func remainingDays(expiresAt time.Time, now time.Time) int {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 1
	}

	day := DurationDays(1).Duration()
	days := int(remaining / day)
	if remaining%day != 0 {
		days++
	}
	if days < 1 {
		days = 1
	}
	return days
}
