package repository

import (
	"app/internal/domain/model"
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// idの一意制約違反
var ErrConflict = errors.New("conflict")

// 一覧検索
type AccessKeyListQuery struct {
	Page  int
	Limit int
}

// ConditionalBindの結果。
// BoundNow: この呼び出しで紐付けが成立した
// BoundTo:  すでに紐付いていた場合、その端末ID
// Expired:  紐付けできず、再読込したら期限切れだった
type BindResult struct {
	BoundNow bool
	BoundTo  *string
	Expired  bool
}

// アクセスキーの永続化（保存・取得・条件付き更新）だけを約束。
type AccessKeyRepository interface {
	Create(ctx context.Context, key *model.AccessKey) error
	FindByID(ctx context.Context, id string) (*model.AccessKey, error)

	// 未紐付けのレコードだけを対象に、端末IDを原子的に書き込む。
	// 同じキーに同時に来た初回利用のうち、勝つのは必ず1件だけ。
	ConditionalBind(ctx context.Context, id string, deviceID string, now time.Time) (BindResult, error)

	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	UpdateLabel(ctx context.Context, id string, label string) error
	ClearBinding(ctx context.Context, id string) error

	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	List(ctx context.Context, q AccessKeyListQuery) ([]model.AccessKey, int64, error)
}
