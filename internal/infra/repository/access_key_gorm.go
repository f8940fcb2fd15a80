package repository

import (
	"context"
	"errors"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type AccessKeyGormRepository struct {
	db *gorm.DB //DB接続（GORM）
}

// GORM実装
func NewAccessKeyGormRepository(db *gorm.DB) *AccessKeyGormRepository {
	return &AccessKeyGormRepository{db: db}
}

// アクセスキーを保存。id重複はErrConflict。
func (r *AccessKeyGormRepository) Create(ctx context.Context, key *model.AccessKey) error {
	if err := r.db.WithContext(ctx).Create(key).Error; err != nil {
		if isUniqueViolation(err) {
			return repo.ErrConflict
		}
		return err
	}
	return nil
}

// IDで1件取得
func (r *AccessKeyGormRepository) FindByID(ctx context.Context, id string) (*model.AccessKey, error) {
	var key model.AccessKey

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&key).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}

	return &key, nil
}

// 未紐付けかつ有効期限内のレコードだけを対象に端末IDを書き込む。
// UPDATE1本の条件付き更新なので、同じキーへ同時に来ても成立するのは1件だけ。
func (r *AccessKeyGormRepository) ConditionalBind(ctx context.Context, id string, deviceID string, now time.Time) (repo.BindResult, error) {
	result := r.db.WithContext(ctx).
		Model(&model.AccessKey{}).
		Where("id = ? AND bound_device_id IS NULL AND expires_at > ?", id, now).
		Update("bound_device_id", deviceID)

	if result.Error != nil {
		return repo.BindResult{}, result.Error
	}

	if result.RowsAffected == 1 {
		return repo.BindResult{BoundNow: true}, nil
	}

	// 負けた側は再読込して、勝った側の紐付け（または期限切れ）を確認する
	key, err := r.FindByID(ctx, id)
	if err != nil {
		return repo.BindResult{}, err
	}

	if key.BoundDeviceID != nil {
		return repo.BindResult{BoundTo: key.BoundDeviceID}, nil
	}
	return repo.BindResult{Expired: true}, nil
}

// 有効期限だけを更新。削除済みレコードは復活させない（0件ならNotFound）。
func (r *AccessKeyGormRepository) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.AccessKey{}).
		Where("id = ?", id).
		Update("expires_at", expiresAt)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ラベルだけを更新
func (r *AccessKeyGormRepository) UpdateLabel(ctx context.Context, id string, label string) error {
	result := r.db.WithContext(ctx).
		Model(&model.AccessKey{}).
		Where("id = ?", id).
		Update("label", label)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 端末の紐付けを解除（bound_device_idをNULLに戻す）。有効期限は触らない。
func (r *AccessKeyGormRepository) ClearBinding(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&model.AccessKey{}).
		Where("id = ?", id).
		Update("bound_device_id", nil)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 指定IDのアクセスキーを削除。
func (r *AccessKeyGormRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.AccessKey{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 期限切れレコードを一括削除し、削除件数を返す。
func (r *AccessKeyGormRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.AccessKey{})

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// 作成日時の降順で一覧を返す（ページング付き）。
func (r *AccessKeyGormRepository) List(ctx context.Context, q repo.AccessKeyListQuery) ([]model.AccessKey, int64, error) {
	var keys []model.AccessKey
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.AccessKey{})

	//total（件数）
	if err := tx.Count(&total).Error; err != nil {
		return []model.AccessKey{}, 0, err
	}

	offset := (q.Page - 1) * q.Limit
	if err := tx.Order("created_at desc").Order("id desc").
		Offset(offset).Limit(q.Limit).
		Find(&keys).Error; err != nil {
		return []model.AccessKey{}, 0, err
	}

	return keys, total, nil
}

// Postgresの一意制約違反（SQLSTATE 23505）かどうか
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
