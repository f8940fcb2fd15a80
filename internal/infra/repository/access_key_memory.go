package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// メモリ上のアクセスキーストア。テストとローカル開発用。
// 1本のMutexで全操作を直列化するので、ConditionalBindの原子性も満たす。
type AccessKeyMemoryRepository struct {
	mu   sync.Mutex
	keys map[string]model.AccessKey
}

func NewAccessKeyMemoryRepository() *AccessKeyMemoryRepository {
	return &AccessKeyMemoryRepository{
		keys: make(map[string]model.AccessKey),
	}
}

func (r *AccessKeyMemoryRepository) Create(ctx context.Context, key *model.AccessKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key.ID]; ok {
		return repo.ErrConflict
	}
	r.keys[key.ID] = *key
	return nil
}

func (r *AccessKeyMemoryRepository) FindByID(ctx context.Context, id string) (*model.AccessKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return nil, repo.ErrNotFound
	}

	//呼び出し側がmapの中身を書き換えないようコピーを返す
	copied := key
	if key.BoundDeviceID != nil {
		d := *key.BoundDeviceID
		copied.BoundDeviceID = &d
	}
	return &copied, nil
}

// ロック中にread-modify-writeするので、勝つのは必ず1件だけ。
func (r *AccessKeyMemoryRepository) ConditionalBind(ctx context.Context, id string, deviceID string, now time.Time) (repo.BindResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return repo.BindResult{}, repo.ErrNotFound
	}

	if key.BoundDeviceID != nil {
		d := *key.BoundDeviceID
		return repo.BindResult{BoundTo: &d}, nil
	}

	if now.After(key.ExpiresAt) {
		return repo.BindResult{Expired: true}, nil
	}

	d := deviceID
	key.BoundDeviceID = &d
	r.keys[id] = key
	return repo.BindResult{BoundNow: true}, nil
}

func (r *AccessKeyMemoryRepository) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return repo.ErrNotFound
	}
	key.ExpiresAt = expiresAt
	r.keys[id] = key
	return nil
}

func (r *AccessKeyMemoryRepository) UpdateLabel(ctx context.Context, id string, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return repo.ErrNotFound
	}
	key.Label = label
	r.keys[id] = key
	return nil
}

func (r *AccessKeyMemoryRepository) ClearBinding(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.keys[id]
	if !ok {
		return repo.ErrNotFound
	}
	key.BoundDeviceID = nil
	r.keys[id] = key
	return nil
}

func (r *AccessKeyMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[id]; !ok {
		return repo.ErrNotFound
	}
	delete(r.keys, id)
	return nil
}

func (r *AccessKeyMemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for id, key := range r.keys {
		if key.ExpiresAt.Before(now) {
			delete(r.keys, id)
			count++
		}
	}
	return count, nil
}

func (r *AccessKeyMemoryRepository) List(ctx context.Context, q repo.AccessKeyListQuery) ([]model.AccessKey, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]model.AccessKey, 0, len(r.keys))
	for _, key := range r.keys {
		all = append(all, key)
	}

	//作成日時の降順（同時刻はIDで安定化）
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	total := int64(len(all))

	offset := (q.Page - 1) * q.Limit
	if offset >= len(all) {
		return []model.AccessKey{}, total, nil
	}
	end := offset + q.Limit
	if end > len(all) {
		end = len(all)
	}

	return all[offset:end], total, nil
}
