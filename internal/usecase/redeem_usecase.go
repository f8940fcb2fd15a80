package usecase

import (
	"context"
	"errors"
	"strings"

	"app/internal/domain/model"
	"app/internal/repository"
)

// キーまたは端末IDが未指定
var ErrMissingParameters = errors.New("missing parameters")

// キーが存在しない
var ErrKeyNotFound = errors.New("key not found")

// 有効期限切れ（紐付け状態に関係なく終端）
var ErrKeyExpired = errors.New("key expired")

// 別の端末に紐付いている
var ErrDeviceMismatch = errors.New("device mismatch")

// handlerからusecaseに渡す入力
type RedeemInput struct {
	KeyID    string
	DeviceID string
}

type RedeemOutput struct {
	Key model.AccessKey `json:"key"`
}

// RedeemUsecaseはキーの検証と初回利用時の端末紐付けを行う。
// 紐付けの書き込みはここが唯一の入口（管理者のリセットを除く）。
type RedeemUsecase struct {
	keyRepo repository.AccessKeyRepository
	clock   Clock
}

// DI
func NewRedeemUsecase(keyRepo repository.AccessKeyRepository, clock Clock) *RedeemUsecase {
	return &RedeemUsecase{
		keyRepo: keyRepo,
		clock:   clock,
	}
}

// 検証の流れ：
//  1. 入力チェック（空ならストアに触らず失敗）
//  2. レコード取得
//  3. 期限チェック（未紐付けでも期限切れなら失敗）
//  4. 未紐付けなら条件付きで紐付け。競合に負けたら勝者の端末と比較
//  5. 紐付け済みなら端末の一致だけを見る
func (u *RedeemUsecase) Execute(ctx context.Context, in RedeemInput) (RedeemOutput, error) {
	var out RedeemOutput

	keyID := strings.TrimSpace(in.KeyID)
	deviceID := strings.TrimSpace(in.DeviceID)
	if keyID == "" || deviceID == "" {
		return out, ErrMissingParameters
	}

	key, err := u.keyRepo.FindByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return out, ErrKeyNotFound
		}
		return out, err
	}

	now := u.clock.Now()

	// 期限は紐付けより先に判定する。期限切れのキーは新しい紐付けでは救えない
	if key.IsExpired(now) {
		return out, ErrKeyExpired
	}

	if key.IsUnbound() {
		res, err := u.keyRepo.ConditionalBind(ctx, keyID, deviceID, now)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return out, ErrKeyNotFound
			}
			return out, err
		}

		switch {
		case res.BoundNow:
			key.BoundDeviceID = &deviceID
		case res.Expired:
			return out, ErrKeyExpired
		case res.BoundTo != nil && *res.BoundTo == deviceID:
			// 同じ端末のリトライが競合しただけなので成功扱い
			key.BoundDeviceID = res.BoundTo
		default:
			return out, ErrDeviceMismatch
		}

		out.Key = *key
		return out, nil
	}

	if *key.BoundDeviceID != deviceID {
		return out, ErrDeviceMismatch
	}

	out.Key = *key
	return out, nil
}
