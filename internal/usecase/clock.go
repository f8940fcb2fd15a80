package usecase

import "time"

// 現在の時間
type Clock interface {
	Now() time.Time
}

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 管理APIの入力は「日数」。内部の期限計算は必ずこの型を通して
// time.Durationへ変換する（ミリ秒の生の掛け算はしない）。
type DurationDays int

func (d DurationDays) Duration() time.Duration {
	return time.Duration(d) * 24 * time.Hour
}
