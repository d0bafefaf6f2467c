package model

import "time"

const (
	// MinRating は評価値の下限。
	MinRating = 1
	// MaxRating は評価値の上限。
	MaxRating = 5
)

// Rating は評価フォームから送信された1件の評価を表す。作成後は変更しない。
type Rating struct {
	ID            string
	FromUserID    string // 評価者
	ToUserID      string // 被評価者
	TransactionID string
	Rating        int
	Comment       string
	CreatedAt     time.Time
}

// ValidRating は評価値が1〜5の範囲内であればtrueを返す。
func ValidRating(v int) bool {
	return v >= MinRating && v <= MaxRating
}
