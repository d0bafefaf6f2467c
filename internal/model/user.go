package model

import "time"

// User はマーケットプレイスの利用者を表す。
// TotalRating/RatingCount/AverageRatingは受け取った評価の集計値で、
// RatingCount > 0 のとき AverageRating == TotalRating / RatingCount が常に成り立つ。
type User struct {
	ID            string
	Email         string
	FullName      string
	Username      string
	IsAdmin       bool
	TotalRating   int
	RatingCount   int
	AverageRating float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RatingAggregate はユーザーの評価集計値を表す。
type RatingAggregate struct {
	TotalRating   int
	RatingCount   int
	AverageRating float64
}

// Apply は新しい評価を加えた集計値を返す。平均は合計と件数から毎回再計算する。
func (a RatingAggregate) Apply(rating int) RatingAggregate {
	next := RatingAggregate{
		TotalRating: a.TotalRating + rating,
		RatingCount: a.RatingCount + 1,
	}
	next.AverageRating = float64(next.TotalRating) / float64(next.RatingCount)
	return next
}
