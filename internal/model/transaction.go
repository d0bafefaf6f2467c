package model

import "time"

// TransactionStatus は取引の状態を表す。
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusAccepted  TransactionStatus = "accepted"
	TransactionStatusRejected  TransactionStatus = "rejected"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// RequestedFoodAll は「どのフードでも可」を表すrequestedFoodIdの番兵値。
const RequestedFoodAll = "all"

// Transaction は2ユーザー間で提案・合意されたフード交換の記録を表す。
// TradeDate/TradeTimeは組織のタイムゾーンにおける日付（2006-01-02）と時刻（15:04）で、
// 未設定の場合は空文字列になる。
type Transaction struct {
	ID              string
	FromUserID      string
	ToUserID        string
	OfferedFoodID   string
	RequestedFoodID string
	TradeDate       string
	TradeTime       string
	Status          TransactionStatus
	ReminderSent    bool
	RatingSent      bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransactionFlags はスイープが書き込む一方向フラグの部分更新を表す。
// trueのフィールドのみが反映され、falseは「変更しない」を意味する。
type TransactionFlags struct {
	ReminderSent bool
	RatingSent   bool
}

// IsZero は更新対象のフラグが1つもない場合にtrueを返す。
func (f TransactionFlags) IsZero() bool {
	return !f.ReminderSent && !f.RatingSent
}

// RatingRole は評価リンクで評価者の立場を表す。
type RatingRole string

const (
	// RoleBuyer は取引申請者（fromUserId）が相手（toUserId）を評価する立場。
	RoleBuyer RatingRole = "buyer"
	// RoleSeller は申請を受けた側（toUserId）が申請者（fromUserId）を評価する立場。
	RoleSeller RatingRole = "seller"
)

// ParseRatingRole は文字列をRatingRoleに変換する。buyer/seller以外はfalseを返す。
func ParseRatingRole(s string) (RatingRole, bool) {
	switch RatingRole(s) {
	case RoleBuyer:
		return RoleBuyer, true
	case RoleSeller:
		return RoleSeller, true
	default:
		return "", false
	}
}

// Parties はroleに応じた評価者と被評価者のユーザーIDを返す。
// buyer: 評価者=FromUserID, 被評価者=ToUserID
// seller: 評価者=ToUserID, 被評価者=FromUserID
func (t *Transaction) Parties(role RatingRole) (raterID, ratedID string) {
	if role == RoleBuyer {
		return t.FromUserID, t.ToUserID
	}
	return t.ToUserID, t.FromUserID
}
