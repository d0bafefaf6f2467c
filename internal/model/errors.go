// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, trade, food, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	ErrCodeInvalidRating       = "INVALID_RATING"
	ErrCodeInvalidRole         = "INVALID_ROLE"
	ErrCodeDatabaseUnavailable = "DATABASE_UNAVAILABLE"
	ErrCodeFoodNotFound        = "FOOD_NOT_FOUND"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeFoodsAlreadyExist   = "FOODS_ALREADY_EXIST"
	ErrCodeRateLimited         = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeAlreadyRated        = "ALREADY_RATED"
)

// ErrMalformedSchedule は取引の日付・時刻が未設定またはパース不能であることを示す。
// スイープ内でのみ扱われ、呼び出し元に返されることはない。
var ErrMalformedSchedule = errors.New("malformed trade schedule")

// ErrStoreUnavailable はデータストアに到達できないことを示す。
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrDuplicateRating は同じ評価者が同じ取引を既に評価済みであることを示す。
var ErrDuplicateRating = errors.New("rating already submitted")

// NewAlreadyRatedError は評価済みの取引に再度評価が送信された場合のエラーを生成する。
func NewAlreadyRatedError(transactionID string) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyRated,
		Message:  fmt.Sprintf("この取引は既に評価済みです: %s", transactionID),
		Category: "trade",
		Action:   "評価は1つの取引につき1回のみ送信できます。",
	}
}

// NewTransactionNotFoundError は取引未検出エラーを生成する。
func NewTransactionNotFoundError(transactionID string) *APIError {
	return &APIError{
		Code:     ErrCodeTransactionNotFound,
		Message:  fmt.Sprintf("指定された取引が見つかりません: %s", transactionID),
		Category: "trade",
		Action:   "メールに記載されたリンクをもう一度開いてください。",
	}
}

// NewInvalidRatingError は評価値が範囲外の場合のエラーを生成する。
func NewInvalidRatingError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  fmt.Sprintf("無効な評価値です: %s", raw),
		Category: "validation",
		Action:   fmt.Sprintf("評価は%dから%dの整数で指定してください。", MinRating, MaxRating),
	}
}

// NewInvalidRoleError は評価者の立場がbuyer/sellerのいずれでもない場合のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効な立場です: %s", role),
		Category: "validation",
		Action:   "buyer または seller を指定してください。",
	}
}

// NewDatabaseUnavailableError はデータベースに接続できない場合のエラーを生成する。
func NewDatabaseUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeDatabaseUnavailable,
		Message:  "データベースに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewFoodNotFoundError はフード未検出エラーを生成する。
func NewFoodNotFoundError(foodID string) *APIError {
	return &APIError{
		Code:     ErrCodeFoodNotFound,
		Message:  fmt.Sprintf("指定されたフードが見つかりません: %s", foodID),
		Category: "food",
		Action:   "フードIDを確認してください。",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は認証・認可エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者トークンを確認してください。",
	}
}

// NewFoodsAlreadyExistError はサンプルデータ投入時に既にフードが存在する場合のエラーを生成する。
func NewFoodsAlreadyExistError() *APIError {
	return &APIError{
		Code:     ErrCodeFoodsAlreadyExist,
		Message:  "Foods already exist in database",
		Category: "food",
		Action:   "サンプルデータの投入は空のカタログに対してのみ実行できます。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
