// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/dhcommerce/internal/model"
)

// TransactionRepository は取引データの永続化インターフェース。
type TransactionRepository interface {
	// ListByStatus は指定ステータスの取引をストア定義の順序で取得する。
	ListByStatus(ctx context.Context, status model.TransactionStatus) ([]*model.Transaction, error)

	// FindByID は指定IDの取引を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Transaction, error)

	// UpdateFlags は取引のreminderSent/ratingSentフラグを更新する。
	// trueのフラグのみを反映し、既にtrueのフラグをfalseに戻すことはない。
	UpdateFlags(ctx context.Context, id string, flags model.TransactionFlags) error

	// ListByUser は指定ユーザーが申請者または相手である取引をcreated_at降順で取得する。
	ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error)
}

// UserRepository はユーザーデータの参照インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// FoodRepository はフードデータの永続化インターフェース。
type FoodRepository interface {
	// FindByID は指定IDのフードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Food, error)

	// List はフード一覧を取得する。mealTypeが空の場合は全件を返す。
	List(ctx context.Context, mealType model.MealType) ([]*model.Food, error)

	// Count は登録済みフードの件数を返す。
	Count(ctx context.Context) (int, error)

	// Create はフードを作成する。
	Create(ctx context.Context, food *model.Food) error

	// CreateBatch は複数のフードを同一トランザクションで作成する。
	CreateBatch(ctx context.Context, foods []*model.Food) error

	// Update はフード情報を上書き更新する。
	Update(ctx context.Context, food *model.Food) error

	// Delete は指定IDのフードを削除する。削除対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// RatingRepository は評価データの永続化インターフェース。
type RatingRepository interface {
	// CreateAndApply は評価を追加し、被評価ユーザーの集計値を同一トランザクションで更新する。
	// 集計値の更新はストア側の原子的な加算で行うため、同一ユーザーへの同時評価でも更新が失われない。
	// 被評価ユーザーが存在しない場合は評価のみを保存し、nilの集計値を返す。
	CreateAndApply(ctx context.Context, rating *model.Rating) (*model.RatingAggregate, error)
}
