package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dhcommerce/internal/model"
)

// PostgresRatingRepo はPostgreSQLを使用した評価リポジトリ。
type PostgresRatingRepo struct {
	db *sql.DB
}

// NewPostgresRatingRepo はPostgresRatingRepoを生成する。
func NewPostgresRatingRepo(db *sql.DB) *PostgresRatingRepo {
	return &PostgresRatingRepo{db: db}
}

// CreateAndApply は評価を追加し、被評価ユーザーの集計値を更新する。
// UPDATEのSET句はすべて更新前の行を参照するため、平均値は加算後の合計と件数から算出される。
// 同一ユーザーへの同時更新は行ロックで直列化される。
// 同じ評価者が同じ取引を再度評価した場合はmodel.ErrDuplicateRatingを返し、集計値は変更しない。
func (r *PostgresRatingRepo) CreateAndApply(ctx context.Context, rating *model.Rating) (*model.RatingAggregate, error) {
	if rating.ID == "" {
		rating.ID = uuid.New().String()
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStoreError("トランザクションの開始に失敗しました", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ratings (id, from_user_id, to_user_id, transaction_id, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rating.ID, rating.FromUserID, rating.ToUserID, rating.TransactionID,
		rating.Rating, rating.Comment, rating.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("評価の保存に失敗しました: %w", model.ErrDuplicateRating)
	}
	if err != nil {
		return nil, wrapStoreError("評価の保存に失敗しました", err)
	}

	agg := &model.RatingAggregate{}
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET
		    total_rating = total_rating + $2,
		    rating_count = rating_count + 1,
		    average_rating = (total_rating + $2)::float8 / (rating_count + 1),
		    updated_at = now()
		 WHERE id = $1
		 RETURNING total_rating, rating_count, average_rating`,
		rating.ToUserID, rating.Rating,
	).Scan(&agg.TotalRating, &agg.RatingCount, &agg.AverageRating)
	if err == sql.ErrNoRows {
		agg = nil
	} else if err != nil {
		return nil, wrapStoreError("評価集計の更新に失敗しました", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStoreError("トランザクションのコミットに失敗しました", err)
	}
	return agg, nil
}

// compile-time interface check
var _ RatingRepository = (*PostgresRatingRepo)(nil)
