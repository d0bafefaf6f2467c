package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/dhcommerce/internal/model"
)

const transactionColumns = `id, from_user_id, to_user_id, offered_food_id, requested_food_id,
		        trade_date, trade_time, status, reminder_sent, rating_sent, created_at, updated_at`

// PostgresTransactionRepo はPostgreSQLを使用した取引リポジトリ。
type PostgresTransactionRepo struct {
	db *sql.DB
}

// NewPostgresTransactionRepo はPostgresTransactionRepoを生成する。
func NewPostgresTransactionRepo(db *sql.DB) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s rowScanner) (*model.Transaction, error) {
	t := &model.Transaction{}
	var tradeDate, tradeTime sql.NullString
	var status string

	if err := s.Scan(
		&t.ID, &t.FromUserID, &t.ToUserID, &t.OfferedFoodID, &t.RequestedFoodID,
		&tradeDate, &tradeTime, &status, &t.ReminderSent, &t.RatingSent,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.TradeDate = nullStringValue(tradeDate)
	t.TradeTime = nullStringValue(tradeTime)
	t.Status = model.TransactionStatus(status)
	return t, nil
}

// ListByStatus は指定ステータスの取引を取得する。
func (r *PostgresTransactionRepo) ListByStatus(ctx context.Context, status model.TransactionStatus) ([]*model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE status = $1
		 ORDER BY created_at ASC`,
		string(status),
	)
	if err != nil {
		return nil, wrapStoreError("ステータス別の取引一覧取得に失敗しました", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// FindByID は指定IDの取引を取得する。見つからない場合はnilを返す。
func (r *PostgresTransactionRepo) FindByID(ctx context.Context, id string) (*model.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError("取引の取得に失敗しました", err)
	}
	return t, nil
}

// UpdateFlags は取引のフラグを一方向に更新する。
// SQL側でORを取るため、既にtrueのフラグがfalseに戻ることはない。
func (r *PostgresTransactionRepo) UpdateFlags(ctx context.Context, id string, flags model.TransactionFlags) error {
	if flags.IsZero() {
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET
		    reminder_sent = reminder_sent OR $2,
		    rating_sent = rating_sent OR $3,
		    updated_at = now()
		 WHERE id = $1`,
		id, flags.ReminderSent, flags.RatingSent,
	)
	if err != nil {
		return wrapStoreError("取引フラグの更新に失敗しました", err)
	}
	return nil
}

// ListByUser は指定ユーザーが関与する取引をcreated_at降順で取得する。
func (r *PostgresTransactionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+`
		 FROM transactions WHERE from_user_id = $1 OR to_user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, wrapStoreError("ユーザー別の取引一覧取得に失敗しました", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]*model.Transaction, error) {
	var txs []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapStoreError("取引行の読み取りに失敗しました", err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("取引一覧の走査に失敗しました", err)
	}
	return txs, nil
}

// compile-time interface check
var _ TransactionRepository = (*PostgresTransactionRepo)(nil)
