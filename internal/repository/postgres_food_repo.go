package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/dhcommerce/internal/model"
)

const foodColumns = `id, name, calories, protein, carbs, fat, meal_type,
		        available_date, available_time, allergy_warnings, nutrients_importance,
		        created_at, updated_at`

// PostgresFoodRepo はPostgreSQLを使用したフードリポジトリ。
type PostgresFoodRepo struct {
	db *sql.DB
}

// NewPostgresFoodRepo はPostgresFoodRepoを生成する。
func NewPostgresFoodRepo(db *sql.DB) *PostgresFoodRepo {
	return &PostgresFoodRepo{db: db}
}

func scanFood(s rowScanner) (*model.Food, error) {
	f := &model.Food{}
	var mealType string
	var allergies pq.StringArray

	if err := s.Scan(
		&f.ID, &f.Name, &f.Calories, &f.Protein, &f.Carbs, &f.Fat, &mealType,
		&f.AvailableDate, &f.AvailableTime, &allergies, &f.NutrientsImportance,
		&f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}

	f.MealType = model.MealType(mealType)
	f.AllergyWarnings = []string(allergies)
	return f, nil
}

// FindByID は指定IDのフードを取得する。見つからない場合はnilを返す。
func (r *PostgresFoodRepo) FindByID(ctx context.Context, id string) (*model.Food, error) {
	f, err := scanFood(r.db.QueryRowContext(ctx,
		`SELECT `+foodColumns+` FROM foods WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreError("フードの取得に失敗しました", err)
	}
	return f, nil
}

// List はフード一覧を名前順で取得する。mealTypeが空の場合は全件を返す。
func (r *PostgresFoodRepo) List(ctx context.Context, mealType model.MealType) ([]*model.Food, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if mealType == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+foodColumns+` FROM foods ORDER BY name ASC`)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+foodColumns+` FROM foods WHERE meal_type = $1 ORDER BY name ASC`,
			string(mealType))
	}
	if err != nil {
		return nil, wrapStoreError("フード一覧の取得に失敗しました", err)
	}
	defer rows.Close()

	var foods []*model.Food
	for rows.Next() {
		f, err := scanFood(rows)
		if err != nil {
			return nil, wrapStoreError("フード行の読み取りに失敗しました", err)
		}
		foods = append(foods, f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError("フード一覧の走査に失敗しました", err)
	}
	return foods, nil
}

// Count は登録済みフードの件数を返す。
func (r *PostgresFoodRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM foods`).Scan(&n); err != nil {
		return 0, wrapStoreError("フード件数の取得に失敗しました", err)
	}
	return n, nil
}

// execer は*sql.DBと*sql.Txの共通インターフェース。
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertFood(ctx context.Context, e execer, f *model.Food) error {
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	_, err := e.ExecContext(ctx,
		`INSERT INTO foods (`+foodColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		f.ID, f.Name, f.Calories, f.Protein, f.Carbs, f.Fat, string(f.MealType),
		f.AvailableDate, f.AvailableTime,
		pq.Array(allergiesOrDefault(f.AllergyWarnings)), f.NutrientsImportance,
		f.CreatedAt, f.UpdatedAt,
	)
	return err
}

// allergiesOrDefault はアレルギー情報が空の場合に["none"]を返す。
func allergiesOrDefault(a []string) []string {
	if len(a) == 0 {
		return []string{"none"}
	}
	return a
}

// Create はフードを作成する。
func (r *PostgresFoodRepo) Create(ctx context.Context, food *model.Food) error {
	if err := insertFood(ctx, r.db, food); err != nil {
		return wrapStoreError("フードの作成に失敗しました", err)
	}
	return nil
}

// CreateBatch は複数のフードを同一トランザクションで作成する。
func (r *PostgresFoodRepo) CreateBatch(ctx context.Context, foods []*model.Food) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreError("トランザクションの開始に失敗しました", err)
	}
	defer tx.Rollback()

	for _, f := range foods {
		if err := insertFood(ctx, tx, f); err != nil {
			return wrapStoreError(fmt.Sprintf("フード %q の作成に失敗しました", f.Name), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreError("トランザクションのコミットに失敗しました", err)
	}
	return nil
}

// Update はフード情報を上書き更新する。
func (r *PostgresFoodRepo) Update(ctx context.Context, food *model.Food) error {
	food.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE foods SET
		    name = $2, calories = $3, protein = $4, carbs = $5, fat = $6, meal_type = $7,
		    available_date = $8, available_time = $9, allergy_warnings = $10,
		    nutrients_importance = $11, updated_at = $12
		 WHERE id = $1`,
		food.ID, food.Name, food.Calories, food.Protein, food.Carbs, food.Fat, string(food.MealType),
		food.AvailableDate, food.AvailableTime,
		pq.Array(allergiesOrDefault(food.AllergyWarnings)), food.NutrientsImportance,
		food.UpdatedAt,
	)
	if err != nil {
		return wrapStoreError("フードの更新に失敗しました", err)
	}
	return nil
}

// Delete は指定IDのフードを削除する。削除対象が存在しない場合はfalseを返す。
func (r *PostgresFoodRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM foods WHERE id = $1`, id)
	if err != nil {
		return false, wrapStoreError("フードの削除に失敗しました", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ FoodRepository = (*PostgresFoodRepo)(nil)
