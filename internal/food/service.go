// Package food はフードカタログの管理ロジックを提供する。
package food

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dhcommerce/internal/model"
	"github.com/hitoshi/dhcommerce/internal/repository"
	"github.com/hitoshi/dhcommerce/internal/security"
)

const (
	defaultAvailableTime       = "12:00"
	defaultNutrientsImportance = "Provides essential nutrients"
)

// CreateInput は管理者によるフード登録の入力。
// Name, Calories, MealTypeは必須。
type CreateInput struct {
	Name                string         `json:"name"`
	Calories            *int           `json:"calories"`
	Protein             int            `json:"protein"`
	Carbs               int            `json:"carbs"`
	Fat                 int            `json:"fat"`
	MealType            model.MealType `json:"mealType"`
	AvailableDate       string         `json:"availableDate"`
	AvailableTime       string         `json:"availableTime"`
	AllergyWarnings     []string       `json:"allergyWarnings"`
	NutrientsImportance string         `json:"nutrientsImportance"`
}

// Service はフードカタログのサービス層。
type Service struct {
	foodRepo  repository.FoodRepository
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	location  *time.Location
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// locは登録時の既定の提供日を決めるタイムゾーン。
func NewService(
	foodRepo repository.FoodRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		foodRepo:  foodRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		logger:    logger,
		location:  loc,
		now:       time.Now,
	}
}

// List はフード一覧を返す。mealTypeが空の場合は全件を返す。
func (s *Service) List(ctx context.Context, mealType model.MealType) ([]*model.Food, error) {
	if mealType != "" && !mealType.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("無効な食事区分です: %s", mealType))
	}
	foods, err := s.foodRepo.List(ctx, mealType)
	if err != nil {
		return nil, storeError("フード一覧の取得に失敗しました", err)
	}
	if foods == nil {
		foods = []*model.Food{}
	}
	return foods, nil
}

// Create はフードを登録する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Food, error) {
	name := s.sanitizer.Sanitize(in.Name)
	switch {
	case name == "":
		return nil, model.NewValidationError("Missing required field: name")
	case in.Calories == nil:
		return nil, model.NewValidationError("Missing required field: calories")
	case in.MealType == "":
		return nil, model.NewValidationError("Missing required field: mealType")
	case !in.MealType.Valid():
		return nil, model.NewValidationError(fmt.Sprintf("無効な食事区分です: %s", in.MealType))
	}

	now := s.now()
	f := &model.Food{
		ID:                  uuid.New().String(),
		Name:                name,
		Calories:            *in.Calories,
		Protein:             in.Protein,
		Carbs:               in.Carbs,
		Fat:                 in.Fat,
		MealType:            in.MealType,
		AvailableDate:       orDefault(strings.TrimSpace(in.AvailableDate), now.In(s.location).Format("2006-01-02")),
		AvailableTime:       orDefault(strings.TrimSpace(in.AvailableTime), defaultAvailableTime),
		AllergyWarnings:     s.sanitizeList(in.AllergyWarnings),
		NutrientsImportance: orDefault(s.sanitizer.Sanitize(in.NutrientsImportance), defaultNutrientsImportance),
	}

	if err := s.foodRepo.Create(ctx, f); err != nil {
		return nil, storeError("フードの登録に失敗しました", err)
	}
	s.logger.Info("フードを登録しました", slog.String("food_id", f.ID), slog.String("name", f.Name))
	return f, nil
}

// Update はフードを部分更新する。
func (s *Service) Update(ctx context.Context, id string, patch model.FoodPatch) (*model.Food, error) {
	if id == "" {
		return nil, model.NewValidationError("Food ID required")
	}
	if patch.MealType != nil && !patch.MealType.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("無効な食事区分です: %s", *patch.MealType))
	}

	f, err := s.foodRepo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("フードの取得に失敗しました", err)
	}
	if f == nil {
		return nil, model.NewFoodNotFoundError(id)
	}

	if patch.Name != nil {
		name := s.sanitizer.Sanitize(*patch.Name)
		if name == "" {
			return nil, model.NewValidationError("name must not be empty")
		}
		patch.Name = &name
	}
	if patch.NutrientsImportance != nil {
		v := s.sanitizer.Sanitize(*patch.NutrientsImportance)
		patch.NutrientsImportance = &v
	}
	if patch.AllergyWarnings != nil {
		patch.AllergyWarnings = s.sanitizeList(patch.AllergyWarnings)
	}
	patch.ApplyTo(f)

	if err := s.foodRepo.Update(ctx, f); err != nil {
		return nil, storeError("フードの更新に失敗しました", err)
	}
	s.logger.Info("フードを更新しました", slog.String("food_id", f.ID))
	return f, nil
}

// Delete はフードを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return model.NewValidationError("Food ID required")
	}
	deleted, err := s.foodRepo.Delete(ctx, id)
	if err != nil {
		return storeError("フードの削除に失敗しました", err)
	}
	if !deleted {
		return model.NewFoodNotFoundError(id)
	}
	s.logger.Info("フードを削除しました", slog.String("food_id", id))
	return nil
}

// SeedSamples はカタログが空の場合にサンプルフードを投入し、投入件数を返す。
// 既にフードが存在する場合はFOODS_ALREADY_EXISTを返す。
func (s *Service) SeedSamples(ctx context.Context) (int, error) {
	n, err := s.foodRepo.Count(ctx)
	if err != nil {
		return 0, storeError("フード件数の取得に失敗しました", err)
	}
	if n > 0 {
		return 0, model.NewFoodsAlreadyExistError()
	}

	samples := SampleFoods()
	if err := s.foodRepo.CreateBatch(ctx, samples); err != nil {
		return 0, storeError("サンプルフードの投入に失敗しました", err)
	}
	s.logger.Info("サンプルフードを投入しました", slog.Int("count", len(samples)))
	return len(samples), nil
}

// IsAdmin は指定ユーザーが管理者フラグを持つかを返す。
// ユーザーIDが空またはユーザーが存在しない場合はfalse。
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return false, storeError("ユーザーの取得に失敗しました", err)
	}
	return u != nil && u.IsAdmin, nil
}

// SampleFoods は初期投入用のサンプルフードを返す。
func SampleFoods() []*model.Food {
	return []*model.Food{
		{
			ID: uuid.New().String(), Name: "Grilled Chicken Sandwich",
			Calories: 350, Protein: 25, Carbs: 30, Fat: 12,
			MealType: model.MealTypeLunch, AvailableDate: "2025-03-20", AvailableTime: "12:30",
			AllergyWarnings:     []string{"none"},
			NutrientsImportance: "High protein for muscle repair",
		},
		{
			ID: uuid.New().String(), Name: "Greek Yogurt Parfait",
			Calories: 280, Protein: 15, Carbs: 45, Fat: 8,
			MealType: model.MealTypeBreakfast, AvailableDate: "2025-03-20", AvailableTime: "08:00",
			AllergyWarnings:     []string{"dairy"},
			NutrientsImportance: "Calcium for bone health",
		},
		{
			ID: uuid.New().String(), Name: "Vegetable Stir Fry",
			Calories: 320, Protein: 12, Carbs: 40, Fat: 10,
			MealType: model.MealTypeDinner, AvailableDate: "2025-03-20", AvailableTime: "18:00",
			AllergyWarnings:     []string{"soy"},
			NutrientsImportance: "Rich in vitamins and fiber",
		},
	}
}

// sanitizeList は各要素を無害化し、空になった要素を除く。結果が空なら["none"]を返す。
func (s *Service) sanitizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = s.sanitizer.Sanitize(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return []string{"none"}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func storeError(msg string, err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return model.NewDatabaseUnavailableError()
	}
	return fmt.Errorf("%s: %w", msg, err)
}
