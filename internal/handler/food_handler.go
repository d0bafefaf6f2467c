package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hitoshi/dhcommerce/internal/food"
	"github.com/hitoshi/dhcommerce/internal/model"
)

// FoodService はフードハンドラーが必要とするサービスインターフェース。
type FoodService interface {
	List(ctx context.Context, mealType model.MealType) ([]*model.Food, error)
	Create(ctx context.Context, in food.CreateInput) (*model.Food, error)
	Update(ctx context.Context, id string, patch model.FoodPatch) (*model.Food, error)
	Delete(ctx context.Context, id string) error
	SeedSamples(ctx context.Context) (int, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// FoodHandler はフードカタログのHTTPハンドラー。
type FoodHandler struct {
	service FoodService
}

// NewFoodHandler はFoodHandlerを生成する。
func NewFoodHandler(service FoodService) *FoodHandler {
	return &FoodHandler{service: service}
}

type foodListResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Foods   []*model.Food `json:"foods"`
}

type foodMutationResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	FoodID  string      `json:"foodId,omitempty"`
	Food    *model.Food `json:"food,omitempty"`
}

// updateFoodRequest はPUT /api/admin/foodsのボディ。
type updateFoodRequest struct {
	ID   string          `json:"id"`
	Data model.FoodPatch `json:"data"`
}

// deleteFoodRequest はDELETE /api/admin/foodsのボディ。
type deleteFoodRequest struct {
	ID string `json:"id"`
}

// List はフード一覧を返す。mealTypeクエリで絞り込める。
// GET /api/foods, GET /api/admin/foods
func (h *FoodHandler) List(w http.ResponseWriter, r *http.Request) {
	foods, err := h.service.List(r.Context(), model.MealType(r.URL.Query().Get("mealType")))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, foodListResponse{Success: true, Count: len(foods), Foods: foods})
}

// Create はフードを登録する。
// POST /api/admin/foods
func (h *FoodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req food.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, errInvalidRequest)
		return
	}

	f, err := h.service.Create(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, foodMutationResponse{
		Success: true,
		Message: "Food added successfully",
		FoodID:  f.ID,
		Food:    f,
	})
}

// Update はフードを部分更新する。
// PUT /api/admin/foods
func (h *FoodHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateFoodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, errInvalidRequest)
		return
	}

	f, err := h.service.Update(r.Context(), req.ID, req.Data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, foodMutationResponse{Success: true, Message: "Food updated successfully", Food: f})
}

// Delete はフードを削除する。
// DELETE /api/admin/foods
func (h *FoodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteFoodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, errInvalidRequest)
		return
	}

	if err := h.service.Delete(r.Context(), req.ID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, foodMutationResponse{Success: true, Message: "Food deleted successfully"})
}

// SeedSamples は空のカタログにサンプルフードを投入する。
// 既にフードがある場合は200で{success:false}を返す。
// POST /api/init_foods
func (h *FoodHandler) SeedSamples(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.SeedSamples(r.Context())
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeFoodsAlreadyExist {
			writeJSON(w, http.StatusOK, foodMutationResponse{Success: false, Message: apiErr.Message})
			return
		}
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, foodMutationResponse{Success: true, Message: fmt.Sprintf("Added %d sample foods", n)})
}

// AdminCheck はユーザーの管理者フラグを返す。
// GET /api/admin/check?userId=
func (h *FoodHandler) AdminCheck(w http.ResponseWriter, r *http.Request) {
	isAdmin, err := h.service.IsAdmin(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isAdmin": isAdmin})
}
