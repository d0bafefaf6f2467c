package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/hitoshi/dhcommerce/internal/food"
	"github.com/hitoshi/dhcommerce/internal/model"
	"github.com/hitoshi/dhcommerce/internal/rating"
	"github.com/hitoshi/dhcommerce/internal/trade"
)

// --- モック定義 ---

type mockRatingService struct {
	submitFn func(ctx context.Context, in rating.SubmitInput) (*model.Rating, error)
	calls    []rating.SubmitInput
}

func (m *mockRatingService) Submit(ctx context.Context, in rating.SubmitInput) (*model.Rating, error) {
	m.calls = append(m.calls, in)
	if m.submitFn != nil {
		return m.submitFn(ctx, in)
	}
	return &model.Rating{ID: "rating-1", TransactionID: in.TransactionID}, nil
}

// mockLinks はtokenが"good"の場合のみ検証を通す。
type mockLinks struct {
	disabled bool
}

func (m *mockLinks) Verify(token, transactionID string, role model.RatingRole) error {
	if m.disabled || token == "good" {
		return nil
	}
	return errors.New("invalid token")
}

type sentMail struct {
	To, Subject, HTML string
}

type mockTransport struct {
	mu     sync.Mutex
	sent   []sentMail
	accept bool
}

func (m *mockTransport) Send(_ context.Context, to, subject, htmlBody string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: htmlBody})
	return m.accept
}

type mockFoodService struct {
	listFn    func(ctx context.Context, mealType model.MealType) ([]*model.Food, error)
	createFn  func(ctx context.Context, in food.CreateInput) (*model.Food, error)
	updateFn  func(ctx context.Context, id string, patch model.FoodPatch) (*model.Food, error)
	deleteFn  func(ctx context.Context, id string) error
	seedFn    func(ctx context.Context) (int, error)
	isAdminFn func(ctx context.Context, userID string) (bool, error)
}

func (m *mockFoodService) List(ctx context.Context, mealType model.MealType) ([]*model.Food, error) {
	if m.listFn != nil {
		return m.listFn(ctx, mealType)
	}
	return []*model.Food{}, nil
}
func (m *mockFoodService) Create(ctx context.Context, in food.CreateInput) (*model.Food, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return &model.Food{ID: "food-new", Name: in.Name}, nil
}
func (m *mockFoodService) Update(ctx context.Context, id string, patch model.FoodPatch) (*model.Food, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, patch)
	}
	return &model.Food{ID: id}, nil
}
func (m *mockFoodService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}
func (m *mockFoodService) SeedSamples(ctx context.Context) (int, error) {
	if m.seedFn != nil {
		return m.seedFn(ctx)
	}
	return 3, nil
}
func (m *mockFoodService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if m.isAdminFn != nil {
		return m.isAdminFn(ctx, userID)
	}
	return false, nil
}

type mockTradeService struct {
	historyFn func(ctx context.Context, userID string) ([]trade.HistoryEntry, error)
}

func (m *mockTradeService) History(ctx context.Context, userID string) ([]trade.HistoryEntry, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID)
	}
	return []trade.HistoryEntry{}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(context.Context) error { return m.err }
