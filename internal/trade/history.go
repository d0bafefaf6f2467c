// Package trade は取引履歴の参照ロジックを提供する。
package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/dhcommerce/internal/model"
	"github.com/hitoshi/dhcommerce/internal/repository"
)

// Direction は履歴を参照するユーザーから見た取引の向き。
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// HistoryEntry は取引履歴の1件。関連するフードや相手ユーザーが見つからない場合は該当フィールドを省略する。
type HistoryEntry struct {
	ID              string                  `json:"id"`
	FromUserID      string                  `json:"fromUserId"`
	ToUserID        string                  `json:"toUserId"`
	OfferedFoodID   string                  `json:"offeredFoodId,omitempty"`
	RequestedFoodID string                  `json:"requestedFoodId,omitempty"`
	TradeDate       string                  `json:"tradeDate,omitempty"`
	TradeTime       string                  `json:"tradeTime,omitempty"`
	Status          model.TransactionStatus `json:"status"`
	ReminderSent    bool                    `json:"reminderSent"`
	RatingSent      bool                    `json:"ratingSent"`
	CreatedAt       time.Time               `json:"createdAt"`
	Direction       Direction               `json:"direction"`
	OfferedFood     *model.Food             `json:"offeredFood,omitempty"`
	RequestedFood   *model.Food             `json:"requestedFood,omitempty"`
	OtherUser       string                  `json:"otherUser,omitempty"`
}

// HistoryService は取引履歴のサービス層。
type HistoryService struct {
	txRepo   repository.TransactionRepository
	foodRepo repository.FoodRepository
	userRepo repository.UserRepository
}

// NewHistoryService はHistoryServiceの新しいインスタンスを生成する。
func NewHistoryService(
	txRepo repository.TransactionRepository,
	foodRepo repository.FoodRepository,
	userRepo repository.UserRepository,
) *HistoryService {
	return &HistoryService{txRepo: txRepo, foodRepo: foodRepo, userRepo: userRepo}
}

// History はユーザーが申請者または相手である取引を新しい順に返す。
func (s *HistoryService) History(ctx context.Context, userID string) ([]HistoryEntry, error) {
	if userID == "" {
		return nil, model.NewValidationError("userId is required")
	}

	txs, err := s.txRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError("取引履歴の取得に失敗しました", err)
	}

	foods := make(map[string]*model.Food)
	names := make(map[string]string)

	entries := make([]HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		e := HistoryEntry{
			ID:              tx.ID,
			FromUserID:      tx.FromUserID,
			ToUserID:        tx.ToUserID,
			OfferedFoodID:   tx.OfferedFoodID,
			RequestedFoodID: tx.RequestedFoodID,
			TradeDate:       tx.TradeDate,
			TradeTime:       tx.TradeTime,
			Status:          tx.Status,
			ReminderSent:    tx.ReminderSent,
			RatingSent:      tx.RatingSent,
			CreatedAt:       tx.CreatedAt,
			Direction:       DirectionSent,
		}
		otherID := tx.ToUserID
		if tx.FromUserID != userID {
			e.Direction = DirectionReceived
			otherID = tx.FromUserID
		}

		if e.OfferedFood, err = s.food(ctx, foods, tx.OfferedFoodID); err != nil {
			return nil, err
		}
		if tx.RequestedFoodID != model.RequestedFoodAll {
			if e.RequestedFood, err = s.food(ctx, foods, tx.RequestedFoodID); err != nil {
				return nil, err
			}
		}
		if e.OtherUser, err = s.userName(ctx, names, otherID); err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}
	return entries, nil
}

// food は1回の履歴取得内でフードの参照結果をキャッシュする。未検出はnil。
func (s *HistoryService) food(ctx context.Context, cache map[string]*model.Food, id string) (*model.Food, error) {
	if id == "" {
		return nil, nil
	}
	if f, ok := cache[id]; ok {
		return f, nil
	}
	f, err := s.foodRepo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError("フードの取得に失敗しました", err)
	}
	cache[id] = f
	return f, nil
}

func (s *HistoryService) userName(ctx context.Context, cache map[string]string, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	if name, ok := cache[id]; ok {
		return name, nil
	}
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return "", storeError("ユーザーの取得に失敗しました", err)
	}
	var name string
	if u != nil {
		name = u.FullName
	}
	cache[id] = name
	return name, nil
}

func storeError(msg string, err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return model.NewDatabaseUnavailableError()
	}
	return fmt.Errorf("%s: %w", msg, err)
}
