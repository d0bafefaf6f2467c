// Package rating は取引相手の評価受付を提供する。
package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/dhcommerce/internal/metrics"
	"github.com/hitoshi/dhcommerce/internal/model"
	"github.com/hitoshi/dhcommerce/internal/repository"
	"github.com/hitoshi/dhcommerce/internal/security"
)

// SubmitInput は評価フォームから受け取った値。
// Ratingはフォームの文字列をそのまま渡す。
type SubmitInput struct {
	TransactionID string
	Role          string
	Rating        string
	Comment       string
}

// Service は評価受付のサービス層。
type Service struct {
	txRepo     repository.TransactionRepository
	ratingRepo repository.RatingRepository
	sanitizer  security.TextSanitizer
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	txRepo repository.TransactionRepository,
	ratingRepo repository.RatingRepository,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		txRepo:     txRepo,
		ratingRepo: ratingRepo,
		sanitizer:  sanitizer,
		metrics:    mc,
		logger:     logger,
		now:        time.Now,
	}
}

// Submit は評価を1件受け付ける。
// 立場がbuyerなら取引の相手(toUser)を、sellerなら申請者(fromUser)を評価対象とし、
// 評価の追加と被評価者の集計値更新を1つのトランザクションで行う。
// 入力不正、取引未検出、評価済み、ストア到達不能は*model.APIErrorで返す。
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*model.Rating, error) {
	role, ok := model.ParseRatingRole(in.Role)
	if !ok {
		return nil, model.NewInvalidRoleError(in.Role)
	}

	value, err := strconv.Atoi(strings.TrimSpace(in.Rating))
	if err != nil || !model.ValidRating(value) {
		return nil, model.NewInvalidRatingError(in.Rating)
	}

	tx, err := s.txRepo.FindByID(ctx, in.TransactionID)
	if err != nil {
		return nil, storeError("取引の取得に失敗しました", err)
	}
	if tx == nil {
		return nil, model.NewTransactionNotFoundError(in.TransactionID)
	}

	raterID, ratedID := tx.Parties(role)
	r := &model.Rating{
		ID:            uuid.New().String(),
		FromUserID:    raterID,
		ToUserID:      ratedID,
		TransactionID: tx.ID,
		Rating:        value,
		Comment:       s.sanitizer.Sanitize(in.Comment),
		CreatedAt:     s.now().UTC(),
	}

	agg, err := s.ratingRepo.CreateAndApply(ctx, r)
	if errors.Is(err, model.ErrDuplicateRating) {
		s.logger.Info("評価済みの取引への再送信を拒否しました",
			slog.String("transaction_id", tx.ID),
			slog.String("role", string(role)),
		)
		return nil, model.NewAlreadyRatedError(tx.ID)
	}
	if err != nil {
		return nil, storeError("評価の保存に失敗しました", err)
	}

	attrs := []any{
		slog.String("transaction_id", tx.ID),
		slog.String("role", string(role)),
		slog.String("rated_user_id", ratedID),
		slog.Int("rating", value),
	}
	if agg != nil {
		attrs = append(attrs,
			slog.Int("rating_count", agg.RatingCount),
			slog.Float64("average_rating", agg.AverageRating),
		)
	} else {
		s.logger.Warn("被評価ユーザーが存在しないため集計を更新しませんでした",
			slog.String("transaction_id", tx.ID),
			slog.String("rated_user_id", ratedID),
		)
	}
	s.logger.Info("評価を受け付けました", attrs...)

	if s.metrics != nil {
		s.metrics.RecordRatingSubmitted(string(role))
	}
	return r, nil
}

// storeError はストア到達不能をDATABASE_UNAVAILABLEに変換し、それ以外はラップして返す。
func storeError(msg string, err error) error {
	if errors.Is(err, model.ErrStoreUnavailable) {
		return model.NewDatabaseUnavailableError()
	}
	return fmt.Errorf("%s: %w", msg, err)
}
