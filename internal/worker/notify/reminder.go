package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/dhcommerce/internal/mailer"
	"github.com/hitoshi/dhcommerce/internal/model"
)

// SweepReminder はリマインダースイープのジョブ名。
const SweepReminder = "reminder"

// ReminderOptions はリマインダースイープの設定。
type ReminderOptions struct {
	Lead          time.Duration // 予定時刻の何分前から送信対象にするか
	TradeLocation string        // メールに記載する受け渡し場所
	EscalateAfter int           // 連続スキップ回数がこの値以上でErrorログにする
}

// ReminderSweep は予定時刻が近づいた承認済み取引の両当事者にリマインダーを送信する。
type ReminderSweep struct {
	sweepBase
	lead     time.Duration
	location string
}

// NewReminderSweep はReminderSweepを生成する。
func NewReminderSweep(deps Deps, opts ReminderOptions) *ReminderSweep {
	if opts.Lead <= 0 {
		opts.Lead = time.Hour
	}
	return &ReminderSweep{
		sweepBase: newSweepBase(SweepReminder, deps, opts.EscalateAfter),
		lead:      opts.Lead,
		location:  opts.TradeLocation,
	}
}

// Name はジョブ名を返す。
func (s *ReminderSweep) Name() string { return SweepReminder }

// RunOnce はリマインダースイープを1回実行する。
func (s *ReminderSweep) RunOnce(ctx context.Context) error {
	return s.run(ctx,
		func(tx *model.Transaction) bool { return tx.ReminderSent },
		func(at, now time.Time) bool { return DueForReminder(at, now, s.lead) },
		s.remind,
	)
}

func (s *ReminderSweep) remind(ctx context.Context, tx *model.Transaction) (bool, error) {
	buyer, seller, ok, err := s.parties(ctx, tx)
	if !ok {
		return false, err
	}

	food, err := s.deps.Foods.FindByID(ctx, tx.OfferedFoodID)
	if err != nil {
		return false, s.lookupFailed(ctx, tx, "offered_food", err)
	}
	if food == nil {
		s.skips.Skip(ctx, tx.ID, reasonMissingFood, slog.String("food_id", tx.OfferedFoodID))
		return false, nil
	}

	data := mailer.ReminderData{
		FoodName:    food.Name,
		PartnerName: buyer.FullName,
		TradeTime:   tx.TradeTime,
		TradeDate:   tx.TradeDate,
		Location:    s.location,
		Lead:        s.lead,
	}
	buyerMsg, err := mailer.ReminderBuyerEmail(data)
	if err != nil {
		s.skips.Skip(ctx, tx.ID, reasonRenderError, slog.String("error", err.Error()))
		return false, nil
	}
	sellerMsg, err := mailer.ReminderSellerEmail(data)
	if err != nil {
		s.skips.Skip(ctx, tx.ID, reasonRenderError, slog.String("error", err.Error()))
		return false, nil
	}

	if !s.deliver(ctx, tx, buyer.Email, seller.Email, buyerMsg, sellerMsg) {
		return false, nil
	}
	return s.markSent(ctx, tx, model.TransactionFlags{ReminderSent: true})
}

// compile-time interface check
var _ Job = (*ReminderSweep)(nil)
