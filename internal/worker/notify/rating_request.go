package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/dhcommerce/internal/mailer"
	"github.com/hitoshi/dhcommerce/internal/model"
)

// SweepRatingRequest は評価依頼スイープのジョブ名。
const SweepRatingRequest = "rating_request"

const reasonLinkError = "link_error"

// RatingLinker は取引と立場に対応する評価フォームのURLを生成する。
type RatingLinker interface {
	Link(transactionID string, role model.RatingRole) (string, error)
}

// RatingRequestSweep は予定時刻から猶予時間が経過した承認済み取引の両当事者に評価依頼を送信する。
type RatingRequestSweep struct {
	sweepBase
	links RatingLinker
	grace time.Duration
}

// NewRatingRequestSweep はRatingRequestSweepを生成する。
func NewRatingRequestSweep(deps Deps, links RatingLinker, grace time.Duration, escalateAfter int) *RatingRequestSweep {
	if grace <= 0 {
		grace = 20 * time.Minute
	}
	return &RatingRequestSweep{
		sweepBase: newSweepBase(SweepRatingRequest, deps, escalateAfter),
		links:     links,
		grace:     grace,
	}
}

// Name はジョブ名を返す。
func (s *RatingRequestSweep) Name() string { return SweepRatingRequest }

// RunOnce は評価依頼スイープを1回実行する。
func (s *RatingRequestSweep) RunOnce(ctx context.Context) error {
	return s.run(ctx,
		func(tx *model.Transaction) bool { return tx.RatingSent },
		func(at, now time.Time) bool { return DueForRatingRequest(at, now, s.grace) },
		s.request,
	)
}

func (s *RatingRequestSweep) request(ctx context.Context, tx *model.Transaction) (bool, error) {
	buyer, seller, ok, err := s.parties(ctx, tx)
	if !ok {
		return false, err
	}

	// buyerは出品者(toUser)を、sellerは申請者(fromUser)を評価する
	buyerMsg, ok := s.message(ctx, tx, model.RoleBuyer, seller.FullName)
	if !ok {
		return false, nil
	}
	sellerMsg, ok := s.message(ctx, tx, model.RoleSeller, buyer.FullName)
	if !ok {
		return false, nil
	}

	if !s.deliver(ctx, tx, buyer.Email, seller.Email, buyerMsg, sellerMsg) {
		return false, nil
	}
	return s.markSent(ctx, tx, model.TransactionFlags{RatingSent: true})
}

func (s *RatingRequestSweep) message(ctx context.Context, tx *model.Transaction, role model.RatingRole, partner string) (mailer.Message, bool) {
	link, err := s.links.Link(tx.ID, role)
	if err != nil {
		s.skips.Skip(ctx, tx.ID, reasonLinkError, slog.String("role", string(role)), slog.String("error", err.Error()))
		return mailer.Message{}, false
	}
	msg, err := mailer.RatingRequestEmail(mailer.RatingRequestData{PartnerName: partner, Link: link})
	if err != nil {
		s.skips.Skip(ctx, tx.ID, reasonRenderError, slog.String("error", err.Error()))
		return mailer.Message{}, false
	}
	return msg, true
}

// compile-time interface check
var _ Job = (*RatingRequestSweep)(nil)
