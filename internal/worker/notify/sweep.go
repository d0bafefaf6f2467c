package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/dhcommerce/internal/mailer"
	"github.com/hitoshi/dhcommerce/internal/metrics"
	"github.com/hitoshi/dhcommerce/internal/model"
	"github.com/hitoshi/dhcommerce/internal/repository"
)

// Deps はスイープが共通で利用する依存関係。
type Deps struct {
	Transactions repository.TransactionRepository
	Users        repository.UserRepository
	Foods        repository.FoodRepository
	Transport    mailer.Transport
	Metrics      metrics.MetricsCollector
	Logger       *slog.Logger
	Clock        Clock
	Location     *time.Location
}

// sweepBase は2つのスイープに共通する処理をまとめる。
type sweepBase struct {
	name  string
	deps  Deps
	skips *SkipTracker
}

func newSweepBase(name string, deps Deps, escalateAfter int) sweepBase {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return sweepBase{
		name:  name,
		deps:  deps,
		skips: NewSkipTracker(name, escalateAfter, deps.Logger, deps.Metrics),
	}
}

// run はスイープ1回分の共通の流れを実行する。
// 承認済み取引を列挙し、flagが未設定でdueを満たす取引ごとにprocessを呼ぶ。
// 一覧取得の失敗とストア到達不能は実行全体を中断し、それ以外の取引単位の失敗はスキップして続行する。
func (b *sweepBase) run(
	ctx context.Context,
	sent func(*model.Transaction) bool,
	due func(at, now time.Time) bool,
	process func(ctx context.Context, tx *model.Transaction) (bool, error),
) (err error) {
	start := time.Now()
	defer func() {
		if b.deps.Metrics != nil {
			b.deps.Metrics.RecordSweepRun(b.name, time.Since(start), err)
		}
	}()

	now := b.deps.Clock().In(b.deps.Location)

	txs, err := b.deps.Transactions.ListByStatus(ctx, model.TransactionStatusAccepted)
	if err != nil {
		return fmt.Errorf("承認済み取引の取得に失敗しました: %w", err)
	}

	b.skips.BeginRun()

	var dueCount, marked int
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if sent(tx) {
			continue
		}

		at, err := ScheduledAt(tx.TradeDate, tx.TradeTime, b.deps.Location)
		if err != nil {
			b.deps.Logger.Debug("取引日時が不正なためスキップしました",
				slog.String("sweep", b.name),
				slog.String("transaction_id", tx.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !due(at, now) {
			continue
		}

		dueCount++
		ok, err := process(ctx, tx)
		if err != nil {
			return fmt.Errorf("取引 %s の処理中にスイープを中断しました: %w", tx.ID, err)
		}
		if ok {
			marked++
		}
	}

	b.skips.EndRun()

	b.deps.Logger.Info("スイープが完了しました",
		slog.String("sweep", b.name),
		slog.Int("accepted_count", len(txs)),
		slog.Int("due_count", dueCount),
		slog.Int("marked_count", marked),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// lookupFailed は参照の失敗を処理する。
// 実行のキャンセルとストア到達不能の場合は中断用のエラーを返し、それ以外はスキップとして記録する。
func (b *sweepBase) lookupFailed(ctx context.Context, tx *model.Transaction, what string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, model.ErrStoreUnavailable) {
		return err
	}
	b.skips.Skip(ctx, tx.ID, reasonLookupError,
		slog.String("lookup", what),
		slog.String("error", err.Error()),
	)
	return nil
}

// parties は取引の申請者(buyer)と相手(seller)を取得する。
// どちらかが存在しない場合はスキップを記録してok=falseを返す。
func (b *sweepBase) parties(ctx context.Context, tx *model.Transaction) (buyer, seller *model.User, ok bool, err error) {
	buyer, err = b.deps.Users.FindByID(ctx, tx.FromUserID)
	if err != nil {
		return nil, nil, false, b.lookupFailed(ctx, tx, "buyer", err)
	}
	seller, err = b.deps.Users.FindByID(ctx, tx.ToUserID)
	if err != nil {
		return nil, nil, false, b.lookupFailed(ctx, tx, "seller", err)
	}

	if buyer == nil || seller == nil {
		b.skips.Skip(ctx, tx.ID, reasonMissingUser,
			slog.String("from_user_id", tx.FromUserID),
			slog.String("to_user_id", tx.ToUserID),
			slog.Bool("buyer_found", buyer != nil),
			slog.Bool("seller_found", seller != nil),
		)
		return nil, nil, false, nil
	}
	return buyer, seller, true, nil
}

// deliver は2通のメッセージを両方とも送信し、少なくとも1通が受理された場合にtrueを返す。
// 1通目の失敗で2通目を省略することはない。
func (b *sweepBase) deliver(ctx context.Context, tx *model.Transaction, toBuyer, toSeller string, buyerMsg, sellerMsg mailer.Message) bool {
	buyerOK := b.deps.Transport.Send(ctx, toBuyer, buyerMsg.Subject, buyerMsg.HTML)
	sellerOK := b.deps.Transport.Send(ctx, toSeller, sellerMsg.Subject, sellerMsg.HTML)

	switch {
	case !buyerOK && !sellerOK:
		// キャンセルによる失敗はスキップとして数えない。次回の実行で再送する
		if ctx.Err() == nil {
			b.skips.Skip(ctx, tx.ID, reasonSendFailed)
		}
		return false
	case !buyerOK || !sellerOK:
		b.deps.Logger.Warn("一方の通知のみ送信できました",
			slog.String("sweep", b.name),
			slog.String("transaction_id", tx.ID),
			slog.Bool("buyer_accepted", buyerOK),
			slog.Bool("seller_accepted", sellerOK),
		)
	}
	return true
}

// markSent はフラグを更新する。更新に失敗した場合、次回のスイープで再送される。
func (b *sweepBase) markSent(ctx context.Context, tx *model.Transaction, flags model.TransactionFlags) (bool, error) {
	if err := b.deps.Transactions.UpdateFlags(ctx, tx.ID, flags); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if errors.Is(err, model.ErrStoreUnavailable) {
			return false, err
		}
		b.skips.Skip(ctx, tx.ID, reasonUpdateError, slog.String("error", err.Error()))
		return false, nil
	}

	b.skips.Clear(tx.ID)
	if b.deps.Metrics != nil {
		b.deps.Metrics.RecordFlagMarked(b.name)
	}
	return true, nil
}
