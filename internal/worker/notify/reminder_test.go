package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/dhcommerce/internal/model"
)

func newReminderSweep(f *fixture, loc *time.Location) *ReminderSweep {
	return NewReminderSweep(f.deps(loc), ReminderOptions{
		Lead:          time.Hour,
		TradeLocation: "School cafeteria",
		EscalateAfter: 3,
	})
}

// nycNoon は 2025-03-20 12:00:00 America/New_York を返す。
func nycNoon(t *testing.T) (time.Time, *time.Location) {
	loc := newYork(t)
	return time.Date(2025, 3, 20, 12, 0, 0, 0, loc), loc
}

func TestReminderSweep_SendsToBothPartiesAndMarks(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now, acceptedTx("tx-1", "2025-03-20", "12:30"))

	if err := newReminderSweep(f, loc).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if len(f.transport.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(f.transport.sent))
	}
	buyer, seller := f.transport.sent[0], f.transport.sent[1]
	if buyer.To != "buyer@example.com" || seller.To != "seller@example.com" {
		t.Errorf("recipients = %q, %q", buyer.To, seller.To)
	}
	if buyer.Subject != "Trade Reminder - 1 Hour to Go!" {
		t.Errorf("subject = %q", buyer.Subject)
	}
	for _, want := range []string{"Apple Pie", "12:30 on 2025-03-20", "School cafeteria"} {
		if !strings.Contains(buyer.HTML, want) {
			t.Errorf("buyer reminder should contain %q", want)
		}
	}
	if !strings.Contains(seller.HTML, "Alice Buyer") {
		t.Error("seller reminder should mention the buyer's name")
	}

	if !f.txs.get("tx-1").ReminderSent {
		t.Error("reminderSent should be true")
	}
	if f.txs.get("tx-1").RatingSent {
		t.Error("ratingSent must not be touched by the reminder sweep")
	}
	if len(f.txs.updateCalls) != 1 {
		t.Errorf("UpdateFlags calls = %d, want 1", len(f.txs.updateCalls))
	}
	if f.metrics.marked[SweepReminder] != 1 || f.metrics.runs[SweepReminder] != 1 {
		t.Errorf("metrics = marked:%v runs:%v", f.metrics.marked, f.metrics.runs)
	}
}

func TestReminderSweep_IsIdempotent(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now, acceptedTx("tx-1", "2025-03-20", "12:30"))
	sweep := newReminderSweep(f, loc)

	for i := 0; i < 5; i++ {
		if err := sweep.RunOnce(context.Background()); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	if n := f.transport.count(); n != 2 {
		t.Errorf("sent = %d after repeated runs, want 2", n)
	}
	if len(f.txs.updateCalls) != 1 {
		t.Errorf("UpdateFlags calls = %d, want 1", len(f.txs.updateCalls))
	}
}

func TestReminderSweep_Window(t *testing.T) {
	tests := []struct {
		name  string
		now   func(loc *time.Location) time.Time
		clock string
		want  bool
	}{
		{
			name:  "ちょうど1時間後は対象",
			now:   func(loc *time.Location) time.Time { return time.Date(2025, 3, 20, 12, 0, 0, 0, loc) },
			clock: "13:00",
			want:  true,
		},
		{
			name:  "1時間1秒後は対象外",
			now:   func(loc *time.Location) time.Time { return time.Date(2025, 3, 20, 11, 59, 59, 0, loc) },
			clock: "13:00",
			want:  false,
		},
		{
			name:  "ちょうどnowは対象",
			now:   func(loc *time.Location) time.Time { return time.Date(2025, 3, 20, 13, 0, 0, 0, loc) },
			clock: "13:00",
			want:  true,
		},
		{
			name:  "過ぎた取引は対象外",
			now:   func(loc *time.Location) time.Time { return time.Date(2025, 3, 20, 13, 0, 1, 0, loc) },
			clock: "13:00",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := newYork(t)
			f := newFixture(t, tt.now(loc), acceptedTx("tx-1", "2025-03-20", tt.clock))

			if err := newReminderSweep(f, loc).RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce failed: %v", err)
			}

			fired := f.transport.count() > 0
			if fired != tt.want {
				t.Errorf("fired = %v, want %v", fired, tt.want)
			}
			if f.txs.get("tx-1").ReminderSent != tt.want {
				t.Errorf("reminderSent = %v, want %v", f.txs.get("tx-1").ReminderSent, tt.want)
			}
		})
	}
}

func TestReminderSweep_UsesOrgTimezoneRegardlessOfClockZone(t *testing.T) {
	loc := newYork(t)
	// 16:00 UTC は 12:00 EDT
	now := time.Date(2025, 3, 20, 16, 0, 0, 0, time.UTC)
	f := newFixture(t, now, acceptedTx("tx-1", "2025-03-20", "13:00"))

	if err := newReminderSweep(f, loc).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if f.transport.count() != 2 {
		t.Errorf("sent = %d, want 2", f.transport.count())
	}
}

func TestReminderSweep_MissingTradeDate_SkipsWithoutMutation(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now, acceptedTx("tx-1", "", "12:30"))

	if err := newReminderSweep(f, loc).RunOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.transport.count() != 0 {
		t.Error("no email should be sent")
	}
	if len(f.txs.updateCalls) != 0 {
		t.Error("transaction must not be mutated")
	}
}

func TestReminderSweep_IgnoresAlreadySentAndNonAccepted(t *testing.T) {
	now, loc := nycNoon(t)
	sent := acceptedTx("tx-sent", "2025-03-20", "12:30")
	sent.ReminderSent = true
	pending := acceptedTx("tx-pending", "2025-03-20", "12:30")
	pending.Status = model.TransactionStatusPending
	f := newFixture(t, now, sent, pending)

	if err := newReminderSweep(f, loc).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if f.transport.count() != 0 || len(f.txs.updateCalls) != 0 {
		t.Errorf("sent=%d updates=%d, want 0/0", f.transport.count(), len(f.txs.updateCalls))
	}
}

func TestReminderSweep_MissingRecords_SkipAndRetry(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture)
		reason string
	}{
		{
			name:   "申請者が存在しない",
			setup:  func(f *fixture) { delete(f.users.users, "buyer-1") },
			reason: reasonMissingUser,
		},
		{
			name:   "相手が存在しない",
			setup:  func(f *fixture) { delete(f.users.users, "seller-1") },
			reason: reasonMissingUser,
		},
		{
			name:   "フードが存在しない",
			setup:  func(f *fixture) { delete(f.foods.foods, "food-1") },
			reason: reasonMissingFood,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, loc := nycNoon(t)
			f := newFixture(t, now, acceptedTx("tx-1", "2025-03-20", "12:30"))
			tt.setup(f)
			sweep := newReminderSweep(f, loc)

			for i := 0; i < 3; i++ {
				if err := sweep.RunOnce(context.Background()); err != nil {
					t.Fatalf("RunOnce failed: %v", err)
				}
			}

			if f.transport.count() != 0 {
				t.Error("no email should be sent")
			}
			if f.txs.get("tx-1").ReminderSent {
				t.Error("reminderSent must stay false so a later sweep can retry")
			}
			if got := f.metrics.skips[SweepReminder+"/"+tt.reason]; got != 3 {
				t.Errorf("skip metric = %d, want 3", got)
			}
			// EscalateAfter=3 なので3回目はERROR
			if !strings.Contains(f.logs.String(), `"level":"ERROR","msg":"取引が繰り返しスキップされています"`) {
				t.Errorf("third consecutive skip should be logged at ERROR:\n%s", f.logs.String())
			}
		})
	}
}

func TestReminderSweep_OneSendFails_OtherStillAttemptedAndMarked(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now, acceptedTx("tx-1", "2025-03-20", "12:30"))
	f.transport.failFor["buyer@example.com"] = true

	if err := newReminderSweep(f, loc).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if f.transport.count() != 2 {
		t.Fatalf("both sends should be attempted, got %d", f.transport.count())
	}
	if !f.txs.get("tx-1").ReminderSent {
		t.Error("reminderSent should be true when one send was accepted")
	}
}

func TestReminderSweep_BothSendsFail_NotMarked(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now, acceptedTx("tx-1", "2025-03-20", "12:30"))
	f.transport.failFor["buyer@example.com"] = true
	f.transport.failFor["seller@example.com"] = true
	sweep := newReminderSweep(f, loc)

	if err := sweep.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if f.txs.get("tx-1").ReminderSent {
		t.Fatal("reminderSent must stay false when no send was accepted")
	}

	// 送信が回復すれば次のスイープで送られる
	f.transport.failFor = map[string]bool{}
	if err := sweep.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !f.txs.get("tx-1").ReminderSent {
		t.Error("reminderSent should be true after a successful retry")
	}
	if f.transport.count() != 4 {
		t.Errorf("sent = %d, want 4", f.transport.count())
	}
}

func TestReminderSweep_ListError_AbortsRun(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now, acceptedTx("tx-1", "2025-03-20", "12:30"))
	f.txs.listErr = fmt.Errorf("query failed: %w", model.ErrStoreUnavailable)

	err := newReminderSweep(f, loc).RunOnce(context.Background())
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if f.transport.count() != 0 || len(f.txs.updateCalls) != 0 {
		t.Error("no side effects expected when listing fails")
	}
	if f.metrics.errs[SweepReminder] != 1 {
		t.Errorf("error run metric = %d, want 1", f.metrics.errs[SweepReminder])
	}
}

func TestReminderSweep_RecordLookupError_ContinuesWithNextRecord(t *testing.T) {
	now, loc := nycNoon(t)
	broken := acceptedTx("tx-broken", "2025-03-20", "12:30")
	broken.FromUserID = "buyer-broken"
	f := newFixture(t, now, broken, acceptedTx("tx-ok", "2025-03-20", "12:45"))

	users := f.users.users
	f.users.findByIDFn = func(_ context.Context, id string) (*model.User, error) {
		if id == "buyer-broken" {
			return nil, errors.New("malformed row")
		}
		return users[id], nil
	}

	if err := newReminderSweep(f, loc).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if f.txs.get("tx-broken").ReminderSent {
		t.Error("broken record must not be marked")
	}
	if !f.txs.get("tx-ok").ReminderSent {
		t.Error("the following record should still be processed")
	}
}

func TestReminderSweep_CancelledMidRun_AbortsWithoutSkips(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now,
		acceptedTx("tx-1", "2025-03-20", "12:30"),
		acceptedTx("tx-2", "2025-03-20", "12:45"),
	)
	ctx, cancel := context.WithCancel(context.Background())
	f.users.findByIDFn = func(ctx context.Context, _ string) (*model.User, error) {
		cancel()
		return nil, fmt.Errorf("query user: %w", ctx.Err())
	}

	err := newReminderSweep(f, loc).RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := f.metrics.skips[SweepReminder+"/"+reasonLookupError]; n != 0 {
		t.Errorf("lookup_error skips = %d, want 0", n)
	}
	if strings.Contains(f.logs.String(), `"level":"WARN"`) {
		t.Errorf("cancellation should not produce skip warnings: %s", f.logs.String())
	}
	if f.transport.count() != 0 || len(f.txs.updateCalls) != 0 {
		t.Error("no sends or flag writes expected after cancellation")
	}
}

func TestReminderSweep_CancelledDuringSend_NotCountedAsSkip(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now, acceptedTx("tx-1", "2025-03-20", "12:30"))
	f.transport.failFor["buyer@example.com"] = true
	f.transport.failFor["seller@example.com"] = true

	ctx, cancel := context.WithCancel(context.Background())
	f.foods.findByIDFn = func(_ context.Context, id string) (*model.Food, error) {
		// 参照は成功させ、送信の直前に停止要求が来た状態を作る
		cancel()
		return defaultFoods().foods[id], nil
	}

	_ = newReminderSweep(f, loc).RunOnce(ctx)

	if f.transport.count() != 2 {
		t.Fatalf("sends = %d, want 2", f.transport.count())
	}
	if n := f.metrics.skips[SweepReminder+"/"+reasonSendFailed]; n != 0 {
		t.Errorf("send_failed skips = %d, want 0", n)
	}
	if f.txs.get("tx-1").ReminderSent {
		t.Error("unsent reminder must not be marked")
	}
}

func TestReminderSweep_StoreUnavailableMidRun_Aborts(t *testing.T) {
	now, loc := nycNoon(t)
	f := newFixture(t, now,
		acceptedTx("tx-1", "2025-03-20", "12:30"),
		acceptedTx("tx-2", "2025-03-20", "12:45"),
	)
	f.foods.findByIDFn = func(context.Context, string) (*model.Food, error) {
		return nil, fmt.Errorf("connection reset: %w", model.ErrStoreUnavailable)
	}

	err := newReminderSweep(f, loc).RunOnce(context.Background())
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if f.transport.count() != 0 || len(f.txs.updateCalls) != 0 {
		t.Error("no flag writes expected after the store became unavailable")
	}
}
