package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/dhcommerce/internal/model"
)

// --- モック定義 ---

// memTransactionRepo はTransactionRepositoryのインメモリ実装。
// UpdateFlagsはストアと同じくフラグをORで反映する。
type memTransactionRepo struct {
	mu          sync.Mutex
	order       []string
	txs         map[string]*model.Transaction
	listErr     error
	updateErr   error
	updateCalls []string
}

func newMemTransactionRepo(txs ...*model.Transaction) *memTransactionRepo {
	r := &memTransactionRepo{txs: make(map[string]*model.Transaction)}
	for _, tx := range txs {
		r.order = append(r.order, tx.ID)
		r.txs[tx.ID] = tx
	}
	return r
}

func (r *memTransactionRepo) ListByStatus(_ context.Context, status model.TransactionStatus) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*model.Transaction
	for _, id := range r.order {
		tx := r.txs[id]
		if tx.Status == status {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) FindByID(_ context.Context, id string) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (r *memTransactionRepo) UpdateFlags(_ context.Context, id string, flags model.TransactionFlags) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls = append(r.updateCalls, id)
	if r.updateErr != nil {
		return r.updateErr
	}
	tx, ok := r.txs[id]
	if !ok {
		return nil
	}
	tx.ReminderSent = tx.ReminderSent || flags.ReminderSent
	tx.RatingSent = tx.RatingSent || flags.RatingSent
	return nil
}

func (r *memTransactionRepo) ListByUser(context.Context, string) ([]*model.Transaction, error) {
	return nil, nil
}

func (r *memTransactionRepo) get(id string) model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.txs[id]
}

type mockUserRepo struct {
	users      map[string]*model.User
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return m.users[id], nil
}

type mockFoodRepo struct {
	foods      map[string]*model.Food
	findByIDFn func(ctx context.Context, id string) (*model.Food, error)
}

func (m *mockFoodRepo) FindByID(ctx context.Context, id string) (*model.Food, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return m.foods[id], nil
}

func (m *mockFoodRepo) List(context.Context, model.MealType) ([]*model.Food, error) { return nil, nil }
func (m *mockFoodRepo) Count(context.Context) (int, error)                        { return 0, nil }
func (m *mockFoodRepo) Create(context.Context, *model.Food) error                 { return nil }
func (m *mockFoodRepo) CreateBatch(context.Context, []*model.Food) error          { return nil }
func (m *mockFoodRepo) Update(context.Context, *model.Food) error                 { return nil }
func (m *mockFoodRepo) Delete(context.Context, string) (bool, error)              { return false, nil }

type sentMail struct {
	To      string
	Subject string
	HTML    string
}

// recordingTransport は送信内容を記録するTransport。
// failFor に含まれる宛先への送信はfalseを返す。
type recordingTransport struct {
	mu      sync.Mutex
	sent    []sentMail
	failFor map[string]bool
}

func (t *recordingTransport) Send(_ context.Context, to, subject, htmlBody string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sentMail{To: to, Subject: subject, HTML: htmlBody})
	return !t.failFor[to]
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type fakeLinker struct {
	err error
}

func (l *fakeLinker) Link(transactionID string, role model.RatingRole) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return fmt.Sprintf("https://api.example.com/rate/%s/%s?token=t", transactionID, role), nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	runs   map[string]int
	errs   map[string]int
	skips  map[string]int
	marked map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		runs:   make(map[string]int),
		errs:   make(map[string]int),
		skips:  make(map[string]int),
		marked: make(map[string]int),
	}
}

func (f *fakeMetrics) RecordSweepRun(sweep string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[sweep]++
	if err != nil {
		f.errs[sweep]++
	}
}

func (f *fakeMetrics) RecordSweepSkip(sweep, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skips[sweep+"/"+reason]++
}

func (f *fakeMetrics) RecordFlagMarked(sweep string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[sweep]++
}

func (f *fakeMetrics) RecordEmailSend(string)        {}
func (f *fakeMetrics) RecordRatingSubmitted(string) {}
func (f *fakeMetrics) RecordHTTPStatus(int)         {}

// --- フィクスチャ ---

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load timezone: %v", err)
	}
	return loc
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func acceptedTx(id, date, clock string) *model.Transaction {
	return &model.Transaction{
		ID:              id,
		FromUserID:      "buyer-1",
		ToUserID:        "seller-1",
		OfferedFoodID:   "food-1",
		RequestedFoodID: model.RequestedFoodAll,
		TradeDate:       date,
		TradeTime:       clock,
		Status:          model.TransactionStatusAccepted,
	}
}

func defaultUsers() *mockUserRepo {
	return &mockUserRepo{users: map[string]*model.User{
		"buyer-1":  {ID: "buyer-1", Email: "buyer@example.com", FullName: "Alice Buyer"},
		"seller-1": {ID: "seller-1", Email: "seller@example.com", FullName: "Bob Seller"},
	}}
}

func defaultFoods() *mockFoodRepo {
	return &mockFoodRepo{foods: map[string]*model.Food{
		"food-1": {ID: "food-1", Name: "Apple Pie", MealType: model.MealTypeSnack},
	}}
}

type fixture struct {
	txs       *memTransactionRepo
	users     *mockUserRepo
	foods     *mockFoodRepo
	transport *recordingTransport
	metrics   *fakeMetrics
	logs      *bytes.Buffer
	now       time.Time
}

func newFixture(t *testing.T, now time.Time, txs ...*model.Transaction) *fixture {
	t.Helper()
	return &fixture{
		txs:       newMemTransactionRepo(txs...),
		users:     defaultUsers(),
		foods:     defaultFoods(),
		transport: &recordingTransport{failFor: map[string]bool{}},
		metrics:   newFakeMetrics(),
		logs:      &bytes.Buffer{},
		now:       now,
	}
}

func (f *fixture) deps(loc *time.Location) Deps {
	return Deps{
		Transactions: f.txs,
		Users:        f.users,
		Foods:        f.foods,
		Transport:    f.transport,
		Metrics:      f.metrics,
		Logger:       newTestLogger(f.logs),
		Clock:        func() time.Time { return f.now },
		Location:     loc,
	}
}
