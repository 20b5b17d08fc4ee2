package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/meridianswap/points-middleware/pkg/app/errors"
	"github.com/meridianswap/points-middleware/pkg/broadcast"
	"github.com/meridianswap/points-middleware/pkg/ledger"
	"github.com/meridianswap/points-middleware/pkg/points"
	"github.com/meridianswap/points-middleware/pkg/reconciler"
	"github.com/meridianswap/points-middleware/pkg/transaction"
	"github.com/meridianswap/points-middleware/pkg/txstore"
	"github.com/meridianswap/points-middleware/pkg/userstore"
)

const testAddress = "0x1111111111111111111111111111111111111111"

var day = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type eventRecorder struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *eventRecorder) Publish(ev broadcast.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) count(typ broadcast.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	svc   *Service
	users userstore.Store
	txs   txstore.Store
	rec   *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := userstore.NewMemoryStore()
	txs := txstore.NewMemoryStore()
	rec := &eventRecorder{}
	policy := points.DefaultPolicy()
	lgr := ledger.New(users, rec, zap.NewNop())
	engine := reconciler.New(txs, users, rec, policy, zap.NewNop())
	svc := New(users, txs, lgr, engine, policy, zap.NewNop(), WithSyncTrigger())
	return &fixture{svc: svc, users: users, txs: txs, rec: rec}
}

func (f *fixture) swapAt(ts time.Time) *RecordRequest {
	return &RecordRequest{
		Address:   testAddress,
		Type:      string(transaction.TypeSwap),
		Status:    string(transaction.StatusCompleted),
		TokenIn:   "mUSDC",
		TokenOut:  "mWETH",
		AmountIn:  "100",
		AmountOut: "0.03",
		Timestamp: &ts,
	}
}

func TestService_Record_SevenSwapScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	eventsAtSwap := make([]int, 0, 7)
	for i := 0; i < 7; i++ {
		before := f.rec.count(broadcast.EventPointsUpdate)
		res, err := f.svc.Record(ctx, f.swapAt(day.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("Record() swap %d failed: %v", i+1, err)
		}
		eventsAtSwap = append(eventsAtSwap, f.rec.count(broadcast.EventPointsUpdate)-before)

		wantAward := "0.5"
		if i >= 5 {
			wantAward = "0"
		}
		if !res.PointsAwarded.Equal(decimal.RequireFromString(wantAward)) {
			t.Errorf("swap %d awarded %s, want %s", i+1, res.PointsAwarded, wantAward)
		}
	}

	usr, err := f.users.GetByAddress(ctx, testAddress)
	if err != nil {
		t.Fatalf("GetByAddress() failed: %v", err)
	}
	if !usr.Points.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("points = %s, want 2.5", usr.Points)
	}
	if usr.TotalSwaps != 7 {
		t.Errorf("totalSwaps = %d, want 7", usr.TotalSwaps)
	}

	// Swaps 1 through 5 each publish once; the cap-boundary reconciliation at
	// the 5th finds no drift and stays silent; swaps 6 and 7 award nothing.
	want := []int{1, 1, 1, 1, 1, 0, 0}
	for i := range want {
		if eventsAtSwap[i] != want[i] {
			t.Errorf("swap %d published %d points_update events, want %d", i+1, eventsAtSwap[i], want[i])
		}
	}
}

func TestService_Record_ExplicitPointsStoredVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	explicit := decimal.RequireFromString("0.5")
	req := f.swapAt(day)
	req.Points = &explicit

	res, err := f.svc.Record(ctx, req)
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if res.Transaction.Points == nil || res.Transaction.Points.String() != "0.5" {
		t.Errorf("stored points = %v, want the caller's 0.5 untouched", res.Transaction.Points)
	}
	if !res.PointsAwarded.Equal(explicit) {
		t.Errorf("awarded = %s, want exactly the explicit 0.5", res.PointsAwarded)
	}
	if !res.TotalPoints.Equal(explicit) {
		t.Errorf("total = %s, want 0.5", res.TotalPoints)
	}

	// Explicit values bypass the calculator even when they disagree with it.
	odd := decimal.RequireFromString("4")
	req = f.swapAt(day.Add(time.Minute))
	req.Points = &odd
	res, err = f.svc.Record(ctx, req)
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if !res.PointsAwarded.Equal(odd) {
		t.Errorf("awarded = %s, want the explicit 4", res.PointsAwarded)
	}
}

func TestService_Record_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *RecordRequest
	}{
		{"bad address", &RecordRequest{Address: "not-an-address", Type: "swap", Status: "completed"}},
		{"unknown type", &RecordRequest{Address: testAddress, Type: "teleport", Status: "completed"}},
		{"unknown status", &RecordRequest{Address: testAddress, Type: "swap", Status: "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Record(ctx, tc.req)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !apperrors.Is(err, apperrors.CategoryDataError) {
				t.Fatalf("expected CategoryDataError, got %v", err)
			}
		})
	}

	// Rejected requests leave no side effects.
	if _, err := f.users.GetByAddress(ctx, testAddress); err == nil {
		t.Error("rejected request should not have created a user")
	}
}

func TestService_Record_LazyUserCreation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Mixed-case input normalizes to the canonical lowercase identity.
	req := f.swapAt(day)
	req.Address = "0x1111111111111111111111111111111111111111"
	if _, err := f.svc.Record(ctx, req); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}

	usr, err := f.users.GetByAddress(ctx, testAddress)
	if err != nil {
		t.Fatalf("user was not lazily created: %v", err)
	}
	if usr.Address != testAddress {
		t.Errorf("address = %s, want normalized %s", usr.Address, testAddress)
	}
}

func TestService_Record_FaucetClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Record(ctx, &RecordRequest{
		Address:   testAddress,
		Type:      string(transaction.TypeFaucetClaim),
		Status:    string(transaction.StatusCompleted),
		Timestamp: &day,
	})
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if !res.PointsAwarded.IsZero() {
		t.Errorf("faucet claim awarded %s, want 0", res.PointsAwarded)
	}

	usr, err := f.users.GetByAddress(ctx, testAddress)
	if err != nil {
		t.Fatalf("GetByAddress() failed: %v", err)
	}
	if usr.TotalClaims != 1 {
		t.Errorf("totalClaims = %d, want 1", usr.TotalClaims)
	}
	if usr.LastClaim == nil || !usr.LastClaim.Equal(day) {
		t.Errorf("lastClaim = %v, want %v", usr.LastClaim, day)
	}
}

func TestService_Record_QuizAwardedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	score, maxScore := 8, 10
	quiz := func() *RecordRequest {
		return &RecordRequest{
			Address:   testAddress,
			Type:      string(transaction.TypeQuiz),
			Status:    string(transaction.StatusCompleted),
			Score:     &score,
			MaxScore:  &maxScore,
			Timestamp: &day,
		}
	}

	res, err := f.svc.Record(ctx, quiz())
	if err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if !res.PointsAwarded.Equal(decimal.NewFromInt(8)) {
		t.Errorf("first quiz awarded %s, want 8", res.PointsAwarded)
	}

	// Resubmission earns nothing.
	res, err = f.svc.Record(ctx, quiz())
	if err != nil {
		t.Fatalf("Record() resubmission failed: %v", err)
	}
	if !res.PointsAwarded.IsZero() {
		t.Errorf("resubmission awarded %s, want 0", res.PointsAwarded)
	}

	usr, err := f.users.GetByAddress(ctx, testAddress)
	if err != nil {
		t.Fatalf("GetByAddress() failed: %v", err)
	}
	if !usr.Points.Equal(decimal.NewFromInt(8)) {
		t.Errorf("points = %s, want 8", usr.Points)
	}
}

func TestService_Sync_Dedup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item := func(hash string, offset time.Duration) *RecordRequest {
		ts := day.Add(offset)
		return &RecordRequest{
			Type:      string(transaction.TypeSwap),
			Status:    string(transaction.StatusCompleted),
			TxHash:    hash,
			Timestamp: &ts,
		}
	}

	res, err := f.svc.Sync(ctx, &SyncRequest{
		Address: testAddress,
		Transactions: []*RecordRequest{
			item("0xaaa", 0),
			item("0xaaa", time.Minute), // duplicate within the payload
			item("0xbbb", 2*time.Minute),
		},
	})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Synced != 2 || res.Skipped != 1 {
		t.Errorf("synced/skipped = %d/%d, want 2/1", res.Synced, res.Skipped)
	}

	// Replaying the same payload stores nothing new and awards nothing new.
	res, err = f.svc.Sync(ctx, &SyncRequest{
		Address:      testAddress,
		Transactions: []*RecordRequest{item("0xaaa", 0), item("0xbbb", 2*time.Minute)},
	})
	if err != nil {
		t.Fatalf("Sync() replay failed: %v", err)
	}
	if res.Synced != 0 || res.Skipped != 2 {
		t.Errorf("replay synced/skipped = %d/%d, want 0/2", res.Synced, res.Skipped)
	}

	usr, err := f.users.GetByAddress(ctx, testAddress)
	if err != nil {
		t.Fatalf("GetByAddress() failed: %v", err)
	}
	if !usr.Points.Equal(decimal.NewFromInt(1)) {
		t.Errorf("points = %s, want 1 (two deduped swaps)", usr.Points)
	}
	if usr.TotalSwaps != 2 {
		t.Errorf("totalSwaps = %d, want 2", usr.TotalSwaps)
	}
}

func TestService_Sync_RequiresHashes(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Sync(context.Background(), &SyncRequest{
		Address:      testAddress,
		Transactions: []*RecordRequest{{Type: "swap", Status: "completed"}},
	})
	if err == nil {
		t.Fatal("expected error for hashless sync item, got nil")
	}
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("expected CategoryDataError, got %v", err)
	}
}

func TestService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Record(ctx, f.swapAt(day.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	res, err := f.svc.List(ctx, testAddress, nil, 1, 2)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if res.Total != 3 {
		t.Errorf("total = %d, want 3", res.Total)
	}
	if len(res.Transactions) != 2 {
		t.Fatalf("page size = %d, want 2", len(res.Transactions))
	}
	if !res.Transactions[0].Timestamp.After(res.Transactions[1].Timestamp) {
		t.Error("transactions are not newest first")
	}
}

func TestService_List_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.List(context.Background(), "0x2222222222222222222222222222222222222222", nil, 1, 10)
	if err == nil {
		t.Fatal("expected not found error, got nil")
	}
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("expected CategoryResourceNotFound, got %v", err)
	}
}
