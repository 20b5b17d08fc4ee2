package admin

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

const (
	alice       = "0x1111111111111111111111111111111111111111"
	bob         = "0x2222222222222222222222222222222222222222"
	demoAddress = "0x0000000000000000000000000000000000000de0"
)

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

type fixture struct {
	svc   *Service
	users userstore.Store
	txs   txstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := userstore.NewMemoryStore()
	txs := txstore.NewMemoryStore()
	rec := &eventRecorder{}
	lgr := ledger.New(users, rec, zap.NewNop())
	engine := reconciler.New(txs, users, rec, points.DefaultPolicy(), zap.NewNop())
	return &fixture{
		svc:   New(users, txs, lgr, engine, rec, demoAddress, zap.NewNop()),
		users: users,
		txs:   txs,
	}
}

func (f *fixture) seedSwaps(t *testing.T, address string, count int) int64 {
	t.Helper()
	ctx := context.Background()
	usr, err := f.users.GetOrCreate(ctx, address)
	if err != nil {
		t.Fatalf("GetOrCreate(%s) failed: %v", address, err)
	}
	pts := decimal.RequireFromString("0.5")
	for i := 0; i < count; i++ {
		err := f.txs.Insert(ctx, &transaction.Transaction{
			UserID:    usr.ID,
			Type:      transaction.TypeSwap,
			Status:    transaction.StatusCompleted,
			Points:    &pts,
			Timestamp: day.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert() failed: %v", err)
		}
	}
	return usr.ID
}

func TestService_Reset_KeepsDemoUserOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedSwaps(t, alice, 3)
	f.seedSwaps(t, bob, 2)
	demoID := f.seedSwaps(t, demoAddress, 4)
	if err := f.users.SetPoints(ctx, demoID, decimal.RequireFromString("2")); err != nil {
		t.Fatalf("SetPoints() failed: %v", err)
	}

	report, err := f.svc.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	if report.UsersDeleted != 2 {
		t.Errorf("usersDeleted = %d, want 2", report.UsersDeleted)
	}
	if report.TransactionsDeleted != 9 {
		t.Errorf("transactionsDeleted = %d, want 9", report.TransactionsDeleted)
	}
	if report.KeptAddress != demoAddress {
		t.Errorf("keptAddress = %s, want %s", report.KeptAddress, demoAddress)
	}

	users, err := f.users.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("remaining users = %d, want exactly the demo user", len(users))
	}
	demo := users[0]
	if demo.Address != demoAddress {
		t.Errorf("kept user = %s, want %s", demo.Address, demoAddress)
	}
	if !demo.Points.IsZero() || demo.TotalSwaps != 0 {
		t.Errorf("demo aggregates not zeroed: points=%s swaps=%d", demo.Points, demo.TotalSwaps)
	}

	_, total, err := f.txs.List(ctx, txstore.Query{UserID: demo.ID, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 0 {
		t.Errorf("transaction rows remain after reset: %d", total)
	}
}

func TestService_BatchAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedSwaps(t, alice, 0)

	report, err := f.svc.BatchAdjust(ctx, []Adjustment{
		{Address: alice, Delta: decimal.RequireFromString("5")},
		{Address: bob, Delta: decimal.RequireFromString("2")}, // lazily created
		{Address: "garbage", Delta: decimal.RequireFromString("1")},
		{Address: alice, Delta: decimal.RequireFromString("-1.5")},
	})
	if err != nil {
		t.Fatalf("BatchAdjust() failed: %v", err)
	}
	if report.Applied != 3 || report.Failed != 1 {
		t.Errorf("applied/failed = %d/%d, want 3/1", report.Applied, report.Failed)
	}

	aliceUser, err := f.users.GetByAddress(ctx, alice)
	if err != nil {
		t.Fatalf("GetByAddress(alice) failed: %v", err)
	}
	if !aliceUser.Points.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("alice points = %s, want 3.5", aliceUser.Points)
	}
	bobUser, err := f.users.GetByAddress(ctx, bob)
	if err != nil {
		t.Fatalf("GetByAddress(bob) failed: %v", err)
	}
	if !bobUser.Points.Equal(decimal.RequireFromString("2")) {
		t.Errorf("bob points = %s, want 2", bobUser.Points)
	}
}

func TestService_BatchAdjust_Empty(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BatchAdjust(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for empty batch, got nil")
	}
	if !apperrors.Is(err, apperrors.CategoryDataError) {
		t.Fatalf("expected CategoryDataError, got %v", err)
	}
}

func TestService_RecalculateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedSwaps(t, alice, 7)

	res, err := f.svc.RecalculateUser(ctx, alice)
	if err != nil {
		t.Fatalf("RecalculateUser() failed: %v", err)
	}
	if !res.PointsAfter.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("pointsAfter = %s, want 2.5", res.PointsAfter)
	}
	if res.TotalSwaps != 7 {
		t.Errorf("totalSwaps = %d, want 7", res.TotalSwaps)
	}
}

func TestService_RecalculateUser_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecalculateUser(context.Background(), alice)
	if err == nil {
		t.Fatal("expected not found error, got nil")
	}
	if !apperrors.Is(err, apperrors.CategoryResourceNotFound) {
		t.Fatalf("expected CategoryResourceNotFound, got %v", err)
	}
}

func TestService_FixPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.seedSwaps(t, alice, 1)
	legacy := decimal.RequireFromString("4")
	err := f.txs.Insert(ctx, &transaction.Transaction{
		UserID:    userID,
		Type:      transaction.TypeSwap,
		Status:    transaction.StatusCompleted,
		Points:    &legacy,
		Timestamp: day.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	report, err := f.svc.FixPoints(ctx)
	if err != nil {
		t.Fatalf("FixPoints() failed: %v", err)
	}
	if report.RowsNormalized != 1 {
		t.Errorf("rowsNormalized = %d, want 1", report.RowsNormalized)
	}
	if !report.TotalPointsAfter.Equal(decimal.RequireFromString("1")) {
		t.Errorf("totalPointsAfter = %s, want 1", report.TotalPointsAfter)
	}
}
