package txstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianswap/points-middleware/pkg/transaction"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func insert(t *testing.T, s Store, tx *transaction.Transaction) *transaction.Transaction {
	t.Helper()
	if err := s.Insert(context.Background(), tx); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	return tx
}

func swap(userID int64, ts time.Time, status transaction.Status) *transaction.Transaction {
	return &transaction.Transaction{UserID: userID, Type: transaction.TypeSwap, Status: status, Timestamp: ts}
}

func TestMemoryStore_CountForDay(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	insert(t, s, swap(1, day.Add(1*time.Hour), transaction.StatusCompleted))
	insert(t, s, swap(1, day.Add(23*time.Hour), transaction.StatusCompleted))
	insert(t, s, swap(1, day.Add(25*time.Hour), transaction.StatusCompleted)) // next day
	insert(t, s, swap(1, day.Add(2*time.Hour), transaction.StatusPending))    // not completed
	insert(t, s, swap(2, day.Add(3*time.Hour), transaction.StatusCompleted))  // other user
	insert(t, s, &transaction.Transaction{                                    // other type
		UserID: 1, Type: transaction.TypeFaucetClaim, Status: transaction.StatusCompleted, Timestamp: day.Add(time.Hour),
	})

	count, err := s.CountForDay(ctx, 1, transaction.TypeSwap, day)
	if err != nil {
		t.Fatalf("CountForDay() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestMemoryStore_RankWithinDay(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := insert(t, s, swap(1, day.Add(1*time.Hour), transaction.StatusCompleted))
	second := insert(t, s, swap(1, day.Add(2*time.Hour), transaction.StatusCompleted))
	third := insert(t, s, swap(1, day.Add(3*time.Hour), transaction.StatusCompleted))

	cases := []struct {
		id   int64
		want int
	}{
		{first.ID, 1},
		{second.ID, 2},
		{third.ID, 3},
	}
	for _, tc := range cases {
		rank, err := s.RankWithinDay(ctx, 1, transaction.TypeSwap, day, tc.id)
		if err != nil {
			t.Fatalf("RankWithinDay() failed: %v", err)
		}
		if rank != tc.want {
			t.Errorf("rank for id %d = %d, want %d", tc.id, rank, tc.want)
		}
	}

	// Without an exclusion id, the rank counts all rows plus one.
	rank, err := s.RankWithinDay(ctx, 1, transaction.TypeSwap, day, 0)
	if err != nil {
		t.Fatalf("RankWithinDay() failed: %v", err)
	}
	if rank != 4 {
		t.Errorf("rank without exclusion = %d, want 4", rank)
	}
}

func TestMemoryStore_List_NewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	insert(t, s, swap(1, day.Add(1*time.Hour), transaction.StatusCompleted))
	insert(t, s, swap(1, day.Add(3*time.Hour), transaction.StatusCompleted))
	insert(t, s, swap(1, day.Add(2*time.Hour), transaction.StatusCompleted))

	rows, total, err := s.List(ctx, Query{UserID: 1, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp.After(rows[i-1].Timestamp) {
			t.Errorf("rows not ordered newest first at index %d", i)
		}
	}
}

func TestMemoryStore_List_TypeFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	insert(t, s, swap(1, day, transaction.StatusCompleted))
	insert(t, s, &transaction.Transaction{
		UserID: 1, Type: transaction.TypeFaucetClaim, Status: transaction.StatusCompleted, Timestamp: day,
	})

	typ := transaction.TypeFaucetClaim
	rows, total, err := s.List(ctx, Query{UserID: 1, Type: &typ, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].Type != transaction.TypeFaucetClaim {
		t.Errorf("type filter returned %d rows (total %d)", len(rows), total)
	}
}

func TestMemoryStore_UpdatePoints(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tx := insert(t, s, swap(1, day, transaction.StatusCompleted))
	if err := s.UpdatePoints(ctx, tx.ID, decimal.RequireFromString("0.5")); err != nil {
		t.Fatalf("UpdatePoints() failed: %v", err)
	}

	rows, err := s.ListCompletedByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListCompletedByUser() failed: %v", err)
	}
	if rows[0].Points == nil || !rows[0].Points.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("points = %v, want 0.5", rows[0].Points)
	}

	if err := s.UpdatePoints(ctx, 999, decimal.Zero); err != ErrTransactionNotFound {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}
}

func TestMemoryStore_ExistingHashes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tx := swap(1, day, transaction.StatusCompleted)
	tx.TxHash = "0xaaa"
	insert(t, s, tx)

	other := swap(2, day, transaction.StatusCompleted)
	other.TxHash = "0xbbb"
	insert(t, s, other)

	existing, err := s.ExistingHashes(ctx, 1, []string{"0xaaa", "0xbbb", "0xccc"})
	if err != nil {
		t.Fatalf("ExistingHashes() failed: %v", err)
	}
	if !existing["0xaaa"] {
		t.Error("expected 0xaaa to exist for user 1")
	}
	if existing["0xbbb"] {
		t.Error("0xbbb belongs to another user and must not match")
	}
	if existing["0xccc"] {
		t.Error("0xccc does not exist")
	}
}

func TestMemoryStore_NormalizePoints(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	canonical := decimal.RequireFromString("0.5")

	legacy := swap(1, day, transaction.StatusCompleted)
	legacy.Points = dec("4")
	insert(t, s, legacy)

	ok := swap(1, day.Add(time.Minute), transaction.StatusCompleted)
	ok.Points = dec("0.5")
	insert(t, s, ok)

	overCap := swap(1, day.Add(2*time.Minute), transaction.StatusCompleted)
	overCap.Points = dec("0")
	insert(t, s, overCap)

	unset := swap(1, day.Add(3*time.Minute), transaction.StatusCompleted)
	insert(t, s, unset)

	fixed, err := s.NormalizePoints(ctx, transaction.TypeSwap, canonical)
	if err != nil {
		t.Fatalf("NormalizePoints() failed: %v", err)
	}
	if fixed != 1 {
		t.Errorf("fixed = %d, want 1 (canonical, zero and unset rows untouched)", fixed)
	}
}

func TestMemoryStore_DeleteAll(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	insert(t, s, swap(1, day, transaction.StatusCompleted))
	insert(t, s, swap(2, day, transaction.StatusCompleted))

	removed, err := s.DeleteAll(ctx)
	if err != nil {
		t.Fatalf("DeleteAll() failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	_, total, err := s.List(ctx, Query{UserID: 1, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 0 {
		t.Errorf("total after delete = %d, want 0", total)
	}
}
