package txstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianswap/points-middleware/pkg/points"
	"github.com/meridianswap/points-middleware/pkg/transaction"
)

// memStore is the in-memory Store implementation backing the unit tests.
// It has a single write path; the dual-path strategy is a property of the
// postgres store and is covered by its own tests.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   []*transaction.Transaction
}

// NewMemoryStore creates an empty in-memory transaction store.
func NewMemoryStore() Store {
	return &memStore{nextID: 1}
}

func (s *memStore) Insert(_ context.Context, tx *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.nextID
	s.nextID++
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	cp := *tx
	if tx.Points != nil {
		pts := *tx.Points
		cp.Points = &pts
	}
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *memStore) UpdatePoints(_ context.Context, id int64, pts decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			v := pts
			row.Points = &v
			return nil
		}
	}
	return ErrTransactionNotFound
}

func (s *memStore) List(_ context.Context, q Query) ([]*transaction.Transaction, int, error) {
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*transaction.Transaction
	for _, row := range s.rows {
		if row.UserID != q.UserID {
			continue
		}
		if q.Type != nil && row.Type != *q.Type {
			continue
		}
		matched = append(matched, copyTx(row))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *memStore) ListCompletedByUser(_ context.Context, userID int64) ([]*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*transaction.Transaction
	for _, row := range s.rows {
		if row.UserID == userID && row.Status == transaction.StatusCompleted {
			matched = append(matched, copyTx(row))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[i].ID < matched[j].ID
	})
	return matched, nil
}

func (s *memStore) CountForDay(_ context.Context, userID int64, typ transaction.Type, day time.Time) (int, error) {
	bucket := points.DayOf(day)

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, row := range s.rows {
		if row.UserID == userID && row.Type == typ && row.Status == transaction.StatusCompleted &&
			points.DayOf(row.Timestamp).Equal(bucket) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) RankWithinDay(_ context.Context, userID int64, typ transaction.Type, ts time.Time, excludeID int64) (int, error) {
	bucket := points.DayOf(ts)

	s.mu.Lock()
	defer s.mu.Unlock()

	before := 0
	for _, row := range s.rows {
		if row.UserID != userID || row.Type != typ || row.Status != transaction.StatusCompleted {
			continue
		}
		if !points.DayOf(row.Timestamp).Equal(bucket) {
			continue
		}
		if excludeID > 0 && row.ID >= excludeID {
			continue
		}
		before++
	}
	return before + 1, nil
}

func (s *memStore) CountByUserAndType(_ context.Context, userID int64, typ transaction.Type) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, row := range s.rows {
		if row.UserID == userID && row.Type == typ {
			count++
		}
	}
	return count, nil
}

func (s *memStore) ExistingHashes(_ context.Context, userID int64, hashes []string) (map[string]bool, error) {
	wanted := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		wanted[h] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool)
	for _, row := range s.rows {
		if row.UserID == userID && row.TxHash != "" && wanted[row.TxHash] {
			existing[row.TxHash] = true
		}
	}
	return existing, nil
}

func (s *memStore) NormalizePoints(_ context.Context, typ transaction.Type, canonical decimal.Decimal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fixed int64
	for _, row := range s.rows {
		if row.Type != typ || row.Status != transaction.StatusCompleted || row.Points == nil {
			continue
		}
		if row.Points.IsZero() || row.Points.Equal(canonical) {
			continue
		}
		v := canonical
		row.Points = &v
		fixed++
	}
	return fixed, nil
}

func (s *memStore) DeleteAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := int64(len(s.rows))
	s.rows = nil
	return removed, nil
}

func copyTx(tx *transaction.Transaction) *transaction.Transaction {
	cp := *tx
	if tx.Points != nil {
		pts := *tx.Points
		cp.Points = &pts
	}
	return &cp
}
