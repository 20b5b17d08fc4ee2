package userstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianswap/points-middleware/pkg/user"
)

// memStore is the in-memory Store implementation. It satisfies the same
// contract as the postgres store and backs the unit tests.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*user.User
	byAddr map[string]int64
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() Store {
	return &memStore{
		nextID: 1,
		byID:   make(map[int64]*user.User),
		byAddr: make(map[string]int64),
	}
}

func (s *memStore) GetByAddress(_ context.Context, address string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byAddr[address]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(s.byID[id]), nil
}

func (s *memStore) GetByID(_ context.Context, id int64) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	usr, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(usr), nil
}

func (s *memStore) GetOrCreate(_ context.Context, address string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byAddr[address]; ok {
		return copyUser(s.byID[id]), nil
	}

	usr := user.New(address)
	usr.ID = s.nextID
	usr.CreatedAt = time.Now().UTC()
	s.nextID++
	s.byID[usr.ID] = usr
	s.byAddr[address] = usr.ID
	return copyUser(usr), nil
}

func (s *memStore) ListUsers(_ context.Context) ([]*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]*user.User, 0, len(s.byID))
	for _, usr := range s.byID {
		users = append(users, copyUser(usr))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *memStore) SetPoints(_ context.Context, userID int64, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	usr, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	usr.Points = value
	return nil
}

func (s *memStore) SetTotalSwaps(_ context.Context, userID int64, totalSwaps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	usr, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	usr.TotalSwaps = totalSwaps
	return nil
}

func (s *memStore) RecordClaim(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	usr, ok := s.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	usr.TotalClaims++
	claimAt := at
	usr.LastClaim = &claimAt
	return nil
}

func (s *memStore) Totals(_ context.Context) (decimal.Decimal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, usr := range s.byID {
		total = total.Add(usr.Points)
	}
	return total, len(s.byID), nil
}

func (s *memStore) LeaderboardPage(_ context.Context, limit, page int) (*Page, error) {
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*user.User, 0, len(s.byID))
	total := decimal.Zero
	for _, usr := range s.byID {
		users = append(users, copyUser(usr))
		total = total.Add(usr.Points)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].Points.Equal(users[j].Points) {
			return users[i].Points.GreaterThan(users[j].Points)
		}
		if users[i].TotalSwaps != users[j].TotalSwaps {
			return users[i].TotalSwaps > users[j].TotalSwaps
		}
		return users[i].ID < users[j].ID
	})

	start := (page - 1) * limit
	if start > len(users) {
		start = len(users)
	}
	end := start + limit
	if end > len(users) {
		end = len(users)
	}

	return &Page{
		Users:             users[start:end],
		TotalGlobalPoints: total,
		TotalUserCount:    len(users),
	}, nil
}

func (s *memStore) Rank(_ context.Context, address string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byAddr[address]
	if !ok {
		return 0, ErrUserNotFound
	}
	me := s.byID[id]

	ahead := 0
	for _, usr := range s.byID {
		if usr.Points.GreaterThan(me.Points) {
			ahead++
			continue
		}
		if usr.Points.Equal(me.Points) && usr.TotalSwaps > me.TotalSwaps {
			ahead++
		}
	}
	return ahead + 1, nil
}

func (s *memStore) ResetKeeping(_ context.Context, keepAddress string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for addr, id := range s.byAddr {
		if addr == keepAddress {
			continue
		}
		delete(s.byID, id)
		delete(s.byAddr, addr)
		deleted++
	}

	if id, ok := s.byAddr[keepAddress]; ok {
		usr := s.byID[id]
		usr.Points = decimal.Zero
		usr.TotalSwaps = 0
		usr.TotalClaims = 0
		usr.LastClaim = nil
	} else {
		usr := user.New(keepAddress)
		usr.ID = s.nextID
		usr.CreatedAt = time.Now().UTC()
		s.nextID++
		s.byID[usr.ID] = usr
		s.byAddr[keepAddress] = usr.ID
	}
	return deleted, nil
}

func copyUser(usr *user.User) *user.User {
	cp := *usr
	if usr.LastClaim != nil {
		claimAt := *usr.LastClaim
		cp.LastClaim = &claimAt
	}
	return &cp
}
