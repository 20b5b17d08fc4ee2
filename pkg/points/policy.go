// Package points holds the reward policy and the pure award calculator.
//
// The policy constants live here and nowhere else: the write path, the
// reconciler and the admin fix tooling all consume the same Policy value, so
// the cap and per-swap award cannot drift between code paths.
package points

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianswap/points-middleware/pkg/transaction"
)

// Default policy values. Override via config, not by editing call sites.
const (
	DefaultDailyCap   = 5
	DefaultQuizReward = 10
)

// DefaultPointsPerSwap is the canonical award for an eligible swap.
var DefaultPointsPerSwap = decimal.NewFromFloat(0.5)

// Policy is the reward policy applied to recorded transactions.
type Policy struct {
	// DailyCap is the maximum number of swaps per UTC day that earn points.
	DailyCap int
	// PointsPerSwap is the award for each eligible swap.
	PointsPerSwap decimal.Decimal
	// QuizReward is the maximum award for a perfect quiz score.
	QuizReward decimal.Decimal
}

// DefaultPolicy returns the canonical testnet policy: 0.5 points per swap,
// capped at 5 eligible swaps per UTC day.
func DefaultPolicy() Policy {
	return Policy{
		DailyCap:      DefaultDailyCap,
		PointsPerSwap: DefaultPointsPerSwap,
		QuizReward:    decimal.NewFromInt(DefaultQuizReward),
	}
}

// Award returns the points for a single transaction given its 1-indexed rank
// among same-day, same-type completed transactions for the owning user.
// Everything that is not a completed swap within the daily cap awards zero;
// non-swap types never feed into the swap cap.
func (p Policy) Award(typ transaction.Type, status transaction.Status, rankWithinDay int) decimal.Decimal {
	if typ != transaction.TypeSwap || status != transaction.StatusCompleted {
		return decimal.Zero
	}
	if rankWithinDay < 1 || rankWithinDay > p.DailyCap {
		return decimal.Zero
	}
	return p.PointsPerSwap
}

// QuizAward returns round(score/maxScore * QuizReward). Awarded once, on the
// first transition of a quiz attempt to completed.
func (p Policy) QuizAward(score, maxScore int) decimal.Decimal {
	if maxScore <= 0 || score <= 0 {
		return decimal.Zero
	}
	if score > maxScore {
		score = maxScore
	}
	ratio := decimal.NewFromInt(int64(score)).Div(decimal.NewFromInt(int64(maxScore)))
	return ratio.Mul(p.QuizReward).Round(0)
}

// DayPoints returns the capped award for a day containing count completed
// swaps: min(count, DailyCap) * PointsPerSwap.
func (p Policy) DayPoints(count int) decimal.Decimal {
	if count > p.DailyCap {
		count = p.DailyCap
	}
	if count <= 0 {
		return decimal.Zero
	}
	return p.PointsPerSwap.Mul(decimal.NewFromInt(int64(count)))
}

// Round1 rounds a points value to one decimal place. Applied after any
// computation that sums multiple awards so repeated 0.5 increments cannot
// accumulate float artifacts at the boundaries.
func Round1(d decimal.Decimal) decimal.Decimal {
	return d.Round(1)
}

// DayOf returns the UTC calendar day containing t. Day bucketing is UTC
// everywhere; no call site gets to pick its own boundary.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
