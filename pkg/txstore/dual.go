package txstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridianswap/points-middleware/internal/metrics"
	"github.com/meridianswap/points-middleware/pkg/transaction"
)

// writeStrategy persists one validated, normalized transaction row and fills
// in its generated fields.
type writeStrategy func(ctx context.Context, tx *transaction.Transaction) error

// dualWriter attempts the primary strategy and, only after it errors, retries
// through the fallback with the same values. Strategies run sequentially,
// never concurrently, so a slow primary cannot race a fallback into a
// duplicate row. Only an exhausted fallback surfaces to the caller.
type dualWriter struct {
	primary  writeStrategy
	fallback writeStrategy
	logger   *zap.Logger
}

func (w *dualWriter) insert(ctx context.Context, tx *transaction.Transaction) error {
	primaryErr := w.primary(ctx, tx)
	if primaryErr == nil {
		return nil
	}

	w.logger.Warn("Primary transaction write failed, retrying via fallback path",
		zap.Int64("user_id", tx.UserID),
		zap.String("type", string(tx.Type)),
		zap.Error(primaryErr))
	metrics.FallbackWrites.Inc()

	if fallbackErr := w.fallback(ctx, tx); fallbackErr != nil {
		metrics.ErrorsTotal.WithLabelValues("txstore").Inc()
		return fmt.Errorf("both write paths failed: primary: %v; fallback: %w", primaryErr, fallbackErr)
	}
	return nil
}
