package snapshot

import (
	"context"
	"time"

	"stocksim/internal/memorystore"

	"go.uber.org/zap"
)

const pageSize = 100

// StockLister is the slice of the REST client the loader needs.
type StockLister interface {
	ListStocks(ctx context.Context, page, count int) ([]memorystore.Stock, error)
}

type StockLoader struct {
	Lister  StockLister
	Timeout time.Duration
	Logger  *zap.Logger
}

// LoadStocks pages through GET /stocks and streams every stock into ch.
// ch is always closed so the consumer can exit. The whole load shares one
// timeout.
func (l *StockLoader) LoadStocks(ctx context.Context, ch chan<- memorystore.Stock) error {
	defer close(ch) // Ensure downstream consumers can exit cleanly

	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	total := 0
	for page := 1; ; page++ {
		stocks, err := l.Lister.ListStocks(ctx, page, pageSize)
		if err != nil {
			l.Logger.Error("failed to load stocks", zap.Int("page", page), zap.Error(err))
			return err
		}

		for _, s := range stocks {
			select {
			case ch <- s:
				total++
			case <-ctx.Done():
				l.Logger.Warn("stock streaming interrupted", zap.Error(ctx.Err()))
				return ctx.Err()
			}
		}

		if len(stocks) < pageSize {
			break
		}
	}

	l.Logger.Info("loaded stocks", zap.Int("count", total))
	return nil
}

// Seed loads every stock into table and waits until it is stored.
func (l *StockLoader) Seed(ctx context.Context, table *memorystore.StockTable) error {
	ch := make(chan memorystore.Stock, pageSize)
	done := table.StartWorker(ch)
	err := l.LoadStocks(ctx, ch)
	<-done
	return err
}
