package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"stocksim/internal/memorystore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLister struct {
	stocks []memorystore.Stock
	err    error
	pages  int
}

func (f *fakeLister) ListStocks(ctx context.Context, page, count int) ([]memorystore.Stock, error) {
	f.pages++
	if f.err != nil {
		return nil, f.err
	}
	start := (page - 1) * count
	if start >= len(f.stocks) {
		return nil, nil
	}
	end := start + count
	if end > len(f.stocks) {
		end = len(f.stocks)
	}
	return f.stocks[start:end], nil
}

// go test -v --run TestSeedPages
func TestSeedPages(t *testing.T) {
	lister := &fakeLister{}
	for i := 0; i < 150; i++ {
		lister.stocks = append(lister.stocks, memorystore.Stock{
			Symbol:   fmt.Sprintf("S%03d", i),
			Price:    decimal.NewFromInt(int64(i)),
			Quantity: 10,
		})
	}

	loader := &StockLoader{Lister: lister, Timeout: time.Second, Logger: zap.NewNop()}
	table := memorystore.NewStockTable()

	require.NoError(t, loader.Seed(context.Background(), table))
	assert.Equal(t, 150, table.CountAll())
	assert.Equal(t, 2, lister.pages)

	s, ok := table.Get("S149")
	require.True(t, ok)
	assert.EqualValues(t, 10, s.Quantity)
}

// go test -v --run TestSeedError
func TestSeedError(t *testing.T) {
	loader := &StockLoader{Lister: &fakeLister{err: errors.New("refused")}, Timeout: time.Second, Logger: zap.NewNop()}
	table := memorystore.NewStockTable()

	err := loader.Seed(context.Background(), table)
	assert.EqualError(t, err, "refused")
	assert.Equal(t, 0, table.CountAll())
}

// go test -v --run TestDailyRefresher
func TestDailyRefresher(t *testing.T) {
	var runs atomic.Int32
	ran := make(chan struct{}, 1)

	r := &DailyRefresher{
		Name: "test",
		Run: func(ctx context.Context) error {
			runs.Add(1)
			ran <- struct{}{}
			return nil
		},
		Logger: zap.NewNop(),
		now:    func() time.Time { return time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC) },
	}

	assert.Equal(t, time.Hour, r.untilMidnight())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run at startup")
	}
	assert.EqualValues(t, 1, runs.Load())
}
