package memorystore

import (
	"sort"
	"sync"
)

// StockTable holds the latest state per symbol for the live stock view.
type StockTable struct {
	globalMu sync.RWMutex
	data     map[string]*symbolStock
}

type symbolStock struct {
	mu    sync.Mutex
	stock Stock
}

func NewStockTable() *StockTable {
	return &StockTable{data: make(map[string]*symbolStock)}
}

func (t *StockTable) entry(symbol string) *symbolStock {
	// Fast path: shared lock only
	t.globalMu.RLock()
	e, ok := t.data[symbol]
	t.globalMu.RUnlock()
	if ok {
		return e
	}

	t.globalMu.Lock()
	defer t.globalMu.Unlock()
	if e, ok = t.data[symbol]; !ok {
		e = &symbolStock{stock: Stock{Symbol: symbol}}
		t.data[symbol] = e
	}
	return e
}

// Upsert replaces the stored state for s.Symbol.
func (t *StockTable) Upsert(s Stock) {
	e := t.entry(s.Symbol)
	e.mu.Lock()
	e.stock = s
	e.mu.Unlock()
}

// Apply folds a push update into the table. Symbols never seen before are
// created. It returns the resulting row.
func (t *StockTable) Apply(u StockUpdate) Stock {
	e := t.entry(u.Data.Symbol)

	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case u.Type == "out_of_stock":
		e.stock.Quantity = 0
	case u.Data.RemainingQuantity != nil:
		e.stock.Quantity = *u.Data.RemainingQuantity
	case u.Data.AvailableQuantity != nil:
		e.stock.Quantity = *u.Data.AvailableQuantity
	}
	if u.Data.Price != nil {
		e.stock.Price = *u.Data.Price
	}
	if !u.Timestamp.IsZero() {
		e.stock.UpdatedAt = u.Timestamp
	}
	return e.stock
}

func (t *StockTable) Get(symbol string) (Stock, bool) {
	t.globalMu.RLock()
	e, ok := t.data[symbol]
	t.globalMu.RUnlock()
	if !ok {
		return Stock{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stock, true
}

// All returns every row sorted by symbol.
func (t *StockTable) All() []Stock {
	t.globalMu.RLock()
	out := make([]Stock, 0, len(t.data))
	for _, e := range t.data {
		e.mu.Lock()
		out = append(out, e.stock)
		e.mu.Unlock()
	}
	t.globalMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// CountAll returns the number of symbols held.
func (t *StockTable) CountAll() int {
	t.globalMu.RLock()
	defer t.globalMu.RUnlock()
	return len(t.data)
}

// StartWorker upserts every stock received on ch. The returned channel is
// closed once ch is drained.
func (t *StockTable) StartWorker(ch <-chan Stock) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for s := range ch {
			t.Upsert(s)
		}
	}()
	return done
}
