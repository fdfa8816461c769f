package memorystore

// StockUpdateStore retains the most recent MaxStockUpdates pushes.
type StockUpdateStore struct {
	ring *Ring[StockUpdate]
}

func NewStockUpdateStore() *StockUpdateStore {
	return &StockUpdateStore{ring: NewRing[StockUpdate](MaxStockUpdates)}
}

func (s *StockUpdateStore) Add(u StockUpdate) { s.ring.Push(u) }

func (s *StockUpdateStore) All() []StockUpdate { return s.ring.Snapshot() }

// BySymbol returns retained updates for one symbol, newest first.
func (s *StockUpdateStore) BySymbol(symbol string) []StockUpdate {
	var out []StockUpdate
	for _, u := range s.ring.Snapshot() {
		if u.Data.Symbol == symbol {
			out = append(out, u)
		}
	}
	return out
}

func (s *StockUpdateStore) Len() int { return s.ring.Len() }
