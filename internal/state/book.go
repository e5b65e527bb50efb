package state

// PositionBook is the arena of all positions. Ids are sequential slot indexes
// into the global list; a side map keeps each trader's positions reachable
// without scanning.
type PositionBook struct {
	positions []*Position
	byTrader  map[string][]uint64
}

func NewPositionBook() *PositionBook {
	return &PositionBook{byTrader: make(map[string][]uint64)}
}

// Append assigns the next sequential id and files the position under its
// trader. The position is never reassigned afterwards.
func (b *PositionBook) Append(p *Position) uint64 {
	id := uint64(len(b.positions))
	p.ID = id
	b.positions = append(b.positions, p)
	b.byTrader[p.Trader] = append(b.byTrader[p.Trader], id)
	return id
}

func (b *PositionBook) Get(id uint64) (*Position, bool) {
	if id >= uint64(len(b.positions)) {
		return nil, false
	}
	return b.positions[id], true
}

func (b *PositionBook) TraderPositions(trader string) []*Position {
	ids := b.byTrader[trader]
	out := make([]*Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.positions[id])
	}
	return out
}

func (b *PositionBook) Len() int { return len(b.positions) }
