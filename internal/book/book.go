// Package book implements the per-ticker price-time priority order book:
// a btree of price levels on each side, each level a FIFO queue of
// resting orders. A fully filled order at the front of its level is
// removed through Settled; any other dead order is left in its level's
// queue until BestBid/BestAsk lazily discard it off the front the next
// time that side is read.
package book

import (
	"time"

	"github.com/tidwall/btree"

	"aiverse/internal/common"
)

// Liveness reports whether a resting order is still eligible to trade:
// its status is PENDING/PARTIAL and, for a SELL, its owner still holds
// enough shares to cover it. Injected so the book doesn't need to know
// about agents or portfolios.
type Liveness func(o *common.Order) bool

// PriceLevel holds every order resting at one price, oldest first.
type PriceLevel struct {
	Price  float64
	Orders []*common.Order
}

type priceLevels = btree.BTreeG[*PriceLevel]

// Book is the order book for a single ticker.
type Book struct {
	Ticker string
	bids   *priceLevels // sorted highest price first
	asks   *priceLevels // sorted lowest price first
	alive  Liveness
}

// New creates an empty book for ticker. alive is consulted by
// BestBid/BestAsk to lazily discard orders that are no longer eligible.
func New(ticker string, alive Liveness) *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})
	return &Book{Ticker: ticker, bids: bids, asks: asks, alive: alive}
}

func (b *Book) levels(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// Add rests a PENDING LIMIT order on the book.
func (b *Book) Add(order *common.Order) {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	levels := b.levels(order.Side)
	level, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if ok {
		level.Orders = append(level.Orders, order)
		return
	}
	levels.Set(&PriceLevel{Price: order.Price, Orders: []*common.Order{order}})
}

// BestBid returns the highest resting bid still eligible to trade,
// discarding any dead entries at the front of the top level as it goes.
func (b *Book) BestBid() (*common.Order, bool) {
	return b.best(b.bids)
}

// BestAsk returns the lowest resting ask still eligible to trade.
func (b *Book) BestAsk() (*common.Order, bool) {
	return b.best(b.asks)
}

func (b *Book) best(levels *priceLevels) (*common.Order, bool) {
	for {
		level, ok := levels.MinMut()
		if !ok {
			return nil, false
		}
		for len(level.Orders) > 0 && !b.alive(level.Orders[0]) {
			level.Orders = level.Orders[1:]
		}
		if len(level.Orders) == 0 {
			levels.Delete(level)
			continue
		}
		return level.Orders[0], true
	}
}

// Settled removes order from the front of its price level once it has
// fully filled or otherwise left PENDING/PARTIAL, deleting the level if
// it's now empty. This is the only explicit removal path; everything
// else relies on the lazy reclamation in best().
func (b *Book) Settled(order *common.Order) {
	levels := b.levels(order.Side)
	level, ok := levels.GetMut(&PriceLevel{Price: order.Price})
	if !ok || len(level.Orders) == 0 {
		return
	}
	if level.Orders[0] == order {
		level.Orders = level.Orders[1:]
	}
	if len(level.Orders) == 0 {
		levels.Delete(level)
	}
}

// Spread returns the current best bid and ask prices, if both sides have
// a live order.
func (b *Book) Spread() (bid, ask float64, ok bool) {
	bb, bok := b.BestBid()
	ba, aok := b.BestAsk()
	if !bok || !aok {
		return 0, 0, false
	}
	return bb.Price, ba.Price, true
}

// Bids returns every resting price level on the buy side, highest first.
// Dead entries are not pruned by this call; use BestBid for a live view.
func (b *Book) Bids() []*PriceLevel {
	return b.bids.Items()
}

// Asks returns every resting price level on the sell side, lowest first.
func (b *Book) Asks() []*PriceLevel {
	return b.asks.Items()
}
