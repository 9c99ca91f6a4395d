package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"aiverse/internal/common"
)

// alwaysAlive treats every order as eligible; used by tests that only
// care about book structure, not liveness interaction with an exchange.
func alwaysAlive(*common.Order) bool { return true }

func newTestOrder(price float64, side common.Side, qty float64) *common.Order {
	return &common.Order{
		ID:       "test-id",
		Side:     side,
		Type:     common.Limit,
		Price:    price,
		Quantity: qty,
		Status:   common.Pending,
	}
}

func placeTestOrders(b *Book, price float64, side common.Side, quantities ...float64) {
	for _, qty := range quantities {
		b.Add(newTestOrder(price, side, qty))
	}
}

func buildExpectedLevel(price float64, side common.Side, quantities ...float64) *PriceLevel {
	orders := make([]*common.Order, len(quantities))
	for i, qty := range quantities {
		orders[i] = newTestOrder(price, side, qty)
	}
	return &PriceLevel{Price: price, Orders: orders}
}

// sanitize zeros out timestamps so strict struct equality holds.
func sanitize(levels []*PriceLevel) []*PriceLevel {
	for _, lvl := range levels {
		for _, o := range lvl.Orders {
			o.CreatedAt = time.Time{}
		}
	}
	return levels
}

func TestAdd_SortsLevelsByPricePriority(t *testing.T) {
	b := New("CTX", alwaysAlive)

	placeTestOrders(b, 99.0, common.Buy, 100, 90, 80)
	placeTestOrders(b, 98.0, common.Buy, 50)
	placeTestOrders(b, 100.0, common.Sell, 100, 90)
	placeTestOrders(b, 101.0, common.Sell, 20)

	expectedBids := []*PriceLevel{
		buildExpectedLevel(99.0, common.Buy, 100, 90, 80),
		buildExpectedLevel(98.0, common.Buy, 50),
	}
	expectedAsks := []*PriceLevel{
		buildExpectedLevel(100.0, common.Sell, 100, 90),
		buildExpectedLevel(101.0, common.Sell, 20),
	}

	assert.Equal(t, expectedBids, sanitize(b.Bids()), "bids should be sorted high -> low")
	assert.Equal(t, expectedAsks, sanitize(b.Asks()), "asks should be sorted low -> high")
}

func TestBestBid_DiscardsDeadOrdersOffTheFront(t *testing.T) {
	dead := map[*common.Order]bool{}
	alive := func(o *common.Order) bool { return !dead[o] }

	b := New("CTX", alive)

	o1 := newTestOrder(99.0, common.Buy, 10)
	o2 := newTestOrder(99.0, common.Buy, 20)
	b.Add(o1)
	b.Add(o2)

	dead[o1] = true

	best, ok := b.BestBid()
	assert.True(t, ok)
	assert.Same(t, o2, best)
}

func TestBestAsk_EmptyBookReturnsFalse(t *testing.T) {
	b := New("CTX", alwaysAlive)
	_, ok := b.BestAsk()
	assert.False(t, ok)
}

func TestSettled_RemovesOnlyFrontOfLevel(t *testing.T) {
	b := New("CTX", alwaysAlive)

	o1 := newTestOrder(99.0, common.Buy, 10)
	o2 := newTestOrder(99.0, common.Buy, 20)
	b.Add(o1)
	b.Add(o2)

	o1.Status = common.Filled
	b.Settled(o1)

	best, ok := b.BestBid()
	assert.True(t, ok)
	assert.Same(t, o2, best)

	o2.Status = common.Filled
	b.Settled(o2)

	_, ok = b.BestBid()
	assert.False(t, ok)
}

func TestSpread_RequiresBothSidesLive(t *testing.T) {
	b := New("CTX", alwaysAlive)
	_, _, ok := b.Spread()
	assert.False(t, ok)

	b.Add(newTestOrder(99.0, common.Buy, 10))
	_, _, ok = b.Spread()
	assert.False(t, ok)

	b.Add(newTestOrder(101.0, common.Sell, 10))
	bid, ask, ok := b.Spread()
	assert.True(t, ok)
	assert.Equal(t, 99.0, bid)
	assert.Equal(t, 101.0, ask)
}
