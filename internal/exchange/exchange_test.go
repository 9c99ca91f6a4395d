package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiverse/internal/book"
	"aiverse/internal/common"
)

func newOrder(agentID, ticker string, side common.Side, otype common.OrderType, price, qty float64) *common.Order {
	return &common.Order{
		AgentID:  agentID,
		Ticker:   ticker,
		Side:     side,
		Type:     otype,
		Price:    price,
		Quantity: qty,
	}
}

// seedTicker creates ticker owned entirely by seller, bypassing
// CreateCompany's founder-charge so tests can set up arbitrary starting
// balances.
func seedTicker(e *Exchange, ticker, seller string, totalShares float64) {
	company := common.NewCompany(ticker, ticker, "", seller, "svc", 1.0)
	company.TotalShares = totalShares
	company.Status = common.Public
	e.companies[ticker] = company
	e.books[ticker] = book.New(ticker, e.livenessFor(ticker))
	e.agents[seller].CreditShares(ticker, totalShares)
}

func TestSubmitOrder_SimpleCross(t *testing.T) {
	e := New()
	e.RegisterAgent("A", "Agent A", 10_000)
	e.RegisterAgent("B", "Agent B", 10_000)
	seedTicker(e, "XYZ", "B", 1000)

	e.SubmitOrder(newOrder("B", "XYZ", common.Sell, common.Limit, 5, 100))
	result := e.SubmitOrder(newOrder("A", "XYZ", common.Buy, common.Limit, 5, 100))

	require.NotNil(t, result)
	assert.Equal(t, common.Filled, result.Status)
	assert.Equal(t, 100.0, result.FilledQuantity)

	a, _ := e.Agent("A")
	b, _ := e.Agent("B")
	assert.Equal(t, 9_500.0, a.Balance)
	assert.Equal(t, 100.0, a.Holdings("XYZ"))
	assert.Equal(t, 10_500.0, b.Balance)
	assert.Equal(t, 900.0, b.Holdings("XYZ"))

	company, _ := e.Company("XYZ")
	assert.Equal(t, 5.0, company.SharePrice)

	md, ok := e.MarketData("XYZ")
	require.True(t, ok)
	assert.Equal(t, 5.0, md.LastPrice)
}

func TestSubmitOrder_PartialFillRestsWithEscrow(t *testing.T) {
	e := New()
	e.RegisterAgent("A", "Agent A", 10_000)
	e.RegisterAgent("B", "Agent B", 10_000)
	seedTicker(e, "XYZ", "B", 1000)

	e.SubmitOrder(newOrder("B", "XYZ", common.Sell, common.Limit, 10, 50))
	result := e.SubmitOrder(newOrder("A", "XYZ", common.Buy, common.Limit, 10, 100))

	require.NotNil(t, result)
	assert.Equal(t, common.Partial, result.Status)
	assert.Equal(t, 50.0, result.FilledQuantity)
	assert.Equal(t, 50.0, result.Remaining())

	bestBid, bok := e.books["XYZ"].BestBid()
	require.True(t, bok)
	assert.Equal(t, 10.0, bestBid.Price)

	a, _ := e.Agent("A")
	assert.Equal(t, 9_500.0, a.Balance, "500 paid for the 50 filled shares")
	// The unfilled remainder's cash is reserved against the resting bid
	// rather than left uncommitted.
	assert.Equal(t, 500.0, a.EscrowedCash, "50 remaining @ 10 reserved against the resting bid")
	assert.Equal(t, 9_000.0, a.AvailableBalance())
}

func TestSubmitOrder_PriceTimePriority(t *testing.T) {
	e := New()
	e.RegisterAgent("A", "Agent A", 10_000)
	e.RegisterAgent("B", "Agent B", 10_000)
	e.RegisterAgent("C", "Agent C", 10_000)
	seedTicker(e, "XYZ", "B", 1000)
	b, _ := e.Agent("B")
	b.DebitShares("XYZ", 10)
	e.agents["C"].CreditShares("XYZ", 10)

	e.SubmitOrder(newOrder("B", "XYZ", common.Sell, common.Limit, 6, 10))
	e.SubmitOrder(newOrder("C", "XYZ", common.Sell, common.Limit, 5, 10))

	result := e.SubmitOrder(newOrder("A", "XYZ", common.Buy, common.Limit, 7, 20))
	require.NotNil(t, result)
	assert.Equal(t, common.Filled, result.Status)

	trades := e.Trades("XYZ", 0)
	require.Len(t, trades, 2)
	// Trades() returns newest first; the better price (5, against C) must
	// have executed before the worse price (6, against B).
	assert.Equal(t, 6.0, trades[0].Price)
	assert.Equal(t, "B", trades[0].SellerID)
	assert.Equal(t, 5.0, trades[1].Price)
	assert.Equal(t, "C", trades[1].SellerID)
}

func TestSubmitOrder_MarketWithNoLiquidityCancels(t *testing.T) {
	e := New()
	e.RegisterAgent("A", "Agent A", 10_000)
	e.RegisterAgent("B", "Agent B", 10_000)
	seedTicker(e, "XYZ", "B", 1000)

	result := e.SubmitOrder(newOrder("A", "XYZ", common.Buy, common.Market, 0, 10))
	require.NotNil(t, result)
	assert.Equal(t, common.Cancelled, result.Status)
	assert.Equal(t, 0.0, result.FilledQuantity)

	a, _ := e.Agent("A")
	assert.Equal(t, 10_000.0, a.Balance)
}

func TestLaunchIPO(t *testing.T) {
	e := New()
	e.RegisterAgent("F", "Founder", 20_000)

	company, err := e.CreateCompany("F", "NEW", "New Co", "desc", "svc", 1.0)
	require.NoError(t, err)
	assert.Equal(t, common.Private, company.Status)

	founder, _ := e.Agent("F")
	assert.Equal(t, 1_000_000.0, founder.Holdings("NEW"))
	assert.Equal(t, 10_000.0, founder.Balance) // 20,000 - CreationCost

	company, err = e.LaunchIPO("NEW", 300_000, 10.0)
	require.NoError(t, err)
	assert.Equal(t, common.Public, company.Status)
	assert.Equal(t, 10.0, company.SharePrice)
	assert.Equal(t, 300_000.0, company.PublicShares)

	ask, ok := e.books["NEW"].BestAsk()
	require.True(t, ok)
	assert.Equal(t, 10.0, ask.Price)
	assert.Equal(t, 300_000.0, ask.Quantity)

	// Shares stay with the founder until the IPO ask actually fills.
	assert.Equal(t, 1_000_000.0, founder.Holdings("NEW"))
}

func TestDistributeDividend_ProRata(t *testing.T) {
	e := New()
	e.RegisterAgent("X", "Agent X", 0)
	e.RegisterAgent("Y", "Agent Y", 0)
	company := common.NewCompany("C", "Co", "", "F", "svc", 1.0)
	company.TotalShares = 1_000_000
	company.Status = common.Public
	company.Revenue = 1_000
	e.companies["C"] = company
	e.agents["X"].CreditShares("C", 100)
	e.agents["Y"].CreditShares("C", 900)

	dividendPerShare := (company.Revenue * 0.10) / company.TotalShares
	total := e.DistributeDividend("C", dividendPerShare)

	assert.InDelta(t, 0.0001, dividendPerShare, 1e-12)
	assert.InDelta(t, 0.1, total, 1e-9)

	x, _ := e.Agent("X")
	y, _ := e.Agent("Y")
	assert.InDelta(t, 0.01, x.Balance, 1e-9)
	assert.InDelta(t, 0.09, y.Balance, 1e-9)
}

func TestBankrupt_WipesPortfoliosAndZeroesPrice(t *testing.T) {
	e := New()
	e.RegisterAgent("A", "Agent A", 0)
	company := common.NewCompany("DEAD", "Dead Co", "", "F", "svc", 1.0)
	company.Status = common.Public
	company.SharePrice = 0.005
	e.companies["DEAD"] = company
	e.agents["A"].CreditShares("DEAD", 50)

	e.Bankrupt("DEAD")

	assert.Equal(t, common.Bankrupt, company.Status)
	assert.Equal(t, 0.0, company.SharePrice)
	a, _ := e.Agent("A")
	assert.Equal(t, 0.0, a.Holdings("DEAD"))
}

func TestRegisterAgent_IsIdempotent(t *testing.T) {
	e := New()
	first := e.RegisterAgent("A", "Agent A", 1_000)
	second := e.RegisterAgent("A", "Different Name", 9_999)
	assert.Same(t, first, second)
	assert.Equal(t, "Agent A", second.Name)
	assert.Equal(t, 1_000.0, second.Balance)
}

func TestSelfTrade_NetsToNoOpOnBalance(t *testing.T) {
	e := New()
	e.RegisterAgent("A", "Agent A", 10_000)
	seedTicker(e, "XYZ", "A", 1000)

	e.SubmitOrder(newOrder("A", "XYZ", common.Sell, common.Limit, 5, 10))
	result := e.SubmitOrder(newOrder("A", "XYZ", common.Buy, common.Limit, 5, 10))

	require.NotNil(t, result)
	assert.Equal(t, common.Filled, result.Status)

	a, _ := e.Agent("A")
	assert.Equal(t, 10_000.0, a.Balance)
	assert.Equal(t, 1000.0, a.Holdings("XYZ"))
}
