// Package exchange implements the AIVERSE matching engine: order
// admission, price-time matching against the order book, and settlement
// of the resulting trades against agent balances and portfolios.
package exchange

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"aiverse/internal/book"
	"aiverse/internal/common"
)

// Sentinel errors for the admission/creation failures the HTTP layer
// needs to distinguish. SubmitOrder itself still returns nil on
// rejection, reporting failure by returning nothing rather than an
// error; these are used by CreateCompany/IPO/UseService, which need to
// tell a caller why.
var (
	ErrTickerExists       = errors.New("ticker already exists")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrCompanyNotFound    = errors.New("company not found")
	ErrNotPrivate         = errors.New("company is not private")
	ErrInsufficientShares = errors.New("founder does not hold enough shares")
	ErrBankrupt           = errors.New("company is bankrupt")
)

const CreationCost = 10_000.0

type pricePoint struct {
	at    time.Time
	price float64
}

// Exchange owns every Agent, Company, order book, order and trade in the
// world. It holds no lock of its own; callers (internal/world) are
// expected to serialize access under a single exclusive world lock.
type Exchange struct {
	agents        map[string]*common.Agent
	companies     map[string]*common.Company
	books         map[string]*book.Book
	orders        map[string]*common.Order
	trades        []*common.Trade
	pendingTrades []*common.Trade
	priceHistory  map[string][]pricePoint
}

func New() *Exchange {
	return &Exchange{
		agents:       make(map[string]*common.Agent),
		companies:    make(map[string]*common.Company),
		books:        make(map[string]*book.Book),
		orders:       make(map[string]*common.Order),
		priceHistory: make(map[string][]pricePoint),
	}
}

// === Agents ===

// RegisterAgent creates a new Agent, or returns the existing one if id
// was already registered (join is idempotent).
func (e *Exchange) RegisterAgent(id, name string, startingBalance float64) *common.Agent {
	if existing, ok := e.agents[id]; ok {
		return existing
	}
	agent := common.NewAgent(id, name, startingBalance)
	e.agents[id] = agent
	return agent
}

func (e *Exchange) Agent(id string) (*common.Agent, bool) {
	a, ok := e.agents[id]
	return a, ok
}

// Agents returns every registered agent in unspecified order.
func (e *Exchange) Agents() []*common.Agent {
	out := make([]*common.Agent, 0, len(e.agents))
	for _, a := range e.agents {
		out = append(out, a)
	}
	return out
}

// GrantDailyIncome credits amount to every registered agent (daily cycle
// step 1).
func (e *Exchange) GrantDailyIncome(amount float64) {
	for _, a := range e.agents {
		a.Balance += amount
	}
}

// === Companies ===

func (e *Exchange) Company(ticker string) (*common.Company, bool) {
	c, ok := e.companies[ticker]
	return c, ok
}

// Companies returns every company in unspecified order.
func (e *Exchange) Companies() []*common.Company {
	out := make([]*common.Company, 0, len(e.companies))
	for _, c := range e.companies {
		out = append(out, c)
	}
	return out
}

// CreateCompany charges the founder CreationCost, hands them every
// outstanding share, and allocates an empty order book for the ticker.
func (e *Exchange) CreateCompany(founderID, ticker, name, description, serviceType string, serviceCost float64) (*common.Company, error) {
	founder, ok := e.agents[founderID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	if founder.AvailableBalance() < CreationCost {
		return nil, ErrInsufficientFunds
	}
	if _, exists := e.companies[ticker]; exists {
		return nil, ErrTickerExists
	}

	founder.Balance -= CreationCost

	company := common.NewCompany(ticker, name, description, founderID, serviceType, serviceCost)
	e.companies[ticker] = company
	e.books[ticker] = book.New(ticker, e.livenessFor(ticker))
	founder.CreditShares(ticker, company.TotalShares)

	return company, nil
}

// LaunchIPO transitions a PRIVATE company straight to PUBLIC, posting a
// SELL LIMIT order for shares on the founder's behalf.
func (e *Exchange) LaunchIPO(ticker string, shares, price float64) (*common.Company, error) {
	company, ok := e.companies[ticker]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	if company.Status != common.Private {
		return nil, ErrNotPrivate
	}
	founder, ok := e.agents[company.FounderID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	if founder.Holdings(ticker) < shares {
		return nil, ErrInsufficientShares
	}

	company.Status = common.IPO
	company.SharePrice = price
	company.PublicShares = shares

	ipoOrder := &common.Order{
		ID:        uuid.NewString(),
		AgentID:   founder.ID,
		Ticker:    ticker,
		Side:      common.Sell,
		Type:      common.Limit,
		Price:     price,
		Quantity:  shares,
		Status:    common.Pending,
		CreatedAt: time.Now(),
	}
	e.SubmitOrder(ipoOrder)
	company.Status = common.Public

	return company, nil
}

// === Service usage ===

// UseService debits service_cost from the agent and credits the
// company's revenue and call count.
func (e *Exchange) UseService(agentID, ticker string) (*common.ServiceUsage, error) {
	agent, ok := e.agents[agentID]
	if !ok {
		return nil, ErrAgentNotFound
	}
	company, ok := e.companies[ticker]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	if company.Status == common.Bankrupt {
		return nil, ErrBankrupt
	}
	if agent.AvailableBalance() < company.ServiceCost {
		return nil, ErrInsufficientFunds
	}

	agent.Balance -= company.ServiceCost
	company.Revenue += company.ServiceCost
	company.TotalAPICalls++

	return &common.ServiceUsage{
		Timestamp: time.Now(),
		AgentID:   agentID,
		Ticker:    ticker,
		Cost:      company.ServiceCost,
		Success:   true,
	}, nil
}

// === Trading ===

// livenessFor returns the Liveness predicate a ticker's order book uses
// to lazily discard dead top-of-book entries: wrong status, or (for a
// resting SELL) an owner who no longer holds enough shares, e.g. wiped
// out by bankruptcy.
func (e *Exchange) livenessFor(ticker string) book.Liveness {
	return func(o *common.Order) bool {
		if o.Status != common.Pending && o.Status != common.Partial {
			return false
		}
		if o.Side == common.Sell {
			agent, ok := e.agents[o.AgentID]
			if !ok || agent.Holdings(o.Ticker) < o.Remaining() {
				return false
			}
		}
		return true
	}
}

// effectivePrice resolves the "current market price" used both for a
// MARKET order's execution price and for a BUY's solvency check when no
// limit price is given: the opposing book's best price if one rests,
// else the company's last share price.
func (e *Exchange) effectivePrice(ticker string, side common.Side) float64 {
	b := e.books[ticker]
	if side == common.Buy {
		if ask, ok := b.BestAsk(); ok {
			return ask.Price
		}
	} else {
		if bid, ok := b.BestBid(); ok {
			return bid.Price
		}
	}
	return e.companies[ticker].SharePrice
}

// SubmitOrder admits an incoming order: it resolves the agent and
// company, checks solvency or holdings, runs it through the matching
// loop, and rests whatever remains unfilled. Returns nil if the order is
// rejected outright (unknown agent/company, insufficient funds or
// holdings); admission failures are reported by returning nothing, never
// retried.
func (e *Exchange) SubmitOrder(order *common.Order) *common.Order {
	agent, ok := e.agents[order.AgentID]
	if !ok {
		return nil
	}
	if _, ok := e.companies[order.Ticker]; !ok {
		return nil
	}

	if order.Side == common.Buy {
		effective := order.Price
		if order.Type == common.Market {
			effective = e.effectivePrice(order.Ticker, common.Buy)
		}
		required := order.Quantity * effective
		if agent.AvailableBalance() < required {
			return nil
		}
	} else {
		if agent.Holdings(order.Ticker) < order.Quantity {
			return nil
		}
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.Status = common.Pending
	e.orders[order.ID] = order

	switch order.Type {
	case common.Market:
		order.Price = e.effectivePrice(order.Ticker, order.Side)
		e.match(order)
		if order.Status == common.Pending {
			order.Status = common.Cancelled
		}
	case common.Limit:
		e.match(order)
		if order.Status == common.Pending || order.Status == common.Partial {
			if order.Remaining() > 0 {
				e.reserve(agent, order)
				e.books[order.Ticker].Add(order)
			}
		}
	}

	return order
}

// reserve escrows the cash a resting BUY limit order would need to
// settle in full. Solvency is checked at admission against
// AvailableBalance, and the escrow is released as the order fills or is
// consumed.
func (e *Exchange) reserve(agent *common.Agent, order *common.Order) {
	if order.Side != common.Buy {
		return
	}
	agent.EscrowedCash += order.Remaining() * order.Price
}

// match runs the price-time matching loop for an incoming order against
// the opposite side of its ticker's book, settling trades as crosses are
// found.
func (e *Exchange) match(order *common.Order) {
	b := e.books[order.Ticker]

	for order.Remaining() > 0 {
		var counter *common.Order
		var ok bool
		if order.Side == common.Buy {
			counter, ok = b.BestAsk()
			if !ok || (order.Type == common.Limit && counter.Price > order.Price) {
				break
			}
		} else {
			counter, ok = b.BestBid()
			if !ok || (order.Type == common.Limit && counter.Price < order.Price) {
				break
			}
		}

		qty := min(order.Remaining(), counter.Remaining())
		price := counter.Price // maker price, standard price-time priority
		e.settle(order, counter, qty, price)

		if counter.Status == common.Filled || counter.Status == common.Cancelled {
			b.Settled(counter)
		}
	}

	if order.FilledQuantity >= order.Quantity {
		order.Status = common.Filled
		order.FilledAt = time.Now()
	} else if order.FilledQuantity > 0 {
		order.Status = common.Partial
	}
}

// settle executes one trade between two orders, atomically moving cash
// and shares, updating both orders, appending a Trade, and updating the
// company's last price and price history. Self-trades (same agent on
// both sides) are permitted and net to a no-op on balance/portfolio.
func (e *Exchange) settle(order1, order2 *common.Order, qty, price float64) {
	var buyerOrder, sellerOrder *common.Order
	if order1.Side == common.Buy {
		buyerOrder, sellerOrder = order1, order2
	} else {
		buyerOrder, sellerOrder = order2, order1
	}

	buyer := e.agents[buyerOrder.AgentID]
	seller := e.agents[sellerOrder.AgentID]
	ticker := order1.Ticker

	notional := qty * price

	buyer.Balance -= notional
	seller.Balance += notional
	buyer.CreditShares(ticker, qty)
	seller.DebitShares(ticker, qty)

	// Release the buyer's escrow for a resting buy order at the rate it
	// was reserved at (its own limit price == the trade price when it's
	// the maker). An incoming taker BUY was never escrowed.
	if wasMaker(buyerOrder, order1, order2) {
		buyer.EscrowedCash -= qty * buyerOrder.Price
		if buyer.EscrowedCash < 0 {
			buyer.EscrowedCash = 0
		}
	}

	buyerOrder.FilledQuantity += qty
	sellerOrder.FilledQuantity += qty
	buyerOrder.FilledPrice = price
	sellerOrder.FilledPrice = price

	now := time.Now()
	if buyerOrder.FilledQuantity >= buyerOrder.Quantity {
		buyerOrder.Status = common.Filled
		buyerOrder.FilledAt = now
	} else if buyerOrder.FilledQuantity > 0 {
		buyerOrder.Status = common.Partial
	}
	if sellerOrder.FilledQuantity >= sellerOrder.Quantity {
		sellerOrder.Status = common.Filled
		sellerOrder.FilledAt = now
	} else if sellerOrder.FilledQuantity > 0 {
		sellerOrder.Status = common.Partial
	}

	buyer.TotalTrades++
	seller.TotalTrades++

	trade := &common.Trade{
		ID:            uuid.NewString(),
		Ticker:        ticker,
		BuyerID:       buyer.ID,
		SellerID:      seller.ID,
		Quantity:      qty,
		Price:         price,
		Timestamp:     now,
		BuyerOrderID:  buyerOrder.ID,
		SellerOrderID: sellerOrder.ID,
	}
	e.trades = append(e.trades, trade)
	e.pendingTrades = append(e.pendingTrades, trade)

	company := e.companies[ticker]
	company.SharePrice = price
	e.priceHistory[ticker] = append(e.priceHistory[ticker], pricePoint{at: now, price: price})
}

// wasMaker reports whether order was already resting on the book before
// this match call (i.e. it is the counter-order, not the incoming one we
// were asked to match).
func wasMaker(order, incoming, counter *common.Order) bool {
	return order == counter && order != incoming
}

// DrainTrades returns and clears every trade settled since the last
// call, in execution order. World calls this once per externally
// visible operation to turn trades into WorldEvents.
func (e *Exchange) DrainTrades() []*common.Trade {
	pending := e.pendingTrades
	e.pendingTrades = nil
	return pending
}

// Trades returns up to limit most-recent trades for ticker (all tickers
// if ticker is empty), newest first.
func (e *Exchange) Trades(ticker string, limit int) []*common.Trade {
	var filtered []*common.Trade
	for i := len(e.trades) - 1; i >= 0; i-- {
		t := e.trades[i]
		if ticker != "" && t.Ticker != ticker {
			continue
		}
		filtered = append(filtered, t)
		if limit > 0 && len(filtered) >= limit {
			break
		}
	}
	return filtered
}

// === Market data ===

// MarketData computes the derived quote for ticker: last price, current
// bid/ask, and the trailing-24h high/low/change/volume window.
func (e *Exchange) MarketData(ticker string) (*common.MarketData, bool) {
	company, ok := e.companies[ticker]
	if !ok {
		return nil, false
	}

	b := e.books[ticker]
	var bid, ask float64
	if o, ok := b.BestBid(); ok {
		bid = o.Price
	}
	if o, ok := b.BestAsk(); ok {
		ask = o.Price
	}

	dayAgo := time.Now().Add(-24 * time.Hour)
	var high, low, first float64
	haveWindow := false
	for _, p := range e.priceHistory[ticker] {
		if p.at.Before(dayAgo) {
			continue
		}
		if !haveWindow {
			high, low, first = p.price, p.price, p.price
			haveWindow = true
			continue
		}
		if p.price > high {
			high = p.price
		}
		if p.price < low {
			low = p.price
		}
	}

	var change float64
	if haveWindow {
		if first != 0 {
			change = ((company.SharePrice - first) / first) * 100
		}
	} else {
		high, low = company.SharePrice, company.SharePrice
	}

	var volume float64
	for _, t := range e.trades {
		if t.Ticker == ticker && t.Timestamp.After(dayAgo) {
			volume += t.Quantity * t.Price
		}
	}

	return &common.MarketData{
		Ticker:    ticker,
		LastPrice: company.SharePrice,
		Bid:       bid,
		Ask:       ask,
		Volume24h: volume,
		High24h:   high,
		Low24h:    low,
		Change24h: change,
		MarketCap: company.MarketCap(),
	}, true
}

// AgentRank pairs an agent with its net worth for leaderboard sorting.
type AgentRank struct {
	Agent    *common.Agent
	NetWorth float64
}

// Leaderboard ranks agents by net worth, excluding any id in exclude,
// descending, truncated to limit (0 means unlimited).
func (e *Exchange) Leaderboard(limit int, exclude map[string]bool) []AgentRank {
	prices := make(map[string]float64, len(e.companies))
	for ticker, c := range e.companies {
		prices[ticker] = c.SharePrice
	}

	ranks := make([]AgentRank, 0, len(e.agents))
	for id, a := range e.agents {
		if exclude[id] {
			continue
		}
		ranks = append(ranks, AgentRank{Agent: a, NetWorth: a.NetWorth(prices)})
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].NetWorth > ranks[j].NetWorth })
	if limit > 0 && len(ranks) > limit {
		ranks = ranks[:limit]
	}
	return ranks
}

// === Bankruptcy (invoked by the world's daily cycle) ===

// Bankrupt marks a company BANKRUPT, zeroes its price, and strips the
// ticker from every agent's portfolio. Resting orders are not actively
// removed; they are lazily discarded the next time the book is read.
func (e *Exchange) Bankrupt(ticker string) {
	company, ok := e.companies[ticker]
	if !ok {
		return
	}
	company.Status = common.Bankrupt
	company.SharePrice = 0
	for _, agent := range e.agents {
		delete(agent.Portfolio, ticker)
	}
}

// DistributeDividend pays dividendPerShare to every holder of ticker and
// returns the total paid out.
func (e *Exchange) DistributeDividend(ticker string, dividendPerShare float64) float64 {
	var total float64
	for _, agent := range e.agents {
		shares := agent.Holdings(ticker)
		if shares <= 0 {
			continue
		}
		payout := shares * dividendPerShare
		agent.Balance += payout
		total += payout
	}
	return total
}
