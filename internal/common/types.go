package common

import (
	"fmt"
	"time"
)

// Agent is a participant holding a cash balance and a share portfolio.
// Portfolio never holds a zero-or-negative entry for a ticker; mutation
// always goes through CreditShares/DebitShares so that invariant can't be
// violated by a partial update.
type Agent struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Balance      float64            `json:"balance"`
	EscrowedCash float64            `json:"escrowed_cash"` // cash reserved against resting BUY limit orders
	Portfolio    map[string]float64 `json:"portfolio"`
	Reputation   float64            `json:"reputation"`
	TotalTrades  int                `json:"total_trades"`
	CreatedAt    time.Time          `json:"created_at"`
}

func NewAgent(id, name string, startingBalance float64) *Agent {
	return &Agent{
		ID:         id,
		Name:       name,
		Balance:    startingBalance,
		Portfolio:  make(map[string]float64),
		Reputation: 100,
		CreatedAt:  time.Now(),
	}
}

// NetWorth is cash plus portfolio marked at the supplied per-ticker
// prices (company.SharePrice, typically).
func (a *Agent) NetWorth(prices map[string]float64) float64 {
	worth := a.Balance
	for ticker, qty := range a.Portfolio {
		worth += qty * prices[ticker]
	}
	return worth
}

// CreditShares adds qty shares of ticker to the portfolio.
func (a *Agent) CreditShares(ticker string, qty float64) {
	a.Portfolio[ticker] += qty
}

// DebitShares removes qty shares of ticker, deleting the entry once it
// drops to zero or below (the "no zero entries" invariant from the data
// model).
func (a *Agent) DebitShares(ticker string, qty float64) {
	remaining := a.Portfolio[ticker] - qty
	if remaining <= 0 {
		delete(a.Portfolio, ticker)
		return
	}
	a.Portfolio[ticker] = remaining
}

// Holdings returns the agent's quantity held of ticker (0 if none).
func (a *Agent) Holdings(ticker string) float64 {
	return a.Portfolio[ticker]
}

// AvailableBalance is cash not already escrowed against resting orders.
func (a *Agent) AvailableBalance() float64 {
	return a.Balance - a.EscrowedCash
}

// Company is an issuer with a fixed share supply and a priced service.
type Company struct {
	Ticker           string        `json:"ticker"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	FounderID        string        `json:"founder_id"`
	Status           CompanyStatus `json:"status"`
	TotalShares      float64       `json:"total_shares"`
	PublicShares     float64       `json:"public_shares"`
	SharePrice       float64       `json:"share_price"`
	ServiceType      string        `json:"service_type"`
	ServiceCost      float64       `json:"service_cost"`
	Revenue          float64       `json:"revenue"`
	TotalAPICalls    int           `json:"total_api_calls"`
	DailyActiveUsers int           `json:"daily_active_users"`
	CreatedAt        time.Time     `json:"created_at"`
}

const DefaultTotalShares = 1_000_000

func NewCompany(ticker, name, description, founderID, serviceType string, serviceCost float64) *Company {
	return &Company{
		Ticker:      ticker,
		Name:        name,
		Description: description,
		FounderID:   founderID,
		Status:      Private,
		TotalShares: DefaultTotalShares,
		SharePrice:  1.0,
		ServiceType: serviceType,
		ServiceCost: serviceCost,
		CreatedAt:   time.Now(),
	}
}

// MarketCap is always derived from TotalShares and SharePrice, never
// stored, so it cannot drift out of sync with either.
func (c *Company) MarketCap() float64 {
	return c.TotalShares * c.SharePrice
}

// Order is a resting or already-processed buy/sell instruction.
type Order struct {
	ID             string      `json:"id"`
	AgentID        string      `json:"agent_id"`
	Ticker         string      `json:"ticker"`
	Side           Side        `json:"side"`
	Type           OrderType   `json:"type"`
	Price          float64     `json:"price"`    // limit price; for MARKET, set to the effective price once resolved
	Quantity       float64     `json:"quantity"` // original requested quantity
	FilledQuantity float64     `json:"filled_quantity"`
	FilledPrice    float64     `json:"filled_price"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	FilledAt       time.Time   `json:"filled_at,omitempty"`
}

// Remaining is the quantity not yet filled.
func (o *Order) Remaining() float64 {
	return o.Quantity - o.FilledQuantity
}

func (o Order) String() string {
	return fmt.Sprintf("Order{%s %s %s %s qty=%.4f/%.4f @ %.4f status=%s}",
		o.ID, o.Side, o.Type, o.Ticker, o.FilledQuantity, o.Quantity, o.Price, o.Status)
}

// Trade is an immutable record of one execution between two orders.
type Trade struct {
	ID            string    `json:"id"`
	Ticker        string    `json:"ticker"`
	BuyerID       string    `json:"buyer_id"`
	SellerID      string    `json:"seller_id"`
	BuyerOrderID  string    `json:"buyer_order_id"`
	SellerOrderID string    `json:"seller_order_id"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	Timestamp     time.Time `json:"timestamp"`
}

func (t Trade) String() string {
	return fmt.Sprintf("Trade{%s %s qty=%.4f @ %.4f buyer=%s seller=%s}",
		t.ID, t.Ticker, t.Quantity, t.Price, t.BuyerID, t.SellerID)
}

// MarketData is a derived, point-in-time quote for a ticker.
type MarketData struct {
	Ticker    string  `json:"ticker"`
	LastPrice float64 `json:"last_price"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Volume24h float64 `json:"volume_24h"`
	High24h   float64 `json:"high_24h"`
	Low24h    float64 `json:"low_24h"`
	Change24h float64 `json:"change_24h"`
	MarketCap float64 `json:"market_cap"`
}

// ServiceUsage logs one agent's paid call against a company's service.
type ServiceUsage struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Ticker    string    `json:"ticker"`
	Cost      float64   `json:"cost"`
	Success   bool      `json:"success"`
}
