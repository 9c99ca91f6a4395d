// Package world implements the AIVERSE world state machine: the agent
// and company lifecycle operations, the periodic daily cycle (income,
// dividends, bankruptcy), and the append-only event log. It owns the
// single Exchange aggregate and the exclusive lock that serializes every
// mutation against it, and emits WorldEvents only after releasing that
// lock so a slow subscriber never stalls the engine.
package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aiverse/internal/common"
	"aiverse/internal/config"
	"aiverse/internal/exchange"
)

const SystemAgentID = "system"

// seedCompany describes one of the bootstrap companies founded at cold
// start.
type seedCompany struct {
	ticker, name, description, serviceType string
	serviceCost                            float64
}

var seedCompanies = []seedCompany{
	{"CTX", "Context Corp", "Long-context inference as a service", "inference", 2.0},
	{"PROMPT", "PromptWorks", "Prompt engineering marketplace", "prompts", 0.5},
	{"FACT", "FactCheck Inc", "Real-time fact verification", "verification", 1.5},
	{"TOKEN", "TokenMint", "Tokenization and embeddings API", "embeddings", 0.75},
	{"MOOD", "MoodRing AI", "Sentiment analysis service", "sentiment", 0.25},
}

const ipoSharePercent = 0.30

// World owns the Exchange plus everything outside its pure matching
// concern: tick count, the event log, the service-usage audit trail, and
// the async event dispatcher.
type World struct {
	mu         sync.Mutex
	exch       *exchange.Exchange
	cfg        config.Config
	tickCount  int
	startTime  time.Time
	events     []common.WorldEvent
	serviceLog []common.ServiceUsage
	dispatch   *dispatcher
}

func New(cfg config.Config) *World {
	return &World{
		exch:      exchange.New(),
		cfg:       cfg,
		startTime: time.Now(),
		dispatch:  newDispatcher(),
	}
}

// Subscribe registers a Subscriber that receives every future WorldEvent,
// dispatched from a dedicated goroutine outside the world lock.
func (w *World) Subscribe(s Subscriber) {
	w.dispatch.subscribe(s)
}

// StartDispatch launches the async event dispatcher, supervised by a
// tomb tied to ctx; call once during process startup.
func (w *World) StartDispatch(ctx context.Context) {
	w.dispatch.Start(ctx)
}

// Exchange exposes the underlying matching engine for read-mostly
// queries (market data, order books) that don't need World-level
// wrapping. Callers must still treat it as guarded by World's lock for
// any mutation.
func (w *World) Exchange() *exchange.Exchange {
	return w.exch
}

// emit appends ev to the log under lock and queues it for async
// dispatch; the actual subscriber invocation happens after the caller
// releases w.mu, never while holding it.
func (w *World) emit(ev common.WorldEvent) {
	w.events = append(w.events, ev)
	w.dispatch.enqueue(ev)
}

// === Agent actions ===

// Join registers a new agent, idempotently: re-joining with the same id
// returns the existing Agent unchanged.
func (w *World) Join(agentID, name string) *common.Agent {
	w.mu.Lock()
	_, existed := w.exch.Agent(agentID)
	agent := w.exch.RegisterAgent(agentID, name, w.cfg.DailyIncome)
	if !existed {
		w.emit(common.WorldEvent{
			Timestamp: time.Now(),
			Type:      common.EventJoin,
			AgentID:   agentID,
			Data:      map[string]any{"name": name, "balance": agent.Balance},
			Message:   fmt.Sprintf("%s joined AIVERSE with %.2f₳", name, agent.Balance),
		})
	}
	w.mu.Unlock()
	return agent
}

// Agent looks up an agent by id.
func (w *World) Agent(id string) (*common.Agent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exch.Agent(id)
}

// Agents returns every non-system agent.
func (w *World) Agents() []*common.Agent {
	w.mu.Lock()
	defer w.mu.Unlock()
	all := w.exch.Agents()
	out := make([]*common.Agent, 0, len(all))
	for _, a := range all {
		if a.ID != SystemAgentID {
			out = append(out, a)
		}
	}
	return out
}

// UseService debits an agent for one call against a company's service.
func (w *World) UseService(agentID, ticker string) (*common.ServiceUsage, error) {
	ticker = normalizeTicker(ticker)
	w.mu.Lock()
	usage, err := w.exch.UseService(agentID, ticker)
	if err == nil {
		w.serviceLog = append(w.serviceLog, *usage)
	}
	w.mu.Unlock()
	return usage, err
}

// === Company lifecycle ===

// CreateCompany founds a new company, charging CreationCost to founderID.
func (w *World) CreateCompany(founderID, ticker, name, description, serviceType string, serviceCost float64) (*common.Company, error) {
	ticker = normalizeTicker(ticker)
	w.mu.Lock()
	company, err := w.exch.CreateCompany(founderID, ticker, name, description, serviceType, serviceCost)
	if err == nil {
		founder, _ := w.exch.Agent(founderID)
		w.emit(common.WorldEvent{
			Timestamp: time.Now(),
			Type:      common.EventCompanyCreated,
			Ticker:    ticker,
			AgentID:   founderID,
			Data:      map[string]any{"name": name, "service": serviceType},
			Message:   fmt.Sprintf("%s created %s ($%s)", founder.Name, name, ticker),
		})
	}
	w.mu.Unlock()
	return company, err
}

// LaunchIPO transitions a company from PRIVATE to PUBLIC.
func (w *World) LaunchIPO(ticker string, shares, price float64) (*common.Company, error) {
	ticker = normalizeTicker(ticker)
	w.mu.Lock()
	company, err := w.exch.LaunchIPO(ticker, shares, price)
	var trades []*common.Trade
	if err == nil {
		trades = w.exch.DrainTrades()
		w.emit(common.WorldEvent{
			Timestamp: time.Now(),
			Type:      common.EventIPO,
			Ticker:    ticker,
			AgentID:   company.FounderID,
			Data:      map[string]any{"shares": shares, "price": price},
			Message:   fmt.Sprintf("IPO: $%s - %.0f shares at %.2f₳", ticker, shares, price),
		})
	}
	w.mu.Unlock()
	w.emitTrades(trades)
	return company, err
}

// === Trading ===

// SubmitOrder submits order for matching; see exchange.Exchange.SubmitOrder
// for the admission contract. Returns nil on rejection.
func (w *World) SubmitOrder(order *common.Order) *common.Order {
	order.Ticker = normalizeTicker(order.Ticker)
	w.mu.Lock()
	result := w.exch.SubmitOrder(order)
	var trades []*common.Trade
	if result != nil {
		trades = w.exch.DrainTrades()
	}
	w.mu.Unlock()
	w.emitTrades(trades)
	return result
}

// emitTrades turns each settled trade into a "trade" WorldEvent, called
// after the world lock has been released.
func (w *World) emitTrades(trades []*common.Trade) {
	for _, t := range trades {
		w.mu.Lock()
		w.emit(common.WorldEvent{
			Timestamp: t.Timestamp,
			Type:      common.EventTrade,
			Ticker:    t.Ticker,
			Data: map[string]any{
				"quantity": t.Quantity,
				"price":    t.Price,
				"buyer":    t.BuyerID,
				"seller":   t.SellerID,
			},
			Message: fmt.Sprintf("Trade: %s %.4f @ %.4f", t.Ticker, t.Quantity, t.Price),
		})
		w.mu.Unlock()
	}
}

// MarketData returns the derived quote for ticker.
func (w *World) MarketData(ticker string) (*common.MarketData, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exch.MarketData(normalizeTicker(ticker))
}

// Trades returns recent trades for ticker (all tickers if empty).
func (w *World) Trades(ticker string, limit int) []*common.Trade {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ticker != "" {
		ticker = normalizeTicker(ticker)
	}
	return w.exch.Trades(ticker, limit)
}

// Companies returns every company.
func (w *World) Companies() []*common.Company {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exch.Companies()
}

// Company looks up a company by ticker.
func (w *World) Company(ticker string) (*common.Company, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exch.Company(normalizeTicker(ticker))
}

// Leaderboard ranks non-system agents by net worth.
func (w *World) Leaderboard(limit int) []exchange.AgentRank {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exch.Leaderboard(limit, map[string]bool{SystemAgentID: true})
}

// === World tick ===

// Tick advances the world by one unit, running the daily cycle every
// TicksPerDay ticks.
func (w *World) Tick() {
	w.mu.Lock()
	w.tickCount++
	runDaily := w.tickCount%w.cfg.TicksPerDay == 0
	w.mu.Unlock()

	if runDaily {
		w.dailyCycle()
	}
}

// dailyCycle grants income, distributes dividends, and detects
// bankruptcy, in that order.
func (w *World) dailyCycle() {
	w.mu.Lock()
	w.exch.GrantDailyIncome(w.cfg.DailyIncome)

	var dividendEvents []common.WorldEvent
	var bankruptcyEvents []common.WorldEvent

	for _, company := range w.exch.Companies() {
		if company.Status == common.Public && company.Revenue > 0 {
			totalDividend := company.Revenue * w.cfg.DividendRate
			perShare := totalDividend / company.TotalShares
			w.exch.DistributeDividend(company.Ticker, perShare)
			company.Revenue = 0
			dividendEvents = append(dividendEvents, common.WorldEvent{
				Timestamp: time.Now(),
				Type:      common.EventDividend,
				Ticker:    company.Ticker,
				Data:      map[string]any{"total": totalDividend, "per_share": perShare},
				Message:   fmt.Sprintf("Dividend $%s: %.4f₳/share", company.Ticker, perShare),
			})
		}

		// A company that has ever served a single API call is immortal
		// by this check. Known quirk, intentionally not fixed.
		if company.Status == common.Public && company.TotalAPICalls == 0 && company.SharePrice < 0.01 {
			w.exch.Bankrupt(company.Ticker)
			bankruptcyEvents = append(bankruptcyEvents, common.WorldEvent{
				Timestamp: time.Now(),
				Type:      common.EventBankruptcy,
				Ticker:    company.Ticker,
				Message:   fmt.Sprintf("BANKRUPTCY: $%s - %s", company.Ticker, company.Name),
			})
		}
	}

	for _, ev := range dividendEvents {
		w.emit(ev)
	}
	for _, ev := range bankruptcyEvents {
		w.emit(ev)
	}
	w.mu.Unlock()
}

// === Bootstrap ===

// Bootstrap creates the hidden "system" agent and founds/IPOs the seed
// companies at cold start.
func (w *World) Bootstrap() {
	w.Join(SystemAgentID, "AIVERSE System")

	w.mu.Lock()
	if agent, ok := w.exch.Agent(SystemAgentID); ok {
		agent.Balance = w.cfg.SystemStartingBalance
	}
	w.mu.Unlock()

	for _, sc := range seedCompanies {
		if _, err := w.CreateCompany(SystemAgentID, sc.ticker, sc.name, sc.description, sc.serviceType, sc.serviceCost); err != nil {
			continue
		}
		shares := float64(common.DefaultTotalShares) * ipoSharePercent
		price := sc.serviceCost * 10
		w.LaunchIPO(sc.ticker, shares, price)
	}
}

// === Info ===

// State is the world snapshot served at GET /state.
type State struct {
	Tick           int                `json:"tick"`
	UptimeHours    float64            `json:"uptime_hours"`
	TotalAgents    int                `json:"total_agents"`
	TotalCompanies int                `json:"total_companies"`
	TotalTrades    int                `json:"total_trades"`
	MarketCaps     map[string]float64 `json:"market_caps"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard"`
}

type LeaderboardEntry struct {
	Name     string  `json:"name"`
	NetWorth float64 `json:"net_worth"`
}

// State returns the world snapshot for GET /state.
func (w *World) State() State {
	w.mu.Lock()
	companies := w.exch.Companies()
	tradeCount := len(w.exch.Trades("", 0))
	agents := w.exch.Agents()
	rankings := w.exch.Leaderboard(5, map[string]bool{SystemAgentID: true})
	tick := w.tickCount
	uptime := time.Since(w.startTime).Hours()
	w.mu.Unlock()

	marketCaps := make(map[string]float64, len(companies))
	for _, c := range companies {
		marketCaps[c.Ticker] = c.MarketCap()
	}

	leaderboard := make([]LeaderboardEntry, 0, len(rankings))
	for _, r := range rankings {
		leaderboard = append(leaderboard, LeaderboardEntry{Name: r.Agent.Name, NetWorth: r.NetWorth})
	}

	nonSystemAgents := 0
	for _, a := range agents {
		if a.ID != SystemAgentID {
			nonSystemAgents++
		}
	}

	return State{
		Tick:           tick,
		UptimeHours:    uptime,
		TotalAgents:    nonSystemAgents,
		TotalCompanies: len(companies),
		TotalTrades:    tradeCount,
		MarketCaps:     marketCaps,
		Leaderboard:    leaderboard,
	}
}

// NewsFeed returns the latest limit events, newest first.
func (w *World) NewsFeed(limit int) []common.WorldEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := len(w.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]common.WorldEvent, limit)
	for i := 0; i < limit; i++ {
		out[i] = w.events[n-1-i]
	}
	return out
}

func normalizeTicker(ticker string) string {
	out := make([]byte, 0, len(ticker))
	for i := 0; i < len(ticker); i++ {
		c := ticker[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}
