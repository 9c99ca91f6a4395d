package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiverse/internal/common"
	"aiverse/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.TicksPerDay = 3
	return cfg
}

func TestJoin_IsIdempotentAndEmitsOnlyOnce(t *testing.T) {
	w := New(testConfig())

	first := w.Join("A", "Agent A")
	second := w.Join("A", "Different Name")

	assert.Same(t, first, second)
	assert.Equal(t, "Agent A", second.Name)

	joinEvents := 0
	for _, ev := range w.NewsFeed(0) {
		if ev.Type == common.EventJoin {
			joinEvents++
		}
	}
	assert.Equal(t, 1, joinEvents)
}

func TestBootstrap_CreatesSystemAgentAndSeedCompanies(t *testing.T) {
	w := New(testConfig())
	w.Bootstrap()

	system, ok := w.Agent(SystemAgentID)
	require.True(t, ok)
	assert.Equal(t, w.cfg.SystemStartingBalance, system.Balance)

	companies := w.Companies()
	assert.Len(t, companies, len(seedCompanies))
	for _, c := range companies {
		assert.Equal(t, common.Public, c.Status)
		assert.Greater(t, c.SharePrice, 0.0)
	}

	// The system agent is hidden from both surfaces it's excluded from.
	for _, a := range w.Agents() {
		assert.NotEqual(t, SystemAgentID, a.ID)
	}
	for _, rank := range w.Leaderboard(100) {
		assert.NotEqual(t, SystemAgentID, rank.Agent.ID)
	}
}

func TestTick_RunsDailyCycleEveryTicksPerDay(t *testing.T) {
	cfg := testConfig()
	w := New(cfg)
	w.Join("A", "Agent A")

	agent, _ := w.Agent("A")
	startingBalance := agent.Balance

	w.Tick()
	w.Tick()
	assert.Equal(t, startingBalance, agent.Balance, "daily cycle should not have run yet")

	w.Tick()
	assert.Equal(t, startingBalance+cfg.DailyIncome, agent.Balance, "third tick should trigger the daily cycle")
}

func TestDailyCycle_BankruptsZeroCallPennyCompany(t *testing.T) {
	w := New(testConfig())
	founder := w.Join("F", "Founder")
	w.mu.Lock()
	founder.Balance = 20_000
	w.mu.Unlock()

	_, err := w.CreateCompany("F", "DOOMED", "Doomed Co", "", "svc", 1.0)
	require.NoError(t, err)

	_, err = w.LaunchIPO("DOOMED", 100, 10.0)
	require.NoError(t, err)

	company, _ := w.Company("DOOMED")
	// Force the condition without serving a single call: share_price
	// must fall under 0.01 while total_api_calls stays at zero.
	w.mu.Lock()
	company.SharePrice = 0.001
	w.mu.Unlock()

	w.dailyCycle()

	company, _ = w.Company("DOOMED")
	assert.Equal(t, common.Bankrupt, company.Status)
}

func TestSubmitOrder_EmitsTradeEvent(t *testing.T) {
	w := New(testConfig())
	w.Join("A", "Agent A")
	founderB := w.Join("B", "Agent B")
	w.mu.Lock()
	founderB.Balance = 20_000
	w.mu.Unlock()

	_, err := w.CreateCompany("B", "XYZ", "Xyz Co", "", "svc", 1.0)
	require.NoError(t, err)
	_, err = w.LaunchIPO("XYZ", 1000, 5.0)
	require.NoError(t, err)

	order := &common.Order{AgentID: "A", Ticker: "XYZ", Side: common.Buy, Type: common.Limit, Price: 5.0, Quantity: 100}
	result := w.SubmitOrder(order)
	require.NotNil(t, result)
	assert.Equal(t, common.Filled, result.Status)

	found := false
	for _, ev := range w.NewsFeed(0) {
		if ev.Type == common.EventTrade && ev.Ticker == "XYZ" {
			found = true
		}
	}
	assert.True(t, found, "a trade event should have been appended to the news feed")
}
