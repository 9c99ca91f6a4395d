// Package api exposes World over HTTP: JSON request/response handlers
// for agents, companies, orders, market data and trades, a WebSocket
// event feed, and a Prometheus metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"aiverse/internal/common"
	"aiverse/internal/exchange"
	"aiverse/internal/world"
)

// Server is the HTTP front end for a World.
type Server struct {
	listenAddr string
	world      *world.World
	hub        *hub
	metrics    *metrics
	http       *http.Server
}

func NewServer(listenAddr string, w *world.World) *Server {
	s := &Server{
		listenAddr: listenAddr,
		world:      w,
		hub:        newHub(),
		metrics:    newMetrics(),
	}
	w.Subscribe(s.hub.onEvent)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /state", s.withLatency("/state", s.handleState))
	mux.HandleFunc("GET /news", s.withLatency("/news", s.handleNews))
	mux.HandleFunc("POST /agents/join", s.withLatency("/agents/join", s.handleJoin))
	mux.HandleFunc("GET /agents/{id}", s.withLatency("/agents/{id}", s.handleGetAgent))
	mux.HandleFunc("GET /agents", s.withLatency("/agents", s.handleListAgents))
	mux.HandleFunc("GET /leaderboard", s.withLatency("/leaderboard", s.handleLeaderboard))
	mux.HandleFunc("POST /companies/create", s.withLatency("/companies/create", s.handleCreateCompany))
	mux.HandleFunc("POST /companies/{ticker}/ipo", s.withLatency("/companies/ipo", s.handleIPO))
	mux.HandleFunc("GET /companies", s.withLatency("/companies", s.handleListCompanies))
	mux.HandleFunc("GET /companies/{ticker}", s.withLatency("/companies/{ticker}", s.handleGetCompany))
	mux.HandleFunc("POST /companies/{ticker}/use", s.withLatency("/companies/use", s.handleUseService))
	mux.HandleFunc("POST /orders", s.withLatency("/orders", s.handleSubmitOrder))
	mux.HandleFunc("GET /market/{ticker}", s.withLatency("/market/{ticker}", s.handleMarketData))
	mux.HandleFunc("GET /trades", s.withLatency("/trades", s.handleTrades))
	mux.HandleFunc("GET /ws", s.hub.serveWS)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{Addr: listenAddr, Handler: mux}
	return s
}

// Run starts the hub loop and blocks serving HTTP until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.run()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.listenAddr).Msg("api server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) withLatency(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.metrics.requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// === handlers ===

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.State())
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, s.world.NewsFeed(limit))
}

type joinRequest struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "agent_id and name are required")
		return
	}
	agent := s.world.Join(req.AgentID, req.Name)
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.world.Agent(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Agents())
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	ranks := s.world.Leaderboard(limit)

	type entry struct {
		Agent    *common.Agent `json:"agent"`
		NetWorth float64       `json:"net_worth"`
	}
	out := make([]entry, len(ranks))
	for i, rk := range ranks {
		out[i] = entry{Agent: rk.Agent, NetWorth: rk.NetWorth}
	}
	writeJSON(w, http.StatusOK, out)
}

type createCompanyRequest struct {
	FounderID   string  `json:"founder_id"`
	Ticker      string  `json:"ticker"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ServiceType string  `json:"service_type"`
	ServiceCost float64 `json:"service_cost"`
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req createCompanyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	company, err := s.world.CreateCompany(req.FounderID, req.Ticker, req.Name, req.Description, req.ServiceType, req.ServiceCost)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, company)
}

type ipoRequest struct {
	Ticker string  `json:"ticker"`
	Shares float64 `json:"shares"`
	Price  float64 `json:"price"`
}

func (s *Server) handleIPO(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	var req ipoRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Ticker == "" {
		req.Ticker = ticker
	}

	_, err := s.world.LaunchIPO(req.Ticker, req.Shares, req.Price)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ipo launched"})
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.world.Companies())
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, ok := s.world.Company(r.PathValue("ticker"))
	if !ok {
		writeError(w, http.StatusNotFound, "company not found")
		return
	}
	writeJSON(w, http.StatusOK, company)
}

type useServiceRequest struct {
	AgentID string `json:"agent_id"`
	Ticker  string `json:"ticker"`
}

func (s *Server) handleUseService(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	var req useServiceRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Ticker == "" {
		req.Ticker = ticker
	}

	usage, err := s.world.UseService(req.AgentID, req.Ticker)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "service used", "usage": usage})
}

type orderRequest struct {
	AgentID  string  `json:"agent_id"`
	Ticker   string  `json:"ticker"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid side: must be BUY or SELL")
		return
	}
	otype, ok := parseOrderType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid type: must be LIMIT or MARKET")
		return
	}

	order := &common.Order{
		AgentID:  req.AgentID,
		Ticker:   req.Ticker,
		Side:     side,
		Type:     otype,
		Price:    req.Price,
		Quantity: req.Quantity,
	}

	result := s.world.SubmitOrder(order)
	s.metrics.ordersSubmitted.WithLabelValues(side.String(), statusLabel(result)).Inc()
	if result == nil {
		writeError(w, http.StatusBadRequest, "order rejected")
		return
	}
	s.metrics.tradesExecuted.Add(result.FilledQuantity)

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":        result.ID,
		"status":          result.Status.String(),
		"filled_quantity": result.FilledQuantity,
		"filled_price":    result.FilledPrice,
	})
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	data, ok := s.world.MarketData(r.PathValue("ticker"))
	if !ok {
		writeError(w, http.StatusNotFound, "ticker not found")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, s.world.Trades(ticker, limit))
}

// === helpers ===

func statusLabel(o *common.Order) string {
	if o == nil {
		return "rejected"
	}
	return o.Status.String()
}

func statusFor(err error) int {
	switch err {
	case exchange.ErrAgentNotFound, exchange.ErrCompanyNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func parseSide(s string) (common.Side, bool) {
	switch s {
	case "BUY", "buy":
		return common.Buy, true
	case "SELL", "sell":
		return common.Sell, true
	default:
		return 0, false
	}
}

func parseOrderType(s string) (common.OrderType, bool) {
	switch s {
	case "LIMIT", "limit":
		return common.Limit, true
	case "MARKET", "market":
		return common.Market, true
	default:
		return 0, false
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
