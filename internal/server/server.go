// Package server exposes the trader's state over a read-only HTTP JSON
// API and streams executed trades over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"news-trader/internal/contracts"
	"news-trader/internal/domain"
	"news-trader/internal/observability"
	"news-trader/internal/storage"
	"news-trader/internal/watcher"
)

const defaultListLimit = 20

// Options configures a Server. Agent and Watcher are optional; endpoints
// that need a missing component report service unavailable.
type Options struct {
	ListenAddr      string
	Classifications storage.ClassificationStore
	Trades          storage.TradeStore
	Agent           *contracts.TradingAgent
	Watcher         *watcher.Watcher
	Logger          zerolog.Logger
}

// Server is the read-only HTTP surface over the trader's stores and
// contracts. Trade notifications arrive through OnTradeExecuted and fan
// out to WebSocket subscribers.
type Server struct {
	httpServer      *http.Server
	hub             *Hub
	classifications storage.ClassificationStore
	trades          storage.TradeStore
	agent           *contracts.TradingAgent
	watcher         *watcher.Watcher
	started         time.Time
	log             zerolog.Logger

	upgrader websocket.Upgrader
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Classifications == nil || opts.Trades == nil {
		return nil, errors.New("classification and trade stores are required")
	}

	s := &Server{
		hub:             NewHub(opts.Logger),
		classifications: opts.Classifications,
		trades:          opts.Trades,
		agent:           opts.Agent,
		watcher:         opts.Watcher,
		started:         time.Now(),
		log:             opts.Logger.With().Str("component", "http_server").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	s.httpServer = &http.Server{
		Addr:         opts.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return s, nil
}

// Handler returns the route table, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/classifications", s.handleClassifications)
	mux.HandleFunc("/trades", s.handleTrades)
	mux.HandleFunc("/portfolio", s.handlePortfolio)
	mux.HandleFunc("/ws/trades", s.handleTradeStream)
	return mux
}

// Start serves HTTP until Shutdown. Blocks.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and disconnects WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// SetWatcher attaches the watcher whose state /status reports. Called
// once during startup wiring, before any request is served.
func (s *Server) SetWatcher(w *watcher.Watcher) {
	s.watcher = w
}

// OnTradeExecuted streams an executed trade to WebSocket subscribers.
func (s *Server) OnTradeExecuted(trade *domain.TradeRecord) {
	s.hub.Broadcast(tradeJSON(trade))
}

type statusResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	WatcherState   string `json:"watcher_state,omitempty"`
	HighWaterBlock int64  `json:"high_water_block,omitempty"`
	StreamClients  int    `json:"stream_clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:        "running",
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		StreamClients: s.hub.ClientCount(),
	}
	if s.watcher != nil {
		resp.WatcherState = s.watcher.State()
		resp.HighWaterBlock = s.watcher.HighWater()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClassifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.classifications.GetRecent(r.Context(), listLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, c := range list {
		out = append(out, classificationJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	list, err := s.trades.GetRecent(r.Context(), listLimit(r))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, t := range list {
		out = append(out, tradeJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("agent binding not configured"))
		return
	}

	portfolio, err := s.agent.GetPortfolio(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	value, err := s.agent.GetPortfolioValue(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"asset_balance":  portfolio.AssetBalance.String(),
		"stable_balance": portfolio.StableBalance.String(),
		"total_value":    value.String(),
	})
}

func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.add(conn)
	s.hub.readLoop(conn)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error().Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func listLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			return limit
		}
	}
	return defaultListLimit
}

func classificationJSON(c *domain.Classification) map[string]any {
	return map[string]any{
		"id":              c.ID,
		"headline":        c.Headline,
		"sentiment":       c.Sentiment.String(),
		"confidence":      c.Confidence,
		"proof_ref":       c.ProofRef,
		"timestamp":       c.Timestamp,
		"source_agent_id": c.SourceAgentID,
		"block_number":    c.BlockNumber,
		"tx_hash":         c.TxHash,
	}
}

func tradeJSON(t *domain.TradeRecord) map[string]any {
	out := map[string]any{
		"classification_id":      t.ClassificationID,
		"action":                 t.Action,
		"timestamp":              t.Timestamp,
		"portfolio_value_before": t.PortfolioValueBefore.String(),
		"portfolio_value_after":  t.PortfolioValueAfter.String(),
		"is_profitable":          t.IsProfitable,
		"has_been_evaluated":     t.HasBeenEvaluated,
		"tx_hash":                t.TxHash,
	}
	if t.TokenIn != "" {
		out["token_in"] = t.TokenIn
		out["token_out"] = t.TokenOut
	}
	if t.AmountIn != nil {
		out["amount_in"] = t.AmountIn.String()
	}
	if t.AmountOut != nil {
		out["amount_out"] = t.AmountOut.String()
	}
	return out
}
