package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"crypto-trading-bot-go/internal/config"
	"crypto-trading-bot-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIServer provides a read-only HTTP interface for operators.
type APIServer struct {
	server    *http.Server
	db        *gorm.DB
	logger    *zap.Logger
	startTime time.Time
}

// NewAPIServer creates a new APIServer.
func NewAPIServer(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *APIServer {
	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Trading.ApiPort),
		Handler: mux,
	}

	s := &APIServer{
		server:    server,
		db:        db,
		logger:    logger.Named("api-server"),
		startTime: time.Now(),
	}
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/bots", s.botsHandler)

	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) botsHandler(w http.ResponseWriter, r *http.Request) {
	var bots []models.Bot
	if err := s.db.Preload("Market").Preload("Market.Base").Preload("Market.Quote").Find(&bots).Error; err != nil {
		s.logger.Error("Failed to list bots", zap.Error(err))
		http.Error(w, "Failed to list bots", http.StatusInternalServerError)
		return
	}

	type botStatus struct {
		ID            uint   `json:"id"`
		Market        string `json:"market"`
		TradeMode     string `json:"trade_mode"`
		Timeframe     string `json:"timeframe"`
		Active        bool   `json:"active"`
		Paused        bool   `json:"paused"`
		LastPriceTick string `json:"last_price_tick"`
	}

	statuses := make([]botStatus, 0, len(bots))
	for i := range bots {
		statuses = append(statuses, botStatus{
			ID:            bots[i].ID,
			Market:        bots[i].Market.Symbol(),
			TradeMode:     string(bots[i].TradeMode),
			Timeframe:     bots[i].Timeframe,
			Active:        bots[i].Active,
			Paused:        bots[i].Paused,
			LastPriceTick: bots[i].LastPriceTick.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		s.logger.Error("Failed to write bots response", zap.Error(err))
		http.Error(w, "Failed to encode bots", http.StatusInternalServerError)
	}
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
