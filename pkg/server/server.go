package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ordkit/ordinals-x402/pkg/gate"
	"github.com/ordkit/ordinals-x402/pkg/logger"
	"github.com/ordkit/ordinals-x402/pkg/ordinals"
)

// Server is the priced Ordinals API.
type Server struct {
	cfg         *Config
	gate        *gate.Gate
	provider    ordinals.Provider
	broadcaster ordinals.Broadcaster
	log         logger.Logger
	registry    *prometheus.Registry
	engine      *gin.Engine
}

// New assembles the router. Free endpoints (health, network, stats,
// metrics) bypass the gate; everything under a priced route runs the full
// challenge/verify/settle flow.
func New(cfg *Config, g *gate.Gate, provider ordinals.Provider, broadcaster ordinals.Broadcaster, log logger.Logger, registry *prometheus.Registry) *Server {
	s := &Server{
		cfg:         cfg,
		gate:        g,
		provider:    provider,
		broadcaster: broadcaster,
		log:         log,
		registry:    registry,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.handleHealth)

	pricing := gate.PricingConfig{Network: cfg.Network, PayTo: cfg.PayTo}
	paid := func(path string) gin.HandlerFunc {
		rp := cfg.Routes[path]
		return gate.PaymentMiddleware(g, rp.Price, rp.Description, pricing)
	}

	v1 := engine.Group("/api/v1")
	v1.GET("/network", s.handleNetwork)
	v1.GET("/stats", s.handleStats)
	v1.POST("/inscriptions", paid("/api/v1/inscriptions"), s.handleCreateInscription)
	v1.GET("/address/:address", paid("/api/v1/address"), s.handleAddress)
	v1.GET("/tx/:txid", paid("/api/v1/tx"), s.handleTransaction)
	v1.GET("/fees", paid("/api/v1/fees"), s.handleFees)

	if registry != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	s.engine = engine
	return s
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", map[string]any{"addr": s.cfg.ListenAddr, "network": s.cfg.Network})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "network": s.cfg.BitcoinNetwork})
}

func (s *Server) handleNetwork(c *gin.Context) {
	info, err := s.provider.NetworkInfo(c.Request.Context())
	if err != nil {
		s.fail(c, "network info lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.provider.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, "stats lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCreateInscription(c *gin.Context) {
	var req ordinals.InscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
		return
	}

	inscription, err := s.broadcaster.Inscribe(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "inscription rejected", "message": err.Error()})
		return
	}

	s.log.Info("inscription created", map[string]any{
		"inscription_id": inscription.ID,
		"content_type":   inscription.ContentType,
		"content_length": inscription.ContentLength,
	})
	c.JSON(http.StatusOK, inscription)
}

func (s *Server) handleAddress(c *gin.Context) {
	info, err := s.provider.AddressInfo(c.Request.Context(), c.Param("address"))
	if err != nil {
		if errors.Is(err, ordinals.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "address not found"})
			return
		}
		s.fail(c, "address lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleTransaction(c *gin.Context) {
	tx, err := s.provider.Transaction(c.Request.Context(), c.Param("txid"))
	if err != nil {
		if errors.Is(err, ordinals.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		s.fail(c, "transaction lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (s *Server) handleFees(c *gin.Context) {
	fees, err := s.provider.FeeEstimates(c.Request.Context())
	if err != nil {
		// The fee endpoint stays useful when the data provider is down.
		s.log.Warn("fee estimate provider unavailable, serving static rates", map[string]any{"error": err.Error()})
		static := ordinals.NewStaticProvider(s.cfg.BitcoinNetwork)
		fees, _ = static.FeeEstimates(c.Request.Context())
	}
	c.JSON(http.StatusOK, fees)
}

// fail maps an unexpected fault to a generic 500 with only a message field.
func (s *Server) fail(c *gin.Context, message string, err error) {
	s.log.Error(message, map[string]any{"error": err.Error(), "path": c.Request.URL.Path})
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}
