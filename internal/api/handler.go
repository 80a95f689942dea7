package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trading-core/internal/balance"
	"trading-core/internal/events"
	"trading-core/internal/ledger"
	"trading-core/internal/notifier"
	"trading-core/internal/wallet"
	"trading-core/pkg/db"
)

// Server wires the internal RPC surface (spec.md's chat-command surface:
// createWallet/importWallet/exportKey/getBalance/getWalletAddress/
// getMetrics/getLeaderboard) around the event bus and core components.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	DB      *db.Database
	Queries *db.UserQueries

	Wallets  *wallet.Store
	Balances *balance.Oracle
	Ledger   *ledger.Ledger
	Sockets  *notifier.WebSocketSink

	MinTradingBalance uint64
	JWTSecret         string
}

// NewServer builds the Server and registers every route.
func NewServer(bus *events.Bus, database *db.Database, queries *db.UserQueries, wallets *wallet.Store, balances *balance.Oracle, led *ledger.Ledger, sockets *notifier.WebSocketSink, minTradingBalance uint64, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                      // panic recovery (first)
	r.Use(RequestIDMiddleware())                // request ID tracking
	r.Use(RequestLogger())                      // request logging (after ID is set)
	r.Use(RateLimitMiddleware())                // per-IP rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second))  // request timeout
	r.Use(CORSMiddleware())                     // CORS (last before routes)

	s := &Server{
		Router:            r,
		Bus:               bus,
		DB:                database,
		Queries:           queries,
		Wallets:           wallets,
		Balances:          balances,
		Ledger:            led,
		Sockets:           sockets,
		MinTradingBalance: minTradingBalance,
		JWTSecret:         jwtSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		api.GET("/leaderboard", s.getLeaderboard)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/wallet", s.createWallet)
			protected.POST("/wallet/import", s.importWallet)
			protected.POST("/wallet/export", s.exportKey)
			protected.GET("/wallet/address", s.getWalletAddress)
			protected.GET("/balance", s.getBalance)
			protected.GET("/metrics", s.getMetrics)
			protected.PUT("/preferences", s.updatePreferences)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start runs the HTTP server on addr, blocking until it exits.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
