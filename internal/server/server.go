package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"homestay/internal/auth"
	"homestay/internal/booking"
	"homestay/internal/config"
	"homestay/internal/payment"
	"homestay/internal/wallet"
)

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	db         *sqlx.DB
	config     *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, wallets wallet.Service, bookings booking.Service, payments payment.Service) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())

	walletHandler := wallet.NewHandler(wallets)
	bookingHandler := booking.NewHandler(bookings, payments)
	paymentHandler := payment.NewHandler(payments)

	// Gateway callbacks are unauthenticated by nature; signature checks and
	// the idempotency guard gate them instead, plus a per-IP rate limit.
	callbacks := router.Group("/payments")
	callbacks.Use(RateLimitMiddleware(10, 30))
	{
		// MoMo posts JSON; VNPay delivers its IPN as a GET with query params.
		callbacks.POST("/:gateway/ipn", paymentHandler.IPN)
		callbacks.GET("/:gateway/ipn", paymentHandler.IPN)
		callbacks.GET("/:gateway/return", paymentHandler.Return)
	}

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/wallet", walletHandler.GetWallet)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)
		protected.POST("/wallet/deposit", paymentHandler.Deposit)
		protected.POST("/wallet/withdraw", paymentHandler.Withdraw)

		protected.POST("/bookings", bookingHandler.Create)
		protected.GET("/bookings", bookingHandler.List)
		protected.GET("/bookings/:id", bookingHandler.Get)
		protected.POST("/bookings/:id/pay", bookingHandler.PayWithWallet)
		protected.POST("/bookings/:id/pay/gateway", bookingHandler.PayWithGateway)
		protected.POST("/bookings/:id/refund", bookingHandler.RequestRefund)
	}

	admin := router.Group("/admin")
	admin.Use(authMiddleware, auth.RequireRole("admin"))
	{
		admin.GET("/transactions", walletHandler.AdminListTransactions)
		admin.POST("/wallets/:userID/lock", walletHandler.AdminLockWallet)
		admin.POST("/wallets/:userID/unlock", walletHandler.AdminUnlockWallet)
		admin.POST("/bookings/:id/refund", bookingHandler.AdminResolveRefund)
		admin.POST("/bookings/:id/settle", bookingHandler.AdminSettle)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.httpServer = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
