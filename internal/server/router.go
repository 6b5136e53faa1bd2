package server

import (
	"net/http"

	"auction-engine/internal/auth"
	"auction-engine/internal/metrics"
	handler "auction-engine/services/bidding/handler"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterConfig carries the dependencies of the HTTP API
type RouterConfig struct {
	Manager   handler.AuctionManager
	Engine    handler.BidEngine
	Live      handler.LiveFeed
	JWTSecret []byte

	// Metrics and Gatherer are optional; /metrics is only served when Gatherer is set
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// RateLimitRPS <= 0 disables rate limiting
	RateLimitRPS   float64
	RateLimitBurst int
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	if cfg.Metrics != nil {
		router.Use(MetricsMiddleware(cfg.Metrics))
	}

	helpers.UseJSONFieldNames()
	auctionHandler := handler.NewAuctionHandler(cfg.Manager, cfg.Engine, cfg.Live)

	router.GET("/healthz", func(c *gin.Context) {
		utils.JSONResponse(c, http.StatusOK, gin.H{"status": "ok"}, "healthy")
	})
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(cfg.Gatherer)))
	}

	var limit []gin.HandlerFunc
	if cfg.RateLimitRPS > 0 {
		limit = append(limit, RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	authed := append([]gin.HandlerFunc{auth.Middleware(cfg.JWTSecret)}, limit...)

	// reads are public
	public := router.Group("/auctions", limit...)
	{
		public.GET("", auctionHandler.ListAuctionsHandler)
		public.GET("/:auction_id", auctionHandler.GetAuctionHandler)
		public.GET("/:auction_id/bids", auctionHandler.GetBidsHandler)
		public.GET("/:auction_id/outcome", auctionHandler.GetOutcomeHandler)
		if cfg.Live != nil {
			public.GET("/:auction_id/live", auctionHandler.LiveHandler)
		}
	}

	private := router.Group("/auctions", authed...)
	{
		private.POST("", auctionHandler.CreateAuctionHandler)
		private.PUT("/:auction_id", auctionHandler.UpdateAuctionHandler)
		private.DELETE("/:auction_id", auctionHandler.DeleteAuctionHandler)
		private.POST("/:auction_id/bid", auctionHandler.PlaceBidHandler)
		private.POST("/:auction_id/close", auctionHandler.CloseAuctionHandler)
		private.POST("/:auction_id/cancel", auctionHandler.CancelAuctionHandler)
	}

	return router
}
