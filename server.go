package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-utility/config"
	"go-utility/logging"
	"go-utility/metrics"
)

// NewEngine builds the router with middleware and every API route.
func NewEngine(cfg *config.Config, log *zap.Logger, m *metrics.Metrics, h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(log.Named("access")))
	r.Use(m.GinMiddleware())
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.Server.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/health", h.health)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Auth.LoginRatePerSecond), cfg.Auth.LoginBurst)

	api := r.Group("/api")
	api.POST("/customers", h.registerCustomer)
	api.POST("/login", loginLimit(limiter, m, "customer"), h.login)
	api.POST("/admin/login", loginLimit(limiter, m, "admin"), h.adminLogin)
	api.GET("/services", h.listServices)
	api.GET("/services/:type", h.getService)

	authed := api.Group("", h.requireSession())
	authed.POST("/logout", h.logout)

	customer := authed.Group("/customers/:username", h.requireOwner())
	customer.GET("", h.getCustomer)
	customer.GET("/bills", h.listBills)
	customer.POST("/bills", h.addBill)
	customer.PUT("/bills/:billId", h.editBill)
	customer.DELETE("/bills/:billId", h.deleteBill)

	admin := authed.Group("/admin", h.requireAdmin())
	admin.PUT("/services/:type", h.updateService)
	admin.GET("/bills", h.viewBills)
	admin.GET("/bills/total", h.billTotals)
	admin.PUT("/bills/:billId/price", h.overridePrice)
	admin.GET("/customers", h.listCustomers)
	admin.DELETE("/customers/:username", h.removeCustomer)

	return r
}

func loginLimit(limiter *rate.Limiter, m *metrics.Metrics, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			m.Login(role, metrics.LoginLimited)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts. Please try again later."})
			return
		}
		c.Next()
	}
}

func runHTTP(lc fx.Lifecycle, cfg *config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("HTTP server starting", zap.String("address", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			log.Info("Shutting down HTTP server")
			return srv.Shutdown(shutdownCtx)
		},
	})
}
