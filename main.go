package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"go-utility/auth"
	"go-utility/config"
	"go-utility/controller"
	"go-utility/logging"
	"go-utility/metrics"
	"go-utility/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs", "Path to the configuration directory")
	flag.Parse()

	fx.New(appOptions(configPath)).Run()
}

func appOptions(configPath string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (*config.Config, error) { return config.LoadConfig(configPath) },
			newLogger,
			newStore,
			func(cfg *config.Config) *auth.Manager { return auth.NewManager(cfg.Auth.TokenTTL) },
			metrics.New,
			func(st *store.Store, log *zap.Logger) *controller.CustomerController {
				return controller.NewCustomerController(st, log)
			},
			controller.NewServiceController,
			controller.NewStaffController,
			NewHandlers,
			NewEngine,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(runHTTP),
	)
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

// newStore opens the configured backend and loads the saved state.
func newStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	rates, err := cfg.ServiceRates()
	if err != nil {
		return nil, err
	}
	repo, err := store.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	st, err := store.New(repo, rates, log)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			st.Load(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := st.Save(ctx); err != nil {
				log.Error("Failed to flush state on shutdown", zap.Error(err))
			}
			return st.Close()
		},
	})
	log.Info("Storage opened", zap.String("driver", cfg.Storage.Driver))
	return st, nil
}
