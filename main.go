package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"golang.org/x/sync/errgroup"

	"github.com/llmgateway/llmgateway/catalog"
	"github.com/llmgateway/llmgateway/common/client"
	"github.com/llmgateway/llmgateway/common/config"
	"github.com/llmgateway/llmgateway/common/logger"
	"github.com/llmgateway/llmgateway/common/rdb"
	"github.com/llmgateway/llmgateway/common/telemetry"
	"github.com/llmgateway/llmgateway/model"
	"github.com/llmgateway/llmgateway/relay/controller"
	"github.com/llmgateway/llmgateway/router"
	"github.com/llmgateway/llmgateway/worker/credits"
	"github.com/llmgateway/llmgateway/worker/logconsumer"
	"github.com/llmgateway/llmgateway/worker/stats"
)

func main() {
	lg := logger.Logger
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path := os.Getenv("CATALOG_FILE"); path != "" {
		reg, err := catalog.LoadFile(path)
		if err != nil {
			lg.Fatal("load catalog", zap.String("path", path), zap.Error(err))
		}
		controller.SetRegistry(reg)
		lg.Info("loaded external catalog", zap.String("path", path))
	}

	if err := model.InitDB(); err != nil {
		lg.Fatal("init database", zap.Error(err))
	}
	defer func() {
		if err := model.CloseDB(); err != nil {
			lg.Error("close database", zap.Error(err))
		}
	}()

	if err := rdb.InitRedisClient(ctx); err != nil {
		lg.Fatal("init redis", zap.Error(err))
	}

	otelBundle, err := telemetry.InitOpenTelemetry(ctx)
	if err != nil {
		lg.Fatal("init opentelemetry", zap.Error(err))
	}
	if otelBundle != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelBundle.Shutdown(shutdownCtx); err != nil {
				lg.Error("shutdown opentelemetry", zap.Error(err))
			}
		}()
	}

	client.Init()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { logconsumer.Start(ctx); return nil })
	group.Go(func() error { credits.Start(ctx); return nil })
	group.Go(func() error { credits.StartAutoTopUp(ctx); return nil })
	group.Go(func() error { credits.StartRetentionCleanup(ctx); return nil })
	group.Go(func() error { stats.Start(ctx); return nil })

	if !config.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	router.SetRouter(engine)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	group.Go(func() error {
		lg.Info("gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		lg.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		lg.Fatal("gateway exited", zap.Error(err))
	}
	lg.Info("gateway stopped")
}
