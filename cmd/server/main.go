package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	grpchealth "github.com/dtroode/audience-server/internal/api/grpc/health"
	grpcRouter "github.com/dtroode/audience-server/internal/api/grpc/router"
	grpcServer "github.com/dtroode/audience-server/internal/api/grpc/server"
	httpctx "github.com/dtroode/audience-server/internal/api/http/context"
	"github.com/dtroode/audience-server/internal/api/http/handler"
	httpRouter "github.com/dtroode/audience-server/internal/api/http/router"
	httpServer "github.com/dtroode/audience-server/internal/api/http/server"
	"github.com/dtroode/audience-server/internal/app"
	"github.com/dtroode/audience-server/internal/config"
	"github.com/dtroode/audience-server/internal/logger"
	"github.com/dtroode/audience-server/internal/model"
	"github.com/dtroode/audience-server/internal/server"
	"github.com/dtroode/audience-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	logAppVersion()

	stores, err := app.OpenStores(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize store", "error", err, "driver", cfg.Database.Driver)
	}
	defer stores.Close()

	objects, err := app.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialize object storage", "error", err)
	}

	services, err := app.NewServices(cfg, stores, objects, logger)
	if err != nil {
		logger.Fatal("failed to initialize services", "error", err)
	}

	if cfg.LogLevel > int(slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}

	tokenManager := token.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL)
	ctxMgr := httpctx.NewManager()

	h := handler.New(services.Ingest, services.Query, services.Bulk, stores.Profiles, ctxMgr, logger, cfg.HTTP.MaxUploadBytes)
	engine := httpRouter.New(h, tokenManager, ctxMgr, logger, cfg.HTTP.AuthEnabled).Register()
	apiServer := httpServer.NewHTTPServer(engine, fmt.Sprintf(":%s", cfg.HTTP.Port))

	healthServer := health.NewServer()
	checker := grpchealth.NewChecker(stores.Profiles, healthServer, cfg.GRPC.HealthInterval, logger)
	healthGRPC := grpcServer.NewGRPCServer(grpcRouter.New(healthServer, logger).Register(), fmt.Sprintf(":%s", cfg.GRPC.Port))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return checker.Run(gctx)
	})
	serve(g, logger, apiServer, server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName))
	serve(g, logger, healthGRPC, server.NewSecurityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName))

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Shutdown)
		defer cancel()

		var errs []error
		for _, s := range []model.Server{apiServer, healthGRPC} {
			if err := s.Stop(shutdownCtx); err != nil {
				logger.Error("error during server shutdown", "error", err, "server", s.Name(), "address", s.Address())
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
	}
	logger.Info("shutdown complete")
}

// serve starts s in the group. A start failure cancels the group and so stops the other servers.
func serve(g *errgroup.Group, logger *logger.Logger, s model.Server, sl model.SecurityLayer) {
	g.Go(func() error {
		logger.Info("starting server", "server", s.Name(), "address", s.Address())
		if err := s.Start(sl); err != nil {
			return fmt.Errorf("%s server: %w", s.Name(), err)
		}
		return nil
	})
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
