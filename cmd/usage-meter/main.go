package main

import (
	"context"
	"errors"
	"flag"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/openwebui-monitor/server/internal/billing"
	"github.com/openwebui-monitor/server/internal/catalog"
	"github.com/openwebui-monitor/server/internal/config"
	"github.com/openwebui-monitor/server/internal/db"
	internalhttp "github.com/openwebui-monitor/server/internal/http"
	"github.com/openwebui-monitor/server/internal/logging"
	"github.com/openwebui-monitor/server/internal/pricing"
	"github.com/openwebui-monitor/server/internal/tokencount"
	"github.com/openwebui-monitor/server/internal/users"
	"github.com/openwebui-monitor/server/internal/util"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	migrateOnly := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Parse()

	cfg, errLoad := config.Load(config.ResolveConfigPath(*configPath))
	if errLoad != nil {
		log.WithError(errLoad).Fatal("load config failed")
	}
	logging.Setup(cfg.Log)
	log.WithFields(log.Fields{
		"api_key":      util.MaskSecret(cfg.Auth.APIKey),
		"access_token": util.MaskSecret(cfg.Auth.AccessToken),
	}).Info("credentials configured")

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		log.WithError(errOpen).Fatal("open database failed")
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		log.WithError(errMigrate).Fatal("migrate database failed")
	}
	if *migrateOnly {
		log.Info("migrations applied")
		return
	}

	counter, errCounter := tokencount.NewCounter()
	if errCounter != nil {
		log.WithError(errCounter).Fatal("load tokenizer failed")
	}

	resolver := pricing.NewResolver(conn, pricing.Defaults{
		InputPrice:  cfg.Billing.DefaultInputPrice,
		OutputPrice: cfg.Billing.DefaultOutputPrice,
		PerMsgPrice: cfg.Billing.DefaultPerMsgPrice,
	})
	ledger := billing.NewLedger(conn)
	orchestrator := billing.NewOrchestrator(resolver, counter, ledger)
	userStore := users.NewStore(conn, int64(math.Round(cfg.Billing.InitBalance*1_000_000)))
	catalogClient := catalog.NewClient(cfg.Upstream.Domain, cfg.Upstream.APIKey)

	gin.SetMode(gin.ReleaseMode)
	router := internalhttp.NewRouter(internalhttp.Deps{
		DB:           conn,
		Orchestrator: orchestrator,
		Resolver:     resolver,
		Users:        userStore,
		Catalog:      catalogClient,
		Auth:         cfg.Auth,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("usage meter listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.WithError(errServe).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("graceful shutdown failed")
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		_ = sqlDB.Close()
	}
}
