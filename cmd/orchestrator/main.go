package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"zkpay/internal/client/ledger"
	"zkpay/internal/config"
	cronrunner "zkpay/internal/cron"
	"zkpay/internal/db"
	"zkpay/internal/handler"
	"zkpay/internal/logger"
	"zkpay/internal/paas"
	"zkpay/internal/repository"
	gormrepository "zkpay/internal/repository/gorm"
	"zkpay/internal/service"
	"zkpay/internal/trade"

	_ "zkpay/docs"
)

func main() {
	cfgPath := os.Getenv("ZKP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("ZKP_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	var (
		journalRepo repository.JournalRepository = repository.Nop{}
		dbConn      *db.DB
	)
	if cfg.Journal.Enabled {
		dbConn, err = db.Open(cfg.DB)
		if err != nil {
			log.Fatal("db open failed", zap.Error(err))
		}
		defer func() { _ = db.Close(dbConn) }()
		if err := db.Ping(dbConn); err != nil {
			log.Fatal("db ping failed", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			log.Fatal("auto-migrate failed", zap.Error(err))
		}
		journalRepo = gormrepository.New(dbConn.Gorm)
	} else {
		log.Info("journal disabled, running without a database")
	}

	ledgerClient := ledger.NewClient(cfg.Ledger.BaseURL, ledger.Options{
		Timeout:      cfg.Ledger.Timeout,
		ProofTimeout: cfg.Ledger.ProofTimeout,
		RatePerSec:   cfg.Ledger.RatePerSec,
		Burst:        cfg.Ledger.Burst,
	})
	paasClient := initPaaSClient(cfg.PaaS, log)

	journalSvc := &service.JournalService{
		Repo:   journalRepo,
		PaaS:   paasClient,
		Logger: logger.Component(log, "journal"),
	}
	journalWorker := service.NewJournalWorker(journalSvc, cfg.Journal.Buffer, logger.Component(log, "journal"))
	coordinator := &service.Coordinator{
		Ledger:  ledgerClient,
		Journal: journalWorker,
		Config:  cfg.Orchestrator,
		Gate: trade.Gate{
			MaxBytes:     cfg.Receipt.MaxBytes,
			AllowedTypes: cfg.Receipt.AllowedTypes,
		},
		Logger: logger.Component(log, "coordinator"),
		OnComplete: func(sessionID string, statuses map[string]trade.Status) {
			log.Info("session complete", zap.String("session_id", sessionID), zap.Int("trades", len(statuses)))
		},
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.MaxMultipartMemory = cfg.Receipt.MaxBytes + 1<<20
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(paas.RequireBearerMiddleware(paas.AuthOptions{
		Disabled:       cfg.PaaS.AuthDisabled,
		RequireGateway: cfg.PaaS.RequireGateway,
	}))
	engine.Use(paas.InjectClientMiddleware(paasClient))
	engine.Use(paas.WriteAuditMiddleware(paasClient, log))

	healthHandler := &handler.HealthHandler{Coordinator: coordinator}
	if dbConn != nil {
		healthHandler.DB = dbConn.Gorm
	}
	healthHandler.Register(engine)
	paas.RegisterDocs(engine)
	sessionsHandler := &handler.SessionsHandler{
		Coordinator:     coordinator,
		Journal:         journalSvc,
		MaxReceiptBytes: cfg.Receipt.MaxBytes,
		Logger:          logger.Component(log, "http"),
	}
	sessionsHandler.Register(engine)
	streamHandler := &handler.StreamHandler{
		Coordinator: coordinator,
		Logger:      logger.Component(log, "stream"),
	}
	streamHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger.Component(log, "cron"), ctx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add("deadline_tick", cfg.Cron.Tick, func(ctx context.Context) {
			coordinator.Tick(time.Now())
		}); err != nil {
			log.Fatal("cron register deadline tick failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("ledger_refresh", cfg.Cron.LedgerRefresh, func(ctx context.Context) {
			coordinator.RefreshPending(ctx)
		}); err != nil {
			log.Warn("cron register ledger refresh failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("session_sweep", cfg.Cron.SessionSweep, func(ctx context.Context) {
			coordinator.Sweep(time.Now())
		}); err != nil {
			log.Warn("cron register session sweep failed", zap.Error(err))
		}
		if cfg.Journal.Enabled && cfg.Journal.Retention > 0 {
			if _, err := cronRunner.Add("journal_retention", "@every 1h", func(ctx context.Context) {
				n, err := journalRepo.DeleteTradeEventsBefore(ctx, time.Now().Add(-cfg.Journal.Retention).UTC())
				if err != nil {
					log.Warn("journal retention failed", zap.Error(err))
					return
				}
				if n > 0 {
					log.Info("journal rows expired", zap.Int64("count", n))
				}
			}); err != nil {
				log.Warn("cron register journal retention failed", zap.Error(err))
			}
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	} else {
		coordinator.TickInterval = time.Second
		log.Warn("cron disabled: coordinator drives the deadline tick, ledger refresh and session sweep are off")
	}

	// The journal outlives the coordinator so session_closed rows still land.
	journalCtx, stopJournal := context.WithCancel(context.Background())
	journalDone := make(chan struct{})
	go func() {
		defer close(journalDone)
		_ = journalWorker.Run(journalCtx)
	}()
	coordinatorDone := make(chan struct{})
	go func() {
		defer close(coordinatorDone)
		if err := coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("coordinator stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	select {
	case <-coordinatorDone:
	case <-shutdownCtx.Done():
		log.Warn("coordinator did not stop in time")
	}
	stopJournal()
	select {
	case <-journalDone:
	case <-shutdownCtx.Done():
	}
	if n := journalWorker.Dropped(); n > 0 {
		log.Warn("journal events dropped", zap.Int64("count", n))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func initPaaSClient(cfg config.PaaSConfig, log *zap.Logger) *paas.Client {
	p := &paas.Client{
		BaseURL: strings.TrimSpace(cfg.BaseURL),
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Agent:   cfg.Agent,
	}
	if !p.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		log.Warn("paas login failed (audit forwarding disabled)", zap.Error(err))
		return nil
	}
	log.Info("paas login ok")
	return p
}
