package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"novaled/internal/core/services"
	httphandlers "novaled/internal/handlers/http"
	backupinfra "novaled/internal/infrastructure/backup"
	"novaled/internal/infrastructure/monitoring"
	"novaled/internal/infrastructure/repositories"
	signalserver "novaled/internal/infrastructure/signal"
	webrtcinfra "novaled/internal/infrastructure/webrtc"
	"novaled/pkg/backup"
	"novaled/pkg/config"
	"novaled/pkg/logger"
	"novaled/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// snapshotVersion is bumped when the stored document layout changes.
const snapshotVersion = "1"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	restoreFrom := flag.String("restore", "", `snapshot to restore before serving, or "latest"`)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logging is not configured yet.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, *restoreFrom, log); err != nil {
		log.Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, restoreFrom string, log *zap.SugaredLogger) error {
	clock := clockwork.NewRealClock()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: os.Getenv("NOVALED_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, clock, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := repoFactory.Close(); err != nil {
			log.Errorw("error closing repository factory", "error", err)
		}
	}()

	store := repoFactory.Store()

	var backups *backup.BackupService
	if cfg.Backup.Enabled || restoreFrom != "" {
		storage, err := backup.NewFileStorage(cfg.Backup.Dir)
		if err != nil {
			return err
		}
		backups = backup.NewBackupService(storage, snapshotVersion, clock)
	}
	if restoreFrom != "" {
		restore := backupinfra.NewRestoreService(backups, store, log)
		if _, err := restore.RestoreFromBackup(context.Background(), restoreFrom, backupinfra.RestoreOptions{}); err != nil {
			return err
		}
	}

	users := repoFactory.CreateUserRepository()
	posts := repoFactory.CreatePostRepository()
	lives := repoFactory.CreateLiveRepository()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := monitoring.NewPrometheusCollector(registry)

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL, clock)
	accountService := services.NewAccountService(users, authService, clock, services.AccountConfig{
		BcryptCost:     cfg.Auth.BcryptCost,
		MaxAvatarBytes: cfg.Media.MaxAvatarBytes,
	}, log)
	feedService := services.NewFeedService(store, posts, users, cfg.Media.MaxPostBytes, log)
	adminService := services.NewAdminService(users, posts, lives, log)
	popupService := services.NewPopupService(store, users, log)

	ingest, err := webrtcinfra.NewIngestDevice(ingestConfig(cfg), log)
	if err != nil {
		return err
	}
	defer func() { _ = ingest.Close() }()

	wsServer := signalserver.NewServer(
		signalserver.ConfigFrom(cfg),
		authService,
		popupService,
		services.LiveSessionDeps{
			Store:    store,
			Capture:  ingest,
			Users:    users,
			Locker:   repoFactory.Locker(),
			Observer: collector,
			Clock:    clock,
			Logger:   log,
		},
		liveSessionConfig(cfg),
		collector,
		log,
	)
	adminService.SetBanListener(wsServer)
	wsServer.SetFeed(feedService)

	health := monitoring.NewHealthChecker(clock)
	health.AddStoreCheck(store, cfg.Store.OpTimeout)
	health.AddBreakerCheck(repoFactory.BreakerState)
	if repoFactory.Backend() == "redis" {
		health.AddPingCheck("redis", repoFactory.HealthCheck, cfg.Store.OpTimeout)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(httphandlers.RouterDeps{
		Config:   cfg,
		Clock:    clock,
		Logger:   log,
		Auth:     authService,
		Users:    users,
		Lives:    lives,
		Accounts: accountService,
		Feed:     feedService,
		Admin:    adminService,
		Popups:   popupService,
		Health:   health,
		Gatherer: registry,
	})
	router.GET(cfg.Signal.Path, gin.WrapF(wsServer.HandleWebSocket))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Live.HeartbeatInterval > 0 {
		reaper := services.NewLiveReaper(lives, store, clock, cfg.Live.ReapInterval, cfg.Live.StaleAfter, log)
		reaper.OnScan(collector.RecordReap)
		go reaper.Run(ctx)
	}
	if cfg.Backup.Enabled {
		scheduler := backupinfra.NewScheduler(backups, store, clock, backupinfra.Config{
			Interval:  cfg.Backup.Interval,
			Retention: cfg.Backup.Retention,
		}, log)
		go scheduler.Run(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting novaled server",
			"address", cfg.Server.Address,
			"store", repoFactory.Backend(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("shutting down novaled server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSockets are not tracked by Shutdown; end their sessions
	// first so owned broadcasts are stopped.
	if err := wsServer.Close(shutdownCtx); err != nil {
		log.Warnw("websocket sessions did not finish", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		_ = srv.Close()
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warnw("error flushing traces", "error", err)
	}

	log.Info("novaled server stopped")
	return nil
}

func liveSessionConfig(cfg *config.Config) services.LiveSessionConfig {
	return services.LiveSessionConfig{
		BroadcastCap:      cfg.Live.BroadcastCap,
		CooldownPeriod:    cfg.Live.CooldownPeriod,
		TickInterval:      cfg.Live.TickInterval,
		HeartbeatInterval: cfg.Live.HeartbeatInterval,
		LockTTL:           cfg.Live.LockTTL,
		OpTimeout:         cfg.Store.OpTimeout,
	}
}

func ingestConfig(cfg *config.Config) webrtcinfra.IngestConfig {
	var ic webrtcinfra.IngestConfig
	for _, server := range cfg.WebRTC.ICEServers {
		ic.ICEServers = append(ic.ICEServers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	ic.PortRange.Min = cfg.WebRTC.PortRange.Min
	ic.PortRange.Max = cfg.WebRTC.PortRange.Max
	ic.PLIInterval = cfg.WebRTC.PLIInterval
	ic.GatherTimeout = 5 * time.Second
	return ic
}
