package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nodeconfig "intentvault/config"
	"intentvault/core/events"
	"intentvault/core/host"
	"intentvault/observability/logging"
	"intentvault/observability/metrics"
	telemetry "intentvault/observability/otel"
	"intentvault/services/vaultd/archive"
	"intentvault/services/vaultd/config"
	"intentvault/services/vaultd/middleware"
	"intentvault/services/vaultd/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "vaultd.yaml", "path to vaultd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULT_ENV"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var fileOpts *logging.FileOptions
	if cfg.Logging.File != "" {
		fileOpts = &logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service: "vaultd",
		Env:     env,
		Level:   cfg.Logging.Level,
		File:    fileOpts,
	})
	defer logCloser.Close()

	if cfg.Telemetry {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("vaultd", env))
		if err != nil {
			log.Fatalf("init telemetry: %v", err)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	nodeCfg, err := nodeconfig.Load(cfg.NodeConfig)
	if err != nil {
		log.Fatalf("load node config: %v", err)
	}
	db, err := nodeCfg.OpenDatabase()
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	arch, err := archive.Open(cfg.Archive.Driver, cfg.Archive.DSN, logger)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	defer arch.Close()

	hostCfg, err := nodeCfg.HostConfig()
	if err != nil {
		log.Fatalf("node config: %v", err)
	}
	hostCfg.Logger = logger
	hostCfg.Emitter = events.Fanout{arch}
	hostCfg.Metrics = metrics.Vault()
	vaultHost, err := host.New(db, hostCfg)
	if err != nil {
		log.Fatalf("start vault: %v", err)
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.RateLimits))
	for group, limit := range cfg.RateLimits {
		limits[group] = middleware.RateLimit{RequestsPerMinute: limit.RequestsPerMinute, Burst: limit.Burst}
	}
	srv, err := server.New(server.Config{
		Host:    vaultHost,
		Archive: arch,
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			HMACSecret:          cfg.Auth.HMACSecret,
			Issuer:              cfg.Auth.Issuer,
			Audience:            cfg.Auth.Audience,
			AllowAnonymousReads: cfg.Auth.AllowAnonymousReads,
			ClockSkew:           cfg.Auth.ClockSkew(),
		}, logger),
		RateLimiter:   middleware.NewRateLimiter(limits, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "vaultd", LogRequests: true}, logger),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	if cfg.TLS.AllowInsecure && cfg.TLS.CertPath == "" {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			log.Fatalf("plaintext vaultd mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.TLS.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		if err != nil {
			log.Fatalf("load tls keypair: %v", err)
		}
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}
		listener = tls.NewListener(listener, httpServer.TLSConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go vaultHost.Run(ctx, cfg.Outbox.Interval())

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", slog.String("address", cfg.ListenAddress), slog.String("vault", vaultHost.VaultAccount()))
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}
