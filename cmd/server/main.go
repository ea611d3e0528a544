package main

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pidrive-backend/internal/api"
	"pidrive-backend/internal/auth"
	"pidrive-backend/internal/config"
	"pidrive-backend/internal/drive"
	"pidrive-backend/internal/logging"
	"pidrive-backend/internal/remotefs"
	"pidrive-backend/internal/session"
)

func main() {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Sync()

	jwtExpiry, err := cfg.GetJWTExpiry()
	if err != nil {
		logging.Fatal("invalid jwt expiry", zap.Error(err))
	}

	sessionTTL, err := cfg.GetSessionTTL()
	if err != nil {
		logging.Fatal("invalid session ttl", zap.Error(err))
	}

	accounts, err := auth.LoadTable(cfg.Accounts.File)
	if err != nil {
		logging.Fatal("failed to load accounts", zap.Error(err))
	}
	logging.Info("accounts loaded",
		zap.String("file", cfg.Accounts.File),
		zap.Int("count", accounts.Len()))

	jwtManager := auth.NewJWTManager(
		[]byte(cfg.JWT.SecretKey),
		[]byte(cfg.JWT.EncryptionKey),
		cfg.JWT.Issuer,
		jwtExpiry,
	)

	dial := func() (remotefs.Client, error) {
		return remotefs.Dial(cfg)
	}
	sessions := session.NewManager(accounts, dial, sessionTTL)
	defer sessions.Close()

	events := drive.NewBroadcaster()
	engine := drive.New(sessions, events)

	spoolDir := cfg.Upload.SpoolDir
	if spoolDir == "" {
		spoolDir = os.TempDir()
	} else if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		logging.Fatal("failed to create spool dir", zap.Error(err))
	}

	router := api.NewRouter(
		api.NewAuthHandler(accounts, jwtManager, jwtExpiry),
		api.NewFileHandler(engine, jwtManager),
		api.NewTransferHandler(engine, jwtManager, spoolDir),
		api.NewProgressHandler(events),
	)

	server := &http.Server{
		Addr:        cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Downloads and uploads hold the response open for as long as
		// the transfer runs.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	useTLS := cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != ""
	if useTLS {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CurvePreferences: []tls.CurveID{
				tls.CurveP256,
				tls.X25519,
			},
			PreferServerCipherSuites: true,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	go func() {
		logging.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("remote", cfg.Remote.Type),
			zap.Bool("tls", useTLS))
		var err error
		if useTLS {
			err = server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logging.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logging.Error("forced shutdown", zap.Error(err))
	}

	logging.Info("server stopped")
}
