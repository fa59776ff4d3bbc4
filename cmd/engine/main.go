// Command engine serves the admin API, the public contact endpoint and the
// push stream, and runs the mail ingest and retention jobs.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tecky-admin/internal/config"
	"tecky-admin/internal/events"
	"tecky-admin/internal/httpapi"
	"tecky-admin/internal/logger"
	"tecky-admin/internal/mailin"
	"tecky-admin/internal/metrics"
	"tecky-admin/internal/scheduler"
	"tecky-admin/internal/secrets"
	"tecky-admin/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "engine:", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	// the data dir holds the config, so it can only come from the env
	dataDir := os.Getenv("TECKY_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	userCfgPath, err := config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
	if err != nil {
		return fmt.Errorf("config bootstrap: %w", err)
	}
	loadCfg := func() (config.Config, error) {
		cfg, _, err := loadConfig(userCfgPath)
		return cfg, err
	}
	cfg, warnings, err := loadConfig(userCfgPath)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "tecky-engine"})
	defer func() { _ = log.Sync() }()
	for _, w := range warnings {
		log.Warn("config", zap.String("warning", w))
	}

	var cfgVal atomic.Value
	cfgVal.Store(cfg)
	current := func() config.Config { return cfgVal.Load().(config.Config) }

	dbPath := filepath.Join(dataDir, "admin.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Checkpoint(ctx, db.Pool); err != nil {
			log.Warn("checkpoint on close", logger.Err(err))
		}
		_ = db.Close()
	}()

	hub := events.NewHub()
	m := metrics.New()
	m.WatchHub(hub.Clients, hub.Dropped)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ToContext(ctx, log)

	token, err := writeShutdownToken(filepath.Join(dataDir, "engine.token"))
	if err != nil {
		return err
	}

	poller := &mailin.Poller{
		DB:      db.Pool,
		Hub:     hub,
		Metrics: m,
		Config:  current,
		Password: func(c config.Config) (string, error) {
			return secrets.GetIMAPPassword(secrets.IMAPKeyringAccount(c))
		},
	}

	srv := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.App.Port),
		Handler: httpapi.NewRouter(httpapi.Deps{
			DB:            db.Pool,
			Hub:           hub,
			Log:           log,
			Metrics:       m,
			CfgVal:        &cfgVal,
			UserCfgPath:   userCfgPath,
			LoadCfg:       loadCfg,
			MailStatus:    poller.Status,
			ShutdownToken: token,
			Shutdown:      stop,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("engine listening", zap.String("addr", srv.Addr), zap.String("db", dbPath))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		scheduler.Every(gctx, pollInterval(cfg), "mail", poller.Tick)
		return nil
	})
	g.Go(func() error {
		scheduler.Every(gctx, time.Hour, "retention", retentionTask(db.Pool, hub, current))
		return nil
	})

	err = g.Wait()
	log.Info("engine stopped")
	return err
}

// loadConfig reads path, applies TECKY_* overrides and validates.
func loadConfig(path string) (config.Config, []string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("config load (%s): %w", path, err)
	}
	if err := config.OverlayEnv(&cfg); err != nil {
		return cfg, nil, err
	}
	cfg, vr := config.NormalizeAndValidate(cfg)
	if !vr.OK() {
		return cfg, vr.Warnings, fmt.Errorf("invalid config %s: %s", path, strings.Join(vr.Errors, "; "))
	}
	return cfg, vr.Warnings, nil
}

func pollInterval(cfg config.Config) time.Duration {
	if cfg.Mail.PollSeconds <= 0 {
		return time.Duration(config.Default().Mail.PollSeconds) * time.Second
	}
	return time.Duration(cfg.Mail.PollSeconds) * time.Second
}

// writeShutdownToken stores a fresh random token that POST /shutdown
// expects in X-Shutdown-Token.
func writeShutdownToken(path string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write shutdown token: %w", err)
	}
	return token, nil
}
