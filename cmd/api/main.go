package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/dailyloan/pkg/config"
	"github.com/mcclellann/dailyloan/pkg/ledger"
	"github.com/mcclellann/dailyloan/pkg/logger"
	"github.com/mcclellann/dailyloan/pkg/report"
	"github.com/mcclellann/dailyloan/pkg/store"
	"go.uber.org/zap"
)

func openStore(cfg config.DatabaseConfig, log *zap.Logger) (*store.SQLStore, error) {
	if cfg.Driver == "postgres" {
		return store.NewPostgresStore(cfg.DSN, log)
	}
	return store.NewSQLiteStore(cfg.DSN, log)
}

func main() {
	envFile := flag.String("env", "", "optional .env file to load")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Must(logger.New("")).Fatal("failed to load configuration", zap.Error(err))
	}
	base := logger.Must(logger.New(cfg.LogLevel))
	defer base.Sync()

	st, err := openStore(cfg.Database, logger.Named(base, "store"))
	if err != nil {
		base.Fatal("failed to open store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer st.Close()

	guard, err := ledger.NewBcryptGuard(cfg.Ledger.DeleteSecretHash)
	if err != nil {
		base.Fatal("failed to set up delete guard", zap.Error(err))
	}

	m := newMetrics()
	opts := []ledger.Option{
		ledger.WithLogger(logger.Named(base, "ledger")),
		ledger.WithDeleteGuard(guard),
		ledger.WithObserver(m.observeLedger),
	}
	if cfg.Ledger.AuditTrail {
		opts = append(opts, ledger.WithAuditTrail())
	}
	l := ledger.NewLedger(st, opts...)
	reports := report.NewAggregator(st, logger.Named(base, "report"))

	loc := cfg.Location()
	server := NewServer(l, reports, st, logger.Named(base, "api"), loc)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router(m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Snapshot.CronSchedule != "" {
		job := newSnapshotJob(reports, loc, logger.Named(base, "snapshot"))
		if err := job.Start(cfg.Snapshot.CronSchedule); err != nil {
			base.Fatal("failed to schedule snapshot job", zap.Error(err))
		}
		defer job.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		base.Info("server starting", zap.String("addr", httpServer.Addr), zap.String("driver", cfg.Database.Driver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			base.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	base.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		base.Error("graceful shutdown failed", zap.Error(err))
	}
}
