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

	"jbio/internal/align"
	"jbio/internal/config"
	"jbio/internal/logging"
	"jbio/internal/metrics"
	"jbio/internal/registry"
	"jbio/internal/store"
	"jbio/internal/validate"
)

func main() {
	configFlag := flag.String("config", "", "path to config.json or config.yaml (optional)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbFlag := flag.String("db", "", "sqlite database path (overrides config)")
	logFile := flag.String("log", "", "path to write access logs (optional). If empty, logs go to stderr only")
	verbose := flag.Bool("verbose", false, "enable verbose (debug) logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFlag)
	if err != nil {
		os.Stderr.WriteString("invalid config: " + err.Error() + "\n")
		os.Exit(2)
	}
	if *addr != "" {
		cfg.WebAddr = *addr
	}
	if *dbFlag != "" {
		cfg.DatabasePath = *dbFlag
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	logger, closeLog := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel, Verbose: *verbose, Prefix: "jbio-web"})
	defer closeLog()

	ac, err := cfg.Align()
	if err != nil {
		logger.Fatal("invalid alignment settings", "err", err)
	}
	m := metrics.New()
	val := validate.New(logger, m)
	engine, err := align.NewEngine(ac, logger, m)
	if err != nil {
		logger.Fatal("invalid alignment settings", "err", err)
	}
	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to open database", "path", cfg.DatabasePath, "err", err)
	}
	defer st.Close()

	reg := registry.New(val, logger, m)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := st.Restore(ctx, reg); err != nil {
		logger.Fatal("stored proteins failed validation", "path", cfg.DatabasePath, "err", err)
	}

	s := &server{reg: reg, store: st, val: val, engine: engine, metrics: m, logger: logger}
	srv := &http.Server{Addr: cfg.WebAddr, Handler: s.routes(), ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving JSON API", "addr", cfg.WebAddr, "db", cfg.DatabasePath, "proteins", reg.Len())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", "err", err)
	}
}
