package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentdesk.org/internal/fakeapi"
	"rentdesk.org/internal/obs"
	"rentdesk.org/internal/store/pg"
)

var version = "dev"

func main() {
	addr := flag.String("addr", envOr("RENTDESK_DEVSERVER_ADDR", ":8000"), "listen address")
	level := flag.String("log-level", envOr("RENTDESK_LOGGING_LEVEL", "debug"), "log level")
	seed := flag.Bool("seed", true, "load the demo data set")
	accessTTL := flag.Duration("access-ttl", 5*time.Minute, "access token lifetime")
	dsn := flag.String("database-url", os.Getenv("RENTDESK_DEVSERVER_DATABASE_URL"), "PostgreSQL DSN for archiving activity logs (optional)")
	flag.Parse()

	logger := obs.NewLogger(os.Stderr, obs.FormatText, *level)
	obs.SetLogger(logger)

	opts := []fakeapi.Option{fakeapi.WithLogger(logger), fakeapi.WithAccessTTL(*accessTTL)}
	if *dsn != "" {
		archive, err := pg.Open(*dsn)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer archive.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = archive.Migrate(ctx)
		cancel()
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		opts = append(opts, fakeapi.WithActivitySink(archive))
		logger.Info("archiving activity logs to postgres")
	}

	backend := fakeapi.New(opts...)
	if *seed {
		owner, err := backend.Seed()
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		logger.Info("seeded", "owner", owner.Email, "password", "rentdesk-owner")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           backend.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting rentdesk devserver", "version", version, "addr", srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	logger.Info("stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
