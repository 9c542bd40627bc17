// Package main runs the ScrapeFlow API server. With the in-memory queue it
// also runs the workers in-process, since a separate worker binary could not
// see the queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scrapeflow/scrapeflow/internal/config"
	"github.com/scrapeflow/scrapeflow/internal/server"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if cfg.Store.Fast == "memory" {
		go app.RunWorkers(ctx)
	}

	if err := app.RunAPI(ctx); err != nil {
		zap.L().Error("api server failed", zap.Error(err))
		os.Exit(1)
	}
}
