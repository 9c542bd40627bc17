// Package main runs the ScrapeFlow worker process. It requires the Redis
// queue; the in-memory queue only exists inside the API process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

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
	if cfg.Store.Fast != "redis" {
		fmt.Fprintln(os.Stderr, "the worker binary requires store.fast=redis")
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

	app.RunWorkers(ctx)
}
