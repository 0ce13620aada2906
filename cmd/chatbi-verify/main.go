package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chatbi/chatbi/internal/verify"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8000", "base URL of the query API")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	scenarios := flag.String("scenarios", "", "comma-separated scenario names; empty runs all")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var names []string
	for _, name := range strings.Split(*scenarios, ",") {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}

	client := verify.NewClient(*baseURL, *timeout)
	failures := verify.RunAll(ctx, client, os.Stdout, names...)
	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d scenario(s) failed\n", failures)
		os.Exit(1)
	}
}
