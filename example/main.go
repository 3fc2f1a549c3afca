package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/m1kah/livegrid"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// faster cadence than the 5s default so changes are easy to watch
	lg, err := livegrid.New(
		livegrid.WithTitle("Precious Stones"),
		livegrid.WithPort(8080),
		livegrid.WithRefreshInterval(2*time.Second),
		livegrid.WithInitialDelay(500*time.Millisecond),
		livegrid.WithSampleNames("Garnet", "Peridot", "Aquamarine", "Tourmaline"),
		livegrid.WithMetrics(true),
		livegrid.WithLogger(logger),
		livegrid.WithChangeCallback(func(names []string) {
			if len(names) > 0 {
				fmt.Printf("changed: %s\n", strings.Join(names, ", "))
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create livegrid", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  livegrid demo")
	fmt.Println()
	fmt.Println("  Grid:    http://localhost:8080")
	fmt.Println("  Records: http://localhost:8080/api/records")
	fmt.Println("  Metrics: http://localhost:8080/metrics")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := lg.Start(ctx); err != nil {
		slog.Error("livegrid error", "error", err)
		os.Exit(1)
	}
}
