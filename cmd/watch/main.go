package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/quantfeed/avwap/internal/config"
	"github.com/quantfeed/avwap/internal/engine"
	"github.com/quantfeed/avwap/internal/models"
	"github.com/quantfeed/avwap/internal/pubsub"
	"github.com/quantfeed/avwap/pkg/logger"
)

// watch prints cached value snapshots for the given symbols and then follows
// the update channel, printing each new snapshot as it lands.
func main() {
	raw := flag.Bool("raw", false, "print raw snapshot JSON instead of formatted lines")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, flag.Args(), *raw); err != nil {
		fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, symbols []string, raw bool) error {
	redisClient, err := pubsub.NewRedisClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	keyPrefix := engine.DefaultPublisherConfig().ValueKeyPrefix

	// Current snapshots first, then follow updates
	for _, symbol := range symbols {
		key := keyPrefix + strings.ToUpper(symbol)
		exists, err := redisClient.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", key, err)
		}
		if !exists {
			fmt.Fprintf(os.Stderr, "no snapshot cached for %s\n", symbol)
			continue
		}

		if raw {
			data, err := redisClient.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			fmt.Println(data)
			continue
		}

		var snapshot models.ValueSnapshot
		if err := redisClient.GetJSON(ctx, key, &snapshot); err != nil {
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		printSnapshot(&snapshot)
	}

	messages, err := redisClient.Subscribe(ctx, cfg.Engine.PublishChannel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", cfg.Engine.PublishChannel, err)
	}
	fmt.Fprintf(os.Stderr, "watching %s\n", cfg.Engine.PublishChannel)

	wanted := make(map[string]bool, len(symbols))
	for _, symbol := range symbols {
		wanted[strings.ToUpper(symbol)] = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			var snapshot models.ValueSnapshot
			if err := json.Unmarshal([]byte(msg.Message), &snapshot); err != nil {
				fmt.Fprintf(os.Stderr, "skipping malformed update: %v\n", err)
				continue
			}
			if len(wanted) > 0 && !wanted[snapshot.Symbol] {
				continue
			}

			if raw {
				fmt.Println(msg.Message)
				continue
			}
			printSnapshot(&snapshot)
		}
	}
}

func printSnapshot(snapshot *models.ValueSnapshot) {
	names := make([]string, 0, len(snapshot.Values))
	for name := range snapshot.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, formatValue(snapshot.Values[name])))
	}

	fmt.Printf("%-8s %s  %s\n",
		snapshot.Symbol,
		snapshot.Timestamp.UTC().Format(time.RFC3339),
		strings.Join(parts, " "),
	)
}

func formatValue(value float64) string {
	return fmt.Sprintf("%.4f", value)
}
