// Command orphan-cleanup reconciles the poll index with the poll keys that
// actually exist in Redis. Drift cannot arise from normal operation; run
// this after manual key surgery or a partial restore.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iamvishnuk/poll-server/internal/redis"
)

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (don't write to Redis)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	// Configure logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	// Connect to Redis
	opts, err := goredis.ParseURL(*redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := goredis.NewClient(opts)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	// Warn when the fleet is live: polls created mid-scan can look unindexed
	// for a moment, so prefer running against a quiet backend.
	if active, err := redis.ActiveInstances(ctx, rdb, clockwork.NewRealClock()); err == nil && len(active) > 0 {
		slog.Warn("Server instances are currently active", "count", len(active))
	}

	slog.Info("Starting cleanup", "dry_run", *dryRun)
	start := time.Now()

	stats, err := redis.CleanupOrphans(ctx, rdb, *dryRun)
	if err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}

	slog.Info("Cleanup summary",
		"scanned", stats.ScannedKeys,
		"index_entries", stats.IndexEntries,
		"removed_index", stats.RemovedIndex,
		"reindexed", stats.Reindexed,
		"deleted_keys", stats.DeletedKeys,
		"skipped", stats.SkippedKeys,
		"duration_ms", time.Since(start).Milliseconds())

	slog.Info("Cleanup complete")
}

func sanitizeURL(url string) string {
	// Hide password in Redis URL for logging
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			credParts := strings.Split(parts[0], ":")
			if len(credParts) >= 2 {
				return credParts[0] + ":***@" + parts[1]
			}
		}
	}
	return url
}
