package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const orphanScanCount = 100

// CleanupStats summarizes one orphan cleanup pass.
type CleanupStats struct {
	ScannedKeys  int // poll:* keys visited
	IndexEntries int // members of the poll index set
	RemovedIndex int // index entries whose poll hash is gone
	Reindexed    int // poll hashes that were missing from the index
	DeletedKeys  int // votes/seq keys left behind without their poll hash
	SkippedKeys  int // keys under poll:* that do not match the layout
}

// CleanupOrphans reconciles the poll index set with the poll keys that
// actually exist. Normal operation cannot produce drift (creation and
// deletion are atomic), so orphans mean manual edits or a partial restore:
// index entries without a poll hash are dropped, hashes missing from the
// index are re-added, and votes/seq keys without their parent hash are
// deleted. With dryRun set, changes are counted but not applied.
func CleanupOrphans(ctx context.Context, rdb *goredis.Client, dryRun bool) (CleanupStats, error) {
	var stats CleanupStats

	indexed, err := rdb.SMembers(ctx, pollIndexKey).Result()
	if err != nil {
		return stats, fmt.Errorf("failed to read poll index: %w", err)
	}
	stats.IndexEntries = len(indexed)

	// Poll ids seen with a poll:{id} hash, and the votes/seq keys per id.
	hashes := make(map[string]bool)
	children := make(map[string][]string)

	var cursor uint64
	for {
		keys, nextCursor, err := rdb.Scan(ctx, cursor, "poll:*", orphanScanCount).Result()
		if err != nil {
			return stats, fmt.Errorf("scan failed: %w", err)
		}

		for _, key := range keys {
			stats.ScannedKeys++

			rest := strings.TrimPrefix(key, "poll:")
			idStr, suffix, isChild := strings.Cut(rest, ":")

			if _, err := uuid.Parse(idStr); err != nil {
				slog.Debug("Skipping key outside the poll layout", "key", key)
				stats.SkippedKeys++
				continue
			}

			if !isChild {
				hashes[idStr] = true
				continue
			}

			switch suffix {
			case "votes", "seq":
				children[idStr] = append(children[idStr], key)
			default:
				slog.Debug("Skipping key outside the poll layout", "key", key)
				stats.SkippedKeys++
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	// Index entries pointing at polls that no longer exist.
	for _, idStr := range indexed {
		if hashes[idStr] {
			continue
		}
		slog.Debug("Removing index entry without poll hash", "poll_id", idStr)
		if !dryRun {
			if err := rdb.SRem(ctx, pollIndexKey, idStr).Err(); err != nil {
				return stats, fmt.Errorf("srem failed for %s: %w", idStr, err)
			}
		}
		stats.RemovedIndex++
	}

	// Poll hashes invisible to listing because the index lost them.
	indexedSet := make(map[string]bool, len(indexed))
	for _, idStr := range indexed {
		indexedSet[idStr] = true
	}
	for idStr := range hashes {
		if indexedSet[idStr] {
			continue
		}
		slog.Debug("Re-adding poll hash to index", "poll_id", idStr)
		if !dryRun {
			if err := rdb.SAdd(ctx, pollIndexKey, idStr).Err(); err != nil {
				return stats, fmt.Errorf("sadd failed for %s: %w", idStr, err)
			}
		}
		stats.Reindexed++
	}

	// Votes and sequence keys whose poll hash is gone.
	for idStr, keys := range children {
		if hashes[idStr] {
			continue
		}
		slog.Debug("Deleting orphaned poll keys", "poll_id", idStr, "keys", len(keys))
		if !dryRun {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return stats, fmt.Errorf("del failed for %s: %w", idStr, err)
			}
		}
		stats.DeletedKeys += len(keys)
	}

	return stats, nil
}
