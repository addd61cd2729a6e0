package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/schemalens/schemalens/pkg/builder"
	"github.com/schemalens/schemalens/pkg/graphcache"
	"github.com/schemalens/schemalens/pkg/logger"
)

// RebuildMsg is the body published to rebuild_queue.
type RebuildMsg struct {
	Mode       string `json:"mode"`
	Source     string `json:"source"`
	MaxRecords int    `json:"max_records,omitempty"`
}

// staleAfter is how long an uncommitted ontology may linger before the
// post-rebuild cleanup pass collects it.
const staleAfter = time.Hour

// ProcessRebuildMessage rebuilds the requested snapshot and sweeps stale
// uncommitted ontologies afterwards. A rebuild already running for the same
// key is not an error worth retrying immediately; the message is requeued
// through the retry topology by returning the conflict.
func ProcessRebuildMessage(
	ctx context.Context,
	rebuilder *builder.Rebuilder,
	store graphcache.Store,
	msg string,
) error {
	data := new(RebuildMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("invalid rebuild message: %w", err)
	}

	mode, err := graphcache.ParseMode(data.Mode)
	if err != nil {
		return err
	}
	if data.Source == "" {
		return errors.New("rebuild message missing source")
	}

	start := time.Now()
	result, err := rebuilder.Rebuild(ctx, mode, data.Source, data.MaxRecords)
	if err != nil {
		return err
	}
	logger.Info(
		"Graph rebuilt",
		"mode", mode,
		"source", data.Source,
		"nodes", result.NodeCount,
		"edges", result.EdgeCount,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	removed, err := store.CleanupStale(ctx, staleAfter)
	if err != nil {
		logger.Error("Failed to clean up stale ontologies", "err", err)
		return nil
	}
	if removed > 0 {
		logger.Info("Removed stale ontologies", "count", removed)
	}
	return nil
}
