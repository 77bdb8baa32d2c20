package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storepilot/storepilot/command"
	"github.com/storepilot/storepilot/kvstore"
)

// statsKeyPrefix namespaces execution stats in the shared store.
const statsKeyPrefix = "metrics:"

// statsTTL bounds how long idle tenants' stats are kept.
const statsTTL = 24 * time.Hour

// ExecutionStats aggregates command executions for one
// (tenant, command type) pair.
type ExecutionStats struct {
	TotalCalls      int64 `json:"total_calls"`
	Errors          int64 `json:"errors"`
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// ErrorRate returns the fraction of calls that failed.
func (s ExecutionStats) ErrorRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.TotalCalls)
}

// AvgDuration returns the mean execution duration.
func (s ExecutionStats) AvgDuration() time.Duration {
	if s.TotalCalls == 0 {
		return 0
	}
	return time.Duration(s.TotalDurationMs/s.TotalCalls) * time.Millisecond
}

// ExecutionTracker persists per-tenant execution statistics through
// the shared key-value store, so numbers survive restarts and agree
// across process instances. Writes are best-effort.
type ExecutionTracker struct {
	store  kvstore.Store
	logger *slog.Logger
}

// NewExecutionTracker creates a tracker over the given store.
func NewExecutionTracker(store kvstore.Store, logger *slog.Logger) *ExecutionTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionTracker{store: store, logger: logger}
}

// Track records one execution outcome.
func (t *ExecutionTracker) Track(ctx context.Context, tenantID string, commandType command.Type, duration time.Duration, success bool) {
	key := fmt.Sprintf("%s%s:%s", statsKeyPrefix, tenantID, commandType)

	stats, err := t.load(ctx, key)
	if err != nil {
		t.logger.Warn("Failed to load execution stats", "tenant", tenantID, "error", err)
		stats = ExecutionStats{}
	}

	stats.TotalCalls++
	stats.TotalDurationMs += duration.Milliseconds()
	if !success {
		stats.Errors++
	}

	data, err := json.Marshal(stats)
	if err != nil {
		t.logger.Warn("Failed to encode execution stats", "tenant", tenantID, "error", err)
		return
	}
	if err := t.store.Set(ctx, key, string(data), statsTTL); err != nil {
		t.logger.Warn("Failed to store execution stats", "tenant", tenantID, "error", err)
	}
}

// Stats returns the recorded statistics for a (tenant, type) pair.
// Absent pairs return zero stats.
func (t *ExecutionTracker) Stats(ctx context.Context, tenantID string, commandType command.Type) (ExecutionStats, error) {
	key := fmt.Sprintf("%s%s:%s", statsKeyPrefix, tenantID, commandType)
	return t.load(ctx, key)
}

func (t *ExecutionTracker) load(ctx context.Context, key string) (ExecutionStats, error) {
	raw, err := t.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return ExecutionStats{}, nil
		}
		return ExecutionStats{}, err
	}

	var stats ExecutionStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return ExecutionStats{}, fmt.Errorf("decode execution stats: %w", err)
	}
	return stats, nil
}
