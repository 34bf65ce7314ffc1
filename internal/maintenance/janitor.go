// Package maintenance runs the coordinator's background housekeeping: pruning
// archived performance samples past their retention window.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/superdisco-agents/moai-flow-sub004/internal/config"
	"github.com/superdisco-agents/moai-flow-sub004/internal/natsbus"
	"github.com/superdisco-agents/moai-flow-sub004/internal/store"
	"github.com/superdisco-agents/moai-flow-sub004/internal/swarm"
)

type Janitor struct {
	store     *store.Store
	client    *natsbus.Client
	schedule  string
	retention time.Duration
}

func NewJanitor(st *store.Store, client *natsbus.Client, cfg config.StoreConfig) *Janitor {
	return &Janitor{
		store:     st,
		client:    client,
		schedule:  cfg.PruneSchedule,
		retention: cfg.Retention,
	}
}

// Start runs prune passes on the configured cron schedule until the context
// is canceled.
func (j *Janitor) Start(ctx context.Context) {
	if j.retention <= 0 {
		slog.Info("sample retention disabled")
		return
	}
	if !gronx.New().IsValid(j.schedule) {
		slog.Error("invalid prune schedule, janitor disabled", "schedule", j.schedule)
		return
	}

	slog.Info("janitor started", "schedule", j.schedule, "retention", j.retention)

	for {
		next, err := gronx.NextTick(j.schedule, false)
		if err != nil {
			slog.Error("next prune tick failed", "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("janitor stopped")
			return
		case <-timer.C:
			j.prune()
		}
	}
}

func (j *Janitor) prune() {
	cutoff := time.Now().UTC().Add(-j.retention)
	n, err := j.store.PruneSamples(cutoff)
	if err != nil {
		slog.Error("sample prune failed", "error", err)
		return
	}
	if n == 0 {
		return
	}

	slog.Info("samples pruned", "removed", n, "cutoff", cutoff)
	if j.client != nil {
		event := swarm.Event{
			Type:      "samples_pruned",
			Timestamp: time.Now().UTC(),
			Data:      map[string]any{"removed": n},
		}
		if err := j.client.PublishJSON(natsbus.SubjectEventsHealth(), event); err != nil {
			slog.Warn("publish prune event failed", "error", err)
		}
	}
}
