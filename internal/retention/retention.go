// Package retention purges what both sides have discarded: conversations
// soft-deleted by every participant, and expired bearer sessions.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatsync/pkg/config"
	"chatsync/pkg/logger"
	"chatsync/pkg/store"
)

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, st *store.Store, cfg config.RetentionConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cfg.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cfg.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, st *store.Store, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(st); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce performs a single sweep. Exported so tests and admin triggers
// can run retention on demand.
func RunOnce(st *store.Store) error {
	start := time.Now()
	convs, err := st.ListConversations()
	if err != nil {
		return err
	}
	purged := 0
	for _, c := range convs {
		if len(c.Participants) == 0 || len(c.DeletedFor) < len(c.Participants) {
			continue
		}
		if err := st.PurgeConversation(c.ID); err != nil {
			logger.Error("retention_purge_failed", "conversation", c.ID, "error", err)
			continue
		}
		purged++
	}
	sessions, err := st.DeleteExpiredSessions(time.Now().UTC().UnixNano())
	if err != nil {
		return err
	}
	logger.Info("retention_run_complete",
		"purged_conversations", purged,
		"expired_sessions", sessions,
		"took", time.Since(start).String())
	return nil
}
