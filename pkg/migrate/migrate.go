// Package migrate performs upgrade work between binary versions. It runs
// once at startup, before the server accepts traffic.
package migrate

import (
	"encoding/json"
	"fmt"
	"time"

	"chatsync/pkg/logger"
	"chatsync/pkg/store"
)

const (
	versionKey    = "version"
	inProgressKey = "migration_in_progress"
)

// Sync checks for a version change and runs migrations if needed. A
// leftover in-progress marker from a crashed run forces a re-run; every
// migration is idempotent.
func Sync(st *store.Store, newVersion string) error {
	stored, err := st.GetSystemKey(versionKey)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("read stored version: %w", err)
	}
	logger.Info("migrate_version_check", "stored", stored, "running", newVersion)
	if stored == newVersion {
		if _, err := st.GetSystemKey(inProgressKey); err == store.ErrNotFound {
			logger.Info("migrate_noop", "version", newVersion)
			return nil
		}
		logger.Warn("migrate_resuming_interrupted_run", "version", newVersion)
	}

	marker, _ := json.Marshal(map[string]string{
		"from":       stored,
		"to":         newVersion,
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err := st.SetSystemKey(inProgressKey, marker); err != nil {
		return fmt.Errorf("failed to write in-progress marker: %w", err)
	}

	if err := run(st); err != nil {
		logger.Error("migrate_failed", "from", stored, "to", newVersion, "error", err)
		return err
	}

	if err := st.SetSystemKey(versionKey, []byte(newVersion)); err != nil {
		return fmt.Errorf("failed to persist new version: %w", err)
	}
	if err := st.DeleteSystemKey(inProgressKey); err != nil {
		logger.Error("migrate_delete_inprogress_failed", "error", err)
	}
	logger.Info("migrate_done", "from", stored, "to", newVersion)
	return nil
}

// run applies the migration set. Each step must be idempotent so an
// interrupted run can simply start over.
func run(st *store.Store) error {
	// earlier builds wrote conversations without the unordered-pair index;
	// find-or-create depends on it for uniqueness
	n, err := st.ReindexPairs()
	if err != nil {
		return fmt.Errorf("reindex pairs: %w", err)
	}
	if n > 0 {
		logger.Info("migrate_pairs_reindexed", "written", n)
	}
	return nil
}
