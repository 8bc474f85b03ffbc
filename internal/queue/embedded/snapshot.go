package embedded

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"
)

// snapshotFile is the on-disk representation of engine state. Receipt
// handles are deliberately not persisted: after a restart every message
// is redelivered, which is the same contract a crashed consumer sees.
type snapshotFile struct {
	Version int                 `json:"version"`
	SavedAt time.Time           `json:"savedAt"`
	Queues  map[string][]*Item  `json:"queues"`
	Dedup   map[string]dedupMap `json:"dedup"`
}

type dedupMap map[string]time.Time

const snapshotVersion = 1

// snapshotLoop periodically flushes dirty state to disk until Close.
func (e *Engine) snapshotLoop() {
	defer close(e.snapshotDone)

	ticker := time.NewTicker(e.opts.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.snapshotStop:
			return
		case <-ticker.C:
			e.mu.Lock()
			dirty := e.dirty
			e.mu.Unlock()
			if !dirty {
				continue
			}
			if err := e.writeSnapshot(); err != nil {
				slog.Error("Failed to write queue snapshot", "error", err, "path", e.opts.SnapshotPath)
			}
		}
	}
}

// writeSnapshot serializes state and atomically replaces the snapshot file.
func (e *Engine) writeSnapshot() error {
	e.mu.Lock()
	snap := snapshotFile{
		Version: snapshotVersion,
		SavedAt: e.now(),
		Queues:  make(map[string][]*Item, len(e.queues)),
		Dedup:   make(map[string]dedupMap, len(e.queues)),
	}
	for name, q := range e.queues {
		items := make([]*Item, len(q.items))
		copy(items, q.items)
		snap.Queues[name] = items
		if len(q.dedup) > 0 {
			d := make(dedupMap, len(q.dedup))
			for id, expiry := range q.dedup {
				d[id] = expiry
			}
			snap.Dedup[name] = d
		}
	}
	e.dirty = false
	e.mu.Unlock()

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to marshal queue snapshot: %w", err)
	}

	dir := filepath.Dir(e.opts.SnapshotPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp := e.opts.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, e.opts.SnapshotPath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// restore loads state from the snapshot file if one exists. Messages that
// were in flight when the snapshot was taken keep their visibility
// deadline; only their receipt handles are invalidated, so they are
// redelivered once the deadline elapses.
func (e *Engine) restore() error {
	data, err := os.ReadFile(e.opts.SnapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read queue snapshot: %w", err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse queue snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported queue snapshot version %d", snap.Version)
	}

	now := e.now()
	restored := 0
	for name, items := range snap.Queues {
		q := newQueueState()
		for _, item := range items {
			item.ReceiptHandle = ""
			q.items = append(q.items, item)
			q.byID[item.ID] = item
			restored++
		}
		if d, ok := snap.Dedup[name]; ok {
			for id, expiry := range d {
				if now.Before(expiry) {
					q.dedup[id] = expiry
				}
			}
		}
		e.queues[name] = q
	}

	if restored > 0 {
		slog.Info("Restored queue snapshot",
			"path", e.opts.SnapshotPath,
			"queues", len(snap.Queues),
			"messages", restored,
			"savedAt", snap.SavedAt)
	}
	return nil
}
